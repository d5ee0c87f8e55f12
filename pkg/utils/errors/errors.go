package errors

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure of a risk calculation
type ErrorKind uint

const (
	// KindUnknown is an unclassified error
	KindUnknown ErrorKind = iota
	// KindValidation covers empty portfolios, mismatched array lengths and
	// unsupported confidence-level values. Never retried.
	KindValidation
	// KindNonPositiveDefinite is raised by Cholesky factorization when the
	// matrix is not positive semi-definite. The caller applies ridge
	// regularization once and retries; a second failure escalates to
	// KindValidation.
	KindNonPositiveDefinite
	// KindInsufficientData covers sample sizes below the documented minimum
	// for historical simulation, backtesting or convergence diagnostics.
	KindInsufficientData
	// KindNumericalInstability is a non-finite intermediate result detected
	// after a division. It aborts only the affected decomposition entry.
	KindNumericalInstability
	// KindUnsupported is an unrecognized calculation method. Fatal.
	KindUnsupported
	// KindNotFound is a lookup miss in a store
	KindNotFound
	// KindInternal is everything else
	KindInternal
)

// String returns the kind name used in logs and API error payloads
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNonPositiveDefinite:
		return "non_positive_definite"
	case KindInsufficientData:
		return "insufficient_data"
	case KindNumericalInstability:
		return "numerical_instability"
	case KindUnsupported:
		return "unsupported"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// RiskError is an error with a kind and an optional offending field name
type RiskError struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

// Error returns the error message
func (e *RiskError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %s)", msg, e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error
func (e *RiskError) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind ErrorKind, message string) error {
	return &RiskError{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind ErrorKind, format string, args ...interface{}) error {
	return &RiskError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error naming the offending field
func Validation(field, message string) error {
	return &RiskError{Kind: KindValidation, Field: field, Message: message}
}

// Validationf creates a validation error with a formatted message
func Validationf(field, format string, args ...interface{}) error {
	return &RiskError{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NonPositiveDefinite creates a factorization failure error
func NonPositiveDefinite(message string) error {
	return &RiskError{Kind: KindNonPositiveDefinite, Message: message}
}

// InsufficientData creates an error for undersized samples
func InsufficientData(message string) error {
	return &RiskError{Kind: KindInsufficientData, Message: message}
}

// NumericalInstability creates an error for non-finite intermediates
func NumericalInstability(message string) error {
	return &RiskError{Kind: KindNumericalInstability, Message: message}
}

// Unsupported creates an error for unrecognized methods or options
func Unsupported(message string) error {
	return &RiskError{Kind: KindUnsupported, Message: message}
}

// NotFoundf creates a formatted lookup-miss error
func NotFoundf(format string, args ...interface{}) error {
	return &RiskError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a message, preserving its kind if it has one
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &RiskError{Kind: KindOf(err), Message: message, Err: err}
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithKind overrides the kind on an error
func WithKind(err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}
	var re *RiskError
	if errors.As(err, &re) {
		return &RiskError{Kind: kind, Field: re.Field, Message: re.Message, Err: re.Err}
	}
	return &RiskError{Kind: kind, Message: err.Error(), Err: err}
}

// KindOf returns the kind of an error, or KindUnknown for foreign errors
func KindOf(err error) ErrorKind {
	var re *RiskError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain contains a RiskError of the kind
func IsKind(err error, kind ErrorKind) bool {
	var re *RiskError
	return errors.As(err, &re) && re.Kind == kind
}

// As delegates to the standard library
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is delegates to the standard library
func Is(err, target error) bool {
	return errors.Is(err, target)
}
