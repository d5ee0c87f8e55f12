// Package linalg provides the dense numerical primitives used by the risk
// engines: Cholesky factorization with a ridge-regularization retry, and
// symmetric eigen-decomposition by power iteration with deflation.
package linalg

import (
	"math"

	"github.com/quantrisk/risk-engine/pkg/utils/errors"
)

// DefaultRidgeAlpha is the regularization weight applied when a correlation
// matrix fails factorization: M' = (1-alpha)*M + alpha*I
const DefaultRidgeAlpha = 0.01

// Cholesky computes the lower-triangular factor L such that L*L^T = m.
// Returns a KindNonPositiveDefinite error when a diagonal radicand is
// negative or a pivot is zero; the input is never modified.
func Cholesky(m [][]float64) ([][]float64, error) {
	n := len(m)
	if n == 0 {
		return nil, errors.Validation("matrix", "cannot factor an empty matrix")
	}
	for i := range m {
		if len(m[i]) != n {
			return nil, errors.Validationf("matrix", "row %d has %d columns, expected %d", i, len(m[i]), n)
		}
	}

	L := make([][]float64, n)
	for i := range L {
		L[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := 0.0
			for k := 0; k < j; k++ {
				sum += L[i][k] * L[j][k]
			}

			if i == j {
				radicand := m[i][i] - sum
				if radicand <= 0 {
					return nil, errors.NonPositiveDefinite("matrix is not positive definite")
				}
				L[i][i] = math.Sqrt(radicand)
			} else {
				if L[j][j] == 0 {
					return nil, errors.NonPositiveDefinite("zero pivot during factorization")
				}
				L[i][j] = (m[i][j] - sum) / L[j][j]
			}
		}
	}

	return L, nil
}

// Regularize returns (1-alpha)*M + alpha*I without modifying the input
func Regularize(m [][]float64, alpha float64) [][]float64 {
	n := len(m)
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = (1 - alpha) * m[i][j]
		}
		out[i][i] += alpha
	}
	return out
}

// CholeskyWithRegularization factors m, applying one ridge-regularization
// retry if the matrix is not positive definite. The retry weight is the
// larger of alpha and the Gershgorin-derived weight that restores positive
// definiteness, so a single retry suffices for any symmetric input. A second
// failure escalates to a validation error: the repair is local, never silent.
func CholeskyWithRegularization(m [][]float64, alpha float64) ([][]float64, bool, error) {
	L, err := Cholesky(m)
	if err == nil {
		return L, false, nil
	}
	if !errors.IsKind(err, errors.KindNonPositiveDefinite) {
		return nil, false, err
	}

	if a := gershgorinAlpha(m); a > alpha {
		alpha = a
	}
	L, err = Cholesky(Regularize(m, alpha))
	if err != nil {
		return nil, true, errors.WithKind(
			errors.Wrap(err, "matrix remains non-positive-definite after ridge regularization"),
			errors.KindValidation,
		)
	}
	return L, true, nil
}

// gershgorinAlpha returns the smallest ridge weight that moves every
// Gershgorin eigenvalue bound strictly above zero. Returns 0 when the
// bounds are already positive.
func gershgorinAlpha(m [][]float64) float64 {
	lower := math.Inf(1)
	for i := range m {
		radius := 0.0
		for j := range m[i] {
			if i != j {
				radius += math.Abs(m[i][j])
			}
		}
		if b := m[i][i] - radius; b < lower {
			lower = b
		}
	}
	if lower > 0 {
		return 0
	}
	const margin = 0.01
	return (-lower + margin) / (1 - lower)
}

// MultiplyVector computes m * v
func MultiplyVector(m [][]float64, v []float64) []float64 {
	out := make([]float64, len(m))
	for i := range m {
		sum := 0.0
		for j := range v {
			sum += m[i][j] * v[j]
		}
		out[i] = sum
	}
	return out
}
