package models

import (
	"math"
	"time"

	"github.com/quantrisk/risk-engine/pkg/utils/errors"
)

// AssetClass identifies the broad instrument category of a position
type AssetClass string

const (
	AssetClassEquity      AssetClass = "EQUITY"
	AssetClassFixedIncome AssetClass = "FIXED_INCOME"
	AssetClassCommodity   AssetClass = "COMMODITY"
	AssetClassCash        AssetClass = "CASH"
	AssetClassOption      AssetClass = "OPTION"
	AssetClassAlternative AssetClass = "ALTERNATIVE"
)

// Position is a single immutable holding row within a portfolio snapshot.
// It is owned by the portfolio-data collaborator and read-only to the engines.
type Position struct {
	ID           string     `json:"id"`
	InstrumentID string     `json:"instrumentId"`
	Symbol       string     `json:"symbol"`
	MarketValue  float64    `json:"marketValue"`
	AssetClass   AssetClass `json:"assetClass"`
	Sector       string     `json:"sector"`
	Geography    string     `json:"geography"`
	Currency     string     `json:"currency"`
	MaturityDate *time.Time `json:"maturityDate,omitempty"`
	CreditRating string     `json:"creditRating,omitempty"`
}

// PortfolioSnapshot is the set of positions of a portfolio as of a date.
// AsOfDate is fixed for the lifetime of a calculation.
type PortfolioSnapshot struct {
	PortfolioID string     `json:"portfolioId"`
	AsOfDate    time.Time  `json:"asOfDate"`
	Positions   []Position `json:"positions"`
}

// Validate checks the snapshot invariants: positions non-empty and total
// market value finite. Net short books (negative totals) are allowed.
func (p *PortfolioSnapshot) Validate() error {
	if len(p.Positions) == 0 {
		return errors.Validation("positions", "portfolio snapshot has no positions")
	}
	total := 0.0
	for i := range p.Positions {
		mv := p.Positions[i].MarketValue
		if math.IsNaN(mv) || math.IsInf(mv, 0) {
			return errors.Validationf("positions", "position %s has non-finite market value", p.Positions[i].ID)
		}
		total += mv
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return errors.Validation("positions", "total market value is not finite")
	}
	return nil
}

// TotalValue returns the signed sum of position market values
func (p *PortfolioSnapshot) TotalValue() float64 {
	total := 0.0
	for i := range p.Positions {
		total += p.Positions[i].MarketValue
	}
	return total
}

// Weights returns market-value fractions per position, in position order.
// Weights sum to 1 for any portfolio with non-zero total value.
func (p *PortfolioSnapshot) Weights() []float64 {
	total := p.TotalValue()
	weights := make([]float64, len(p.Positions))
	if total == 0 {
		return weights
	}
	for i := range p.Positions {
		weights[i] = p.Positions[i].MarketValue / total
	}
	return weights
}

// WithoutPosition returns a copy of the snapshot excluding one position.
// Used by leave-one-out VaR decompositions; the receiver is not modified.
func (p *PortfolioSnapshot) WithoutPosition(positionID string) *PortfolioSnapshot {
	filtered := make([]Position, 0, len(p.Positions))
	for i := range p.Positions {
		if p.Positions[i].ID != positionID {
			filtered = append(filtered, p.Positions[i])
		}
	}
	return &PortfolioSnapshot{
		PortfolioID: p.PortfolioID,
		AsOfDate:    p.AsOfDate,
		Positions:   filtered,
	}
}

// symmetryTolerance is the maximum allowed |M[i][j]-M[j][i]| in a
// correlation matrix
const symmetryTolerance = 1e-9

// RiskFactorModel holds per-asset return statistics and the correlation
// matrix used by the simulation and parametric engines. Derived fresh per
// request and never mutated after construction.
type RiskFactorModel struct {
	AssetIDs          []string    `json:"assetIds"`
	ExpectedReturns   []float64   `json:"expectedReturns"`
	Volatilities      []float64   `json:"volatilities"`
	CorrelationMatrix [][]float64 `json:"correlationMatrix"`
}

// NumAssets returns the number of assets in the model
func (m *RiskFactorModel) NumAssets() int {
	return len(m.AssetIDs)
}

// Validate checks array-length agreement and that the correlation matrix is
// square, symmetric and unit-diagonal. Positive semi-definiteness is
// enforced downstream by Cholesky factorization.
func (m *RiskFactorModel) Validate() error {
	n := len(m.AssetIDs)
	if n == 0 {
		return errors.Validation("assetIds", "risk factor model has no assets")
	}
	if len(m.ExpectedReturns) != n {
		return errors.Validationf("expectedReturns", "expected %d entries, got %d", n, len(m.ExpectedReturns))
	}
	if len(m.Volatilities) != n {
		return errors.Validationf("volatilities", "expected %d entries, got %d", n, len(m.Volatilities))
	}
	if len(m.CorrelationMatrix) != n {
		return errors.Validationf("correlationMatrix", "expected %d rows, got %d", n, len(m.CorrelationMatrix))
	}
	for i := 0; i < n; i++ {
		if len(m.CorrelationMatrix[i]) != n {
			return errors.Validationf("correlationMatrix", "row %d has %d columns, expected %d", i, len(m.CorrelationMatrix[i]), n)
		}
		if math.Abs(m.CorrelationMatrix[i][i]-1.0) > symmetryTolerance {
			return errors.Validationf("correlationMatrix", "diagonal entry [%d][%d] is %.6f, expected 1", i, i, m.CorrelationMatrix[i][i])
		}
		for j := 0; j < i; j++ {
			if math.Abs(m.CorrelationMatrix[i][j]-m.CorrelationMatrix[j][i]) > symmetryTolerance {
				return errors.Validationf("correlationMatrix", "matrix is not symmetric at [%d][%d]", i, j)
			}
		}
	}
	return nil
}

// CovarianceMatrix builds the covariance matrix Cov[i][j] = rho_ij*s_i*s_j
func (m *RiskFactorModel) CovarianceMatrix() [][]float64 {
	n := m.NumAssets()
	cov := make([][]float64, n)
	for i := 0; i < n; i++ {
		cov[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			cov[i][j] = m.CorrelationMatrix[i][j] * m.Volatilities[i] * m.Volatilities[j]
		}
	}
	return cov
}
