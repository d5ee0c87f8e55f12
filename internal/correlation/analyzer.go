// Package correlation builds correlation matrices from realized return
// history, extracts their principal components, and measures portfolio
// concentration, diversification and per-position risk contributions.
package correlation

import (
	"math"
	"sort"
	"time"

	"github.com/quantrisk/risk-engine/internal/linalg"
	"github.com/quantrisk/risk-engine/internal/simulation"
	"github.com/quantrisk/risk-engine/internal/stats"
	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
	"github.com/quantrisk/risk-engine/pkg/utils/logger"
)

const (
	// defaultComponents is the number of eigenpairs extracted when a
	// request leaves NumComponents unset
	defaultComponents = 5
	// minObservations is the shortest return history accepted
	minObservations = 2
)

// groupDimensions are the category dimensions the analyzer can aggregate by
var groupDimensions = map[string]func(*models.Position) string{
	"assetClass": func(p *models.Position) string { return string(p.AssetClass) },
	"sector":     func(p *models.Position) string { return p.Sector },
	"geography":  func(p *models.Position) string { return p.Geography },
}

// Analyzer computes correlation and concentration analytics. Stateless
// between calls; safe for concurrent use.
type Analyzer struct {
	log *logger.Logger
}

// NewAnalyzer creates a correlation analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{log: logger.GetLogger("correlation.analyzer")}
}

// Analyze runs the full correlation study: position-level and category-level
// correlation matrices with PCA, concentration metrics, and Euler risk
// contributions against the realized covariance of the supplied history.
func (a *Analyzer) Analyze(portfolio *models.PortfolioSnapshot, historicalReturns map[string][]float64, opts models.CorrelationAnalysisOptions) (*models.CorrelationAnalysisResult, error) {
	start := time.Now()

	if err := portfolio.Validate(); err != nil {
		return nil, err
	}
	symbols, series, err := alignedSeries(portfolio, historicalReturns)
	if err != nil {
		return nil, err
	}
	for _, dim := range opts.GroupBy {
		if _, ok := groupDimensions[dim]; !ok {
			return nil, errors.Validationf("groupBy", "unknown grouping dimension %q", dim)
		}
	}

	components := opts.NumComponents
	if components <= 0 {
		components = defaultComponents
	}

	positionMatrix, err := buildCorrelationMatrix(symbols, series, components)
	if err != nil {
		return nil, err
	}

	result := &models.CorrelationAnalysisResult{
		PortfolioID:    portfolio.PortfolioID,
		AsOfDate:       portfolio.AsOfDate,
		PositionMatrix: positionMatrix,
		Concentration:  concentration(portfolio, opts.GroupBy),
	}

	if len(opts.GroupBy) > 0 {
		result.CategoryMatrices = make(map[string]models.CorrelationMatrix, len(opts.GroupBy))
		for _, dim := range opts.GroupBy {
			names, categorySeries := categoryReturnSeries(portfolio, historicalReturns, dim)
			if len(names) < 2 {
				// A single category has no pairwise structure to report
				continue
			}
			matrix, err := buildCorrelationMatrix(names, categorySeries, components)
			if err != nil {
				return nil, err
			}
			result.CategoryMatrices[dim] = matrix
		}
	}

	a.riskDecomposition(portfolio, symbols, series, result)

	a.log.Infof("analyzed correlations for portfolio %s (%d assets, %d observations) in %v",
		portfolio.PortfolioID, len(symbols), len(series[0]), time.Since(start))
	return result, nil
}

// alignedSeries collects one return series per distinct symbol, in first-
// appearance position order, enforcing equal lengths
func alignedSeries(portfolio *models.PortfolioSnapshot, historicalReturns map[string][]float64) ([]string, [][]float64, error) {
	if len(historicalReturns) == 0 {
		return nil, nil, errors.InsufficientData("no historical returns supplied")
	}

	var symbols []string
	seen := make(map[string]bool)
	for i := range portfolio.Positions {
		sym := portfolio.Positions[i].Symbol
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}

	series := make([][]float64, len(symbols))
	length := -1
	for i, sym := range symbols {
		s, ok := historicalReturns[sym]
		if !ok {
			return nil, nil, errors.Validationf("historicalReturns", "no return series for symbol %q", sym)
		}
		if length == -1 {
			length = len(s)
		} else if len(s) != length {
			return nil, nil, errors.Validationf("historicalReturns", "return series for %q has %d days, expected %d", sym, len(s), length)
		}
		series[i] = s
	}
	if length < minObservations {
		return nil, nil, errors.InsufficientData("correlation analysis requires at least 2 return observations")
	}
	return symbols, series, nil
}

// buildCorrelationMatrix computes the pairwise Pearson matrix and its
// principal components
func buildCorrelationMatrix(names []string, series [][]float64, components int) (models.CorrelationMatrix, error) {
	n := len(names)
	matrix := make([][]float64, n)
	for i := 0; i < n; i++ {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rho := stats.PearsonCorrelation(series[i], series[j])
			matrix[i][j] = rho
			matrix[j][i] = rho
		}
	}

	if components > n {
		components = n
	}
	pairs, err := linalg.SymmetricEigen(matrix, components, nil)
	if err != nil {
		return models.CorrelationMatrix{}, err
	}

	// The trace of a correlation matrix equals its dimension, so each
	// eigenvalue's share of n is its variance explained
	eigenvalues := make([]float64, len(pairs))
	principals := make([]models.PrincipalComponent, len(pairs))
	cumulative := 0.0
	for i, p := range pairs {
		explained := p.Eigenvalue / float64(n)
		cumulative += explained
		eigenvalues[i] = p.Eigenvalue
		principals[i] = models.PrincipalComponent{
			Eigenvalue:                  p.Eigenvalue,
			VarianceExplained:           explained,
			CumulativeVarianceExplained: cumulative,
			Loadings:                    p.Eigenvector,
			Converged:                   p.Converged,
		}
	}

	return models.CorrelationMatrix{
		Assets:              names,
		Matrix:              matrix,
		Eigenvalues:         eigenvalues,
		PrincipalComponents: principals,
	}, nil
}

// categoryReturnSeries aggregates position series into category series
// weighted by market-value share within each category
func categoryReturnSeries(portfolio *models.PortfolioSnapshot, historicalReturns map[string][]float64, dimension string) ([]string, [][]float64) {
	classify := groupDimensions[dimension]

	categoryValue := make(map[string]float64)
	var order []string
	for i := range portfolio.Positions {
		cat := classify(&portfolio.Positions[i])
		if _, ok := categoryValue[cat]; !ok {
			order = append(order, cat)
		}
		categoryValue[cat] += math.Abs(portfolio.Positions[i].MarketValue)
	}

	var length int
	for i := range portfolio.Positions {
		length = len(historicalReturns[portfolio.Positions[i].Symbol])
		break
	}

	series := make([][]float64, len(order))
	index := make(map[string]int, len(order))
	for i, cat := range order {
		series[i] = make([]float64, length)
		index[cat] = i
	}
	for i := range portfolio.Positions {
		pos := &portfolio.Positions[i]
		cat := classify(pos)
		total := categoryValue[cat]
		if total == 0 {
			continue
		}
		weight := math.Abs(pos.MarketValue) / total
		for t, r := range historicalReturns[pos.Symbol] {
			series[index[cat]][t] += weight * r
		}
	}
	return order, series
}

// concentration computes the Herfindahl family of metrics from absolute
// market-value weights, plus per-dimension category weights
func concentration(portfolio *models.PortfolioSnapshot, groupBy []string) models.ConcentrationMetrics {
	gross := 0.0
	for i := range portfolio.Positions {
		gross += math.Abs(portfolio.Positions[i].MarketValue)
	}

	weights := make([]float64, len(portfolio.Positions))
	hhi := 0.0
	for i := range portfolio.Positions {
		if gross != 0 {
			weights[i] = math.Abs(portfolio.Positions[i].MarketValue) / gross
		}
		hhi += weights[i] * weights[i]
	}

	sorted := make([]float64, len(weights))
	copy(sorted, weights)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	effective := 0.0
	if hhi > 0 {
		effective = 1 / hhi
	}

	metrics := models.ConcentrationMetrics{
		HerfindahlIndex:            hhi,
		Top5Concentration:          topSum(sorted, 5),
		Top10Concentration:         topSum(sorted, 10),
		EffectiveNumberOfPositions: effective,
	}

	for _, dim := range groupBy {
		classify, ok := groupDimensions[dim]
		if !ok {
			continue
		}
		categoryWeight := make(map[string]float64)
		var order []string
		for i := range portfolio.Positions {
			cat := classify(&portfolio.Positions[i])
			if _, seen := categoryWeight[cat]; !seen {
				order = append(order, cat)
			}
			categoryWeight[cat] += weights[i]
		}
		for _, cat := range order {
			metrics.CategoryConcentrations = append(metrics.CategoryConcentrations, models.CategoryConcentration{
				Dimension: dim,
				Category:  cat,
				Weight:    categoryWeight[cat],
			})
		}
	}
	return metrics
}

func topSum(sortedDesc []float64, n int) float64 {
	if n > len(sortedDesc) {
		n = len(sortedDesc)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += sortedDesc[i]
	}
	return sum
}

// riskDecomposition derives annualized portfolio volatility from the sample
// covariance of the aligned series, then splits it into Euler contributions
// that sum back to the portfolio volatility. The diversification ratio
// compares the weighted average of standalone vols against the portfolio
// vol, and effective bets come from the eigenvalue spectrum.
func (a *Analyzer) riskDecomposition(portfolio *models.PortfolioSnapshot, symbols []string, series [][]float64, result *models.CorrelationAnalysisResult) {
	n := len(symbols)

	index := make(map[string]int, n)
	for i, sym := range symbols {
		index[sym] = i
	}
	total := portfolio.TotalValue()
	if total == 0 {
		return
	}
	assetWeights := make([]float64, n)
	for i := range portfolio.Positions {
		assetWeights[index[portfolio.Positions[i].Symbol]] += portfolio.Positions[i].MarketValue / total
	}

	// Sample covariance of daily returns, annualized
	cov := make([][]float64, n)
	for i := 0; i < n; i++ {
		cov[i] = make([]float64, n)
		for j := 0; j <= i; j++ {
			c := sampleCovariance(series[i], series[j]) * simulation.TradingDaysPerYear
			cov[i][j] = c
			cov[j][i] = c
		}
	}

	variance := 0.0
	marginal := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			marginal[i] += cov[i][j] * assetWeights[j]
		}
		variance += assetWeights[i] * marginal[i]
	}
	if variance <= 0 {
		// Degenerate history, e.g. constant return series. The Euler split
		// divides by portfolio volatility, so record the failure per entry
		// instead of dropping the decomposition without a trace.
		a.log.Warnf("portfolio variance %v is not positive, risk contributions undefined", variance)
		instability := errors.NumericalInstability("portfolio volatility is zero, risk contribution undefined").Error()
		contributions := make([]models.RiskContribution, len(portfolio.Positions))
		for i := range portfolio.Positions {
			pos := &portfolio.Positions[i]
			contributions[i] = models.RiskContribution{
				PositionID: pos.ID,
				Symbol:     pos.Symbol,
				Weight:     pos.MarketValue / total,
				Error:      instability,
			}
		}
		result.RiskContributions = contributions
		return
	}
	portfolioVol := math.Sqrt(variance)
	result.PortfolioVolatility = portfolioVol

	weightedVols := 0.0
	for i := 0; i < n; i++ {
		weightedVols += math.Abs(assetWeights[i]) * math.Sqrt(cov[i][i])
	}
	if portfolioVol > 0 {
		result.DiversificationRatio = weightedVols / portfolioVol
	}

	// Effective bets from the extracted spectrum: (sum(l))^2 / sum(l^2)
	sum, sumSq := 0.0, 0.0
	for _, ev := range result.PositionMatrix.Eigenvalues {
		sum += ev
		sumSq += ev * ev
	}
	if sumSq > 0 {
		result.EffectiveBets = sum * sum / sumSq
	}

	contributions := make([]models.RiskContribution, len(portfolio.Positions))
	for i := range portfolio.Positions {
		pos := &portfolio.Positions[i]
		w := pos.MarketValue / total
		contribution := w * marginal[index[pos.Symbol]] / portfolioVol
		contributions[i] = models.RiskContribution{
			PositionID:          pos.ID,
			Symbol:              pos.Symbol,
			Weight:              w,
			Contribution:        contribution,
			ContributionPercent: 100 * contribution / portfolioVol,
		}
	}
	result.RiskContributions = contributions
}

// sampleCovariance is the population covariance of two aligned series
func sampleCovariance(xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0
	}
	meanX := stats.Mean(xs)
	meanY := stats.Mean(ys)
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += (xs[i] - meanX) * (ys[i] - meanY)
	}
	return sum / float64(n)
}
