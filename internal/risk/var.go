// Package risk implements Value-at-Risk calculation under the parametric,
// historical-simulation and Monte Carlo methodologies, with component,
// marginal and incremental decompositions and statistical backtesting.
package risk

import (
	"math"
	"sort"
	"time"

	"github.com/quantrisk/risk-engine/internal/montecarlo"
	"github.com/quantrisk/risk-engine/internal/simulation"
	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
	"github.com/quantrisk/risk-engine/pkg/utils/logger"
)

// MinHistoricalDays is the smallest return history accepted by the
// historical-simulation method
const MinHistoricalDays = 30

// VaREngineConfig contains configuration for the VaR engine
type VaREngineConfig struct {
	// Workers bounds the leave-one-out decomposition pool
	Workers int
	// SimulationPaths is the trial count for the Monte Carlo method
	SimulationPaths int
}

// VaREngine computes Value at Risk. It holds no per-request state and is
// safe for concurrent use.
type VaREngine struct {
	config VaREngineConfig
	mc     *montecarlo.Engine
	log    *logger.Logger
}

// NewVaREngine creates a VaR engine delegating Monte Carlo work to mc
func NewVaREngine(config VaREngineConfig, mc *montecarlo.Engine) *VaREngine {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.SimulationPaths <= 0 {
		config.SimulationPaths = montecarlo.DefaultNumberOfPaths
	}
	return &VaREngine{
		config: config,
		mc:     mc,
		log:    logger.GetLogger("risk.var"),
	}
}

// CalculateVaR computes the headline VaR for the requested method plus the
// component/marginal/incremental decompositions and, when a backtest period
// is set, the Kupiec and Christoffersen backtests.
// historicalReturns maps asset symbols to aligned daily return series; it is
// required for the historical method and for backtesting.
func (e *VaREngine) CalculateVaR(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, historicalReturns map[string][]float64, req models.VaRRequest) (*models.VaRResult, error) {
	start := time.Now()

	if err := portfolio.Validate(); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	switch req.Method {
	case models.VaRMethodParametric, models.VaRMethodHistorical, models.VaRMethodMonteCarlo:
	default:
		return nil, errors.Unsupported("unsupported VaR method: " + string(req.Method))
	}
	if !models.IsSupportedConfidenceLevel(req.ConfidenceLevel) {
		return nil, errors.Validationf("confidenceLevel", "confidence level %.4f not in {0.95, 0.99, 0.999}", req.ConfidenceLevel)
	}
	if req.TimeHorizonDays <= 0 {
		req.TimeHorizonDays = 1
	}

	headline, err := e.headlineVaR(portfolio, model, historicalReturns, req)
	if err != nil {
		return nil, err
	}

	undiversified, err := e.undiversifiedVaR(portfolio, model, historicalReturns, req)
	if err != nil {
		return nil, err
	}
	if undiversified < headline {
		// Sampling noise can nudge the additive sum below the headline by
		// a hair; the additive model itself cannot
		undiversified = headline
	}

	result := &models.VaRResult{
		PortfolioID:            portfolio.PortfolioID,
		AsOfDate:               portfolio.AsOfDate,
		Method:                 req.Method,
		ConfidenceLevel:        req.ConfidenceLevel,
		TimeHorizonDays:        req.TimeHorizonDays,
		PortfolioValue:         portfolio.TotalValue(),
		TotalVaR:               headline,
		DiversifiedVaR:         headline,
		UndiversifiedVaR:       undiversified,
		DiversificationBenefit: undiversified - headline,
	}

	result.ComponentVaRs = e.componentVaR(portfolio, model, historicalReturns, req)
	result.MarginalVaRs, result.IncrementalVaRs = e.leaveOneOutVaR(portfolio, model, historicalReturns, req, headline)

	if req.BacktestPeriod > 0 {
		backtest, err := e.backtest(portfolio, historicalReturns, req, headline)
		if err != nil {
			return nil, err
		}
		result.Backtest = backtest
		result.ModelAccuracy = 1 - math.Abs(backtest.ExceptionRate-backtest.ExpectedRate)
	}

	e.log.Infof("calculated %s VaR for portfolio %s: %.2f at %.1f%% over %dd in %v",
		req.Method, portfolio.PortfolioID, headline, req.ConfidenceLevel*100, req.TimeHorizonDays, time.Since(start))
	return result, nil
}

// headlineVaR dispatches to exactly one method path
func (e *VaREngine) headlineVaR(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, historicalReturns map[string][]float64, req models.VaRRequest) (float64, error) {
	switch req.Method {
	case models.VaRMethodParametric:
		return e.parametricVaR(portfolio, model, req)
	case models.VaRMethodHistorical:
		return e.historicalVaR(portfolio, historicalReturns, req)
	case models.VaRMethodMonteCarlo:
		return e.monteCarloVaR(portfolio, model, req)
	default:
		return 0, errors.Unsupported("unsupported VaR method: " + string(req.Method))
	}
}

// parametricVaR computes portfolio variance w^T*Sigma*w from annualized
// inputs, rescales to the horizon and applies the fixed z-score
func (e *VaREngine) parametricVaR(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, req models.VaRRequest) (float64, error) {
	weights, err := modelWeights(portfolio, model)
	if err != nil {
		return 0, err
	}

	cov := model.CovarianceMatrix()
	variance := 0.0
	for i := range weights {
		for j := range weights {
			variance += weights[i] * cov[i][j] * weights[j]
		}
	}
	if variance < 0 {
		variance = 0
	}

	annualVol := math.Sqrt(variance)
	horizonVol := annualVol * math.Sqrt(float64(req.TimeHorizonDays)/simulation.TradingDaysPerYear)
	return math.Abs(portfolio.TotalValue()) * horizonVol * models.ZScores[req.ConfidenceLevel], nil
}

// historicalVaR replays realized per-asset returns under current weights
// and takes the empirical quantile
func (e *VaREngine) historicalVaR(portfolio *models.PortfolioSnapshot, historicalReturns map[string][]float64, req models.VaRRequest) (float64, error) {
	series, err := portfolioReturnHistory(portfolio, historicalReturns)
	if err != nil {
		return 0, err
	}
	if len(series) < MinHistoricalDays {
		return 0, errors.InsufficientData("historical simulation requires at least 30 aligned return days")
	}

	sorted := make([]float64, len(series))
	copy(sorted, series)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - req.ConfidenceLevel) * float64(len(sorted))))
	if idx < 0 {
		idx = 0
	}
	quantile := math.Abs(math.Min(sorted[idx], 0))
	return quantile * math.Abs(portfolio.TotalValue()) * math.Sqrt(float64(req.TimeHorizonDays)), nil
}

// monteCarloVaR delegates to the Monte Carlo engine and extracts the
// requested quantile from the simulated distribution
func (e *VaREngine) monteCarloVaR(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, req models.VaRRequest) (float64, error) {
	paths := req.NumberOfPaths
	if paths <= 0 {
		paths = e.config.SimulationPaths
	}
	returns, err := e.mc.SimulateDistribution(portfolio, model, models.MonteCarloRequest{
		NumberOfPaths:   paths,
		TimeHorizonDays: req.TimeHorizonDays,
		Seed:            req.Seed,
	})
	if err != nil {
		return 0, err
	}

	sort.Float64s(returns)
	idx := int(math.Floor((1 - req.ConfidenceLevel) * float64(len(returns))))
	if idx < 0 {
		idx = 0
	}
	quantile := math.Abs(math.Min(returns[idx], 0))
	return quantile * math.Abs(portfolio.TotalValue()), nil
}

// undiversifiedVaR sums standalone single-position VaRs under the same
// method: the additive sub-portfolio model against which diversification
// benefit is measured
func (e *VaREngine) undiversifiedVaR(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, historicalReturns map[string][]float64, req models.VaRRequest) (float64, error) {
	sum := 0.0
	for i := range portfolio.Positions {
		single := &models.PortfolioSnapshot{
			PortfolioID: portfolio.PortfolioID,
			AsOfDate:    portfolio.AsOfDate,
			Positions:   []models.Position{portfolio.Positions[i]},
		}
		v, err := e.headlineVaR(single, model, historicalReturns, req)
		if err != nil {
			return 0, errors.Wrapf(err, "standalone VaR for position %s", portfolio.Positions[i].ID)
		}
		sum += v
	}
	return sum, nil
}

// modelWeights maps position market values onto the factor model's asset
// order as fractions of total portfolio value
func modelWeights(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel) ([]float64, error) {
	index := make(map[string]int, model.NumAssets())
	for i, id := range model.AssetIDs {
		index[id] = i
	}

	total := portfolio.TotalValue()
	if total == 0 {
		return nil, errors.Validation("positions", "portfolio has zero total market value")
	}

	weights := make([]float64, model.NumAssets())
	for i := range portfolio.Positions {
		pos := &portfolio.Positions[i]
		idx, ok := index[pos.Symbol]
		if !ok {
			return nil, errors.Validationf("assetIds", "position %s has no asset %q in the factor model", pos.ID, pos.Symbol)
		}
		weights[idx] += pos.MarketValue / total
	}
	return weights, nil
}

// portfolioReturnHistory applies current market-value weights to each
// historical day's per-asset returns
func portfolioReturnHistory(portfolio *models.PortfolioSnapshot, historicalReturns map[string][]float64) ([]float64, error) {
	if len(historicalReturns) == 0 {
		return nil, errors.InsufficientData("no historical returns supplied")
	}

	total := portfolio.TotalValue()
	if total == 0 {
		return nil, errors.Validation("positions", "portfolio has zero total market value")
	}

	length := -1
	for i := range portfolio.Positions {
		series, ok := historicalReturns[portfolio.Positions[i].Symbol]
		if !ok {
			return nil, errors.Validationf("historicalReturns", "no return series for symbol %q", portfolio.Positions[i].Symbol)
		}
		if length == -1 {
			length = len(series)
		} else if len(series) != length {
			return nil, errors.Validationf("historicalReturns", "return series for %q has %d days, expected %d", portfolio.Positions[i].Symbol, len(series), length)
		}
	}

	out := make([]float64, length)
	for i := range portfolio.Positions {
		pos := &portfolio.Positions[i]
		weight := pos.MarketValue / total
		for t, r := range historicalReturns[pos.Symbol] {
			out[t] += weight * r
		}
	}
	return out, nil
}
