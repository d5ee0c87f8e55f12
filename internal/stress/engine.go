// Package stress applies hypothetical and historical factor-shock scenarios
// to portfolio snapshots: per-position impacts through asset-class
// sensitivities, stressed VaR and volatility under correlation uplift, and
// cross-scenario factor attribution.
package stress

import (
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantrisk/risk-engine/internal/simulation"
	"github.com/quantrisk/risk-engine/internal/stats"
	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
	"github.com/quantrisk/risk-engine/pkg/utils/logger"
)

const (
	// correlationUplift is added to every off-diagonal correlation under
	// stress, capped at 1. Crises push correlations toward one.
	correlationUplift = 0.25
	// scenarioVaRZScore is the 95% one-sided normal quantile used for the
	// one-day stressed VaR figure
	scenarioVaRZScore = 1.645
)

// Engine runs stress scenarios across a worker pool. Stateless between
// calls; safe for concurrent use.
type Engine struct {
	workers int
	log     *logger.Logger
}

// NewEngine creates a stress engine with the given worker count
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		workers: workers,
		log:     logger.GetLogger("stress.engine"),
	}
}

// RunStressTest evaluates every requested scenario against the portfolio.
// Scenarios are independent and run concurrently; results keep request
// order, with library scenarios appended when IncludeHistorical is set.
func (e *Engine) RunStressTest(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, req models.StressTestRequest) (*models.StressTestResult, error) {
	start := time.Now()

	if err := portfolio.Validate(); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}

	scenarios := make([]models.StressScenario, 0, len(req.Scenarios)+3)
	scenarios = append(scenarios, req.Scenarios...)
	if req.IncludeHistorical {
		scenarios = append(scenarios, HistoricalScenarios()...)
	}
	if len(scenarios) == 0 {
		return nil, errors.Validation("scenarios", "stress test requires at least one scenario")
	}
	for i := range scenarios {
		if scenarios[i].ID == "" {
			return nil, errors.Validationf("scenarios", "scenario %d has no id", i)
		}
		if len(scenarios[i].FactorShocks) == 0 {
			return nil, errors.Validationf("scenarios", "scenario %s has no factor shocks", scenarios[i].ID)
		}
	}

	weights, err := modelWeights(portfolio, model)
	if err != nil {
		return nil, err
	}

	results := make([]models.ScenarioResult, len(scenarios))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range scenarios {
		g.Go(func() error {
			results[i] = e.runScenario(portfolio, model, weights, scenarios[i])
			return nil
		})
	}
	_ = g.Wait()

	worst := ""
	worstChange := math.Inf(1)
	for i := range results {
		if results[i].PortfolioChange < worstChange {
			worstChange = results[i].PortfolioChange
			worst = results[i].ScenarioID
		}
	}

	result := &models.StressTestResult{
		PortfolioID:         portfolio.PortfolioID,
		AsOfDate:            portfolio.AsOfDate,
		ScenarioResults:     results,
		WorstScenarioID:     worst,
		FactorSensitivities: factorSensitivities(scenarios, results),
	}

	e.log.Infof("ran %d stress scenarios for portfolio %s in %v (worst=%s)",
		len(scenarios), portfolio.PortfolioID, time.Since(start), worst)
	return result, nil
}

// runScenario applies one scenario's shocks to every position and derives
// the stressed risk figures
func (e *Engine) runScenario(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, weights []float64, scenario models.StressScenario) models.ScenarioResult {
	totalValue := portfolio.TotalValue()

	impacts := make([]models.PositionImpact, len(portfolio.Positions))
	totalChange := 0.0
	for i := range portfolio.Positions {
		pos := &portfolio.Positions[i]

		fraction := 0.0
		for _, shock := range scenario.FactorShocks {
			fraction += positionSensitivity(pos, shock, portfolio.AsOfDate)
		}

		amount := fraction * pos.MarketValue
		impacts[i] = models.PositionImpact{
			PositionID:    pos.ID,
			Symbol:        pos.Symbol,
			CurrentValue:  pos.MarketValue,
			ImpactAmount:  amount,
			ImpactPercent: fraction * 100,
		}
		totalChange += amount
	}

	changePercent := 0.0
	if totalValue != 0 {
		changePercent = 100 * totalChange / totalValue
	}

	stressedCorr, changes := upliftCorrelations(model)
	stressedVol := stressedVolatility(model, stressedCorr, weights, scenario)

	return models.ScenarioResult{
		ScenarioID:              scenario.ID,
		ScenarioName:            scenario.Name,
		PortfolioValue:          totalValue,
		PortfolioChange:         totalChange,
		PortfolioChangePercent:  changePercent,
		PositionImpacts:         impacts,
		VolatilityUnderScenario: stressedVol,
		VaRUnderScenario:        math.Abs(totalValue) * stressedVol * math.Sqrt(1.0/simulation.TradingDaysPerYear) * scenarioVaRZScore,
		CorrelationChanges:      changes,
	}
}

// upliftCorrelations moves every off-diagonal correlation toward one by the
// uplift, returning the stressed matrix and the per-pair change records
func upliftCorrelations(model *models.RiskFactorModel) ([][]float64, []models.CorrelationChange) {
	n := model.NumAssets()
	stressed := make([][]float64, n)
	changes := make([]models.CorrelationChange, 0, n*(n-1)/2)

	for i := 0; i < n; i++ {
		stressed[i] = make([]float64, n)
		copy(stressed[i], model.CorrelationMatrix[i])
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			base := model.CorrelationMatrix[i][j]
			up := math.Min(base+correlationUplift, 1.0)
			stressed[i][j] = up
			stressed[j][i] = up
			changes = append(changes, models.CorrelationChange{
				Asset1:              model.AssetIDs[i],
				Asset2:              model.AssetIDs[j],
				BaseCorrelation:     base,
				StressedCorrelation: up,
			})
		}
	}
	return stressed, changes
}

// stressedVolatility computes annualized portfolio volatility under the
// stressed correlations, with per-asset vols scaled up by any volatility
// shocks in the scenario
func stressedVolatility(model *models.RiskFactorModel, stressedCorr [][]float64, weights []float64, scenario models.StressScenario) float64 {
	multiplier := 1.0
	for _, shock := range scenario.FactorShocks {
		if shock.FactorType == models.FactorTypeVolatility {
			multiplier *= 1 + math.Abs(shockFraction(shock))
		}
	}

	n := model.NumAssets()
	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			si := model.Volatilities[i] * multiplier
			sj := model.Volatilities[j] * multiplier
			variance += weights[i] * weights[j] * stressedCorr[i][j] * si * sj
		}
	}
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// factorSensitivities regresses the portfolio change percentage against
// each factor's aggregate shock size across scenarios. Factors appearing in
// fewer than two scenarios are skipped.
func factorSensitivities(scenarios []models.StressScenario, results []models.ScenarioResult) []models.FactorSensitivity {
	type sample struct{ xs, ys []float64 }
	byFactor := make(map[models.FactorType]*sample)

	for i := range scenarios {
		totals := make(map[models.FactorType]float64)
		for _, shock := range scenarios[i].FactorShocks {
			totals[shock.FactorType] += shockFraction(shock)
		}
		for factor, total := range totals {
			s := byFactor[factor]
			if s == nil {
				s = &sample{}
				byFactor[factor] = s
			}
			s.xs = append(s.xs, total)
			s.ys = append(s.ys, results[i].PortfolioChangePercent)
		}
	}

	out := make([]models.FactorSensitivity, 0, len(byFactor))
	for factor, s := range byFactor {
		if len(s.xs) < 2 {
			continue
		}
		reg := stats.LinearRegression(s.xs, s.ys)
		if reg.N == 0 {
			continue
		}
		out = append(out, models.FactorSensitivity{
			FactorType:   factor,
			Sensitivity:  reg.Slope,
			RSquared:     reg.RSquared,
			Observations: reg.N,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return math.Abs(out[i].Sensitivity) > math.Abs(out[j].Sensitivity)
	})
	return out
}

// modelWeights maps position market values onto the model's asset order
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
