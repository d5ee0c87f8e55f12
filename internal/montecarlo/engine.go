// Package montecarlo orchestrates independent simulation trials into a
// portfolio return distribution with VaR/CVaR, percentile and convergence
// diagnostics.
package montecarlo

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
	// DefaultNumberOfPaths is used when a caller delegates without an
	// explicit trial count
	DefaultNumberOfPaths = 10000

	convergenceBatches = 10
	// t-value for 9 degrees of freedom at 95% confidence
	tValue9DF = 2.262
)

// percentileRanks reported on every result, ascending
var percentileRanks = []int{1, 5, 10, 25, 50, 75, 90, 95, 99}

// Engine runs Monte Carlo simulations across a worker pool. Stateless
// between calls; safe for concurrent use.
type Engine struct {
	workers    int
	ridgeAlpha float64
	log        *logger.Logger
}

// NewEngine creates a Monte Carlo engine with the given worker count
func NewEngine(workers int, ridgeAlpha float64) *Engine {
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		workers:    workers,
		ridgeAlpha: ridgeAlpha,
		log:        logger.GetLogger("montecarlo.engine"),
	}
}

// Simulate runs the requested number of independent trials and aggregates
// the resulting return distribution
func (e *Engine) Simulate(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, req models.MonteCarloRequest) (*models.MonteCarloResult, error) {
	start := time.Now()

	returns, err := e.SimulateDistribution(portfolio, model, req)
	if err != nil {
		return nil, err
	}

	result := aggregate(returns, req)
	result.PortfolioID = portfolio.PortfolioID

	e.log.Infof("simulated %d paths for portfolio %s in %v (converged=%t)",
		req.NumberOfPaths, portfolio.PortfolioID, time.Since(start), result.Convergence.HasConverged)
	return result, nil
}

// SimulateDistribution runs the trials and returns the raw per-trial
// portfolio returns in trial order. The VaR engine uses this directly for
// confidence levels outside the fixed 95/99 reporting pair.
func (e *Engine) SimulateDistribution(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel, req models.MonteCarloRequest) ([]float64, error) {
	if err := portfolio.Validate(); err != nil {
		return nil, err
	}
	if req.NumberOfPaths < 2 {
		return nil, errors.Validationf("numberOfPaths", "at least 2 trials required, got %d", req.NumberOfPaths)
	}
	if req.TimeHorizonDays <= 0 {
		return nil, errors.Validation("timeHorizonDays", "time horizon must be positive")
	}

	weights, err := assetWeights(portfolio, model)
	if err != nil {
		return nil, err
	}

	sim, err := simulation.NewPathSimulator(model, e.ridgeAlpha)
	if err != nil {
		return nil, err
	}

	steps := req.TimeSteps
	if steps <= 0 {
		steps = req.TimeHorizonDays
	}
	cfg := simulation.Config{
		TimeSteps:     steps,
		Dt:            float64(req.TimeHorizonDays) / float64(steps) / simulation.TradingDaysPerYear,
		IncludeJumps:  req.IncludeJumpRisk,
		JumpIntensity: req.JumpIntensity,
		JumpMean:      req.JumpMean,
		JumpStdDev:    req.JumpStdDev,
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// Workers own disjoint index ranges of the shared result slice, and
	// every trial's substream depends only on (seed, trial index), so the
	// outcome is identical for any worker count.
	returns := make([]float64, req.NumberOfPaths)
	var g errgroup.Group
	chunk := (req.NumberOfPaths + e.workers - 1) / e.workers
	for w := 0; w < e.workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, req.NumberOfPaths)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for trial := lo; trial < hi; trial++ {
				rng := simulation.TrialRNG(seed, trial)
				returns[trial] = sim.SimulateTrial(weights, cfg, rng)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return returns, nil
}

// assetWeights maps position market values onto the model's asset order
func assetWeights(portfolio *models.PortfolioSnapshot, model *models.RiskFactorModel) ([]float64, error) {
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

// aggregate derives the full result record from per-trial returns
func aggregate(returns []float64, req models.MonteCarloRequest) *models.MonteCarloResult {
	n := len(returns)

	sorted := make([]float64, n)
	copy(sorted, returns)
	sort.Float64s(sorted)

	var95, cvar95 := tailRisk(sorted, 0.95)
	var99, cvar99 := tailRisk(sorted, 0.99)

	percentiles := make([]models.PercentileEntry, 0, len(percentileRanks))
	for _, rank := range percentileRanks {
		percentiles = append(percentiles, models.PercentileEntry{
			Rank:   rank,
			Return: stats.Percentile(returns, float64(rank)),
		})
	}

	losses := 0
	for _, r := range returns {
		if r < 0 {
			losses++
		}
	}

	return &models.MonteCarloResult{
		NumberOfPaths:     n,
		TimeHorizonDays:   req.TimeHorizonDays,
		ExpectedReturn:    stats.Mean(returns),
		StandardDeviation: stats.StdDev(returns),
		Skewness:          stats.Skewness(returns),
		Kurtosis:          stats.Kurtosis(returns),
		VaR95:             var95,
		VaR99:             var99,
		CVaR95:            cvar95,
		CVaR99:            cvar99,
		Percentiles:       percentiles,
		MaxDrawdown:       math.Abs(math.Min(sorted[0], 0)),
		ProbabilityOfLoss: 100 * float64(losses) / float64(n),
		Convergence:       batchMeansConvergence(returns),
	}
}

// tailRisk returns (VaR, CVaR) at the given confidence level from a
// value-sorted return slice. Gains are clamped to zero loss, which keeps
// CVaR >= VaR for every distribution.
func tailRisk(sorted []float64, confidence float64) (float64, float64) {
	n := len(sorted)
	idx := int(math.Floor((1 - confidence) * float64(n)))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}

	varX := math.Abs(math.Min(sorted[idx], 0))

	sum := 0.0
	for i := 0; i <= idx; i++ {
		sum += sorted[i]
	}
	cvarX := math.Abs(math.Min(sum/float64(idx+1), 0))
	return varX, cvarX
}

// batchMeansConvergence partitions trial-order returns into equal batches
// and tests whether the standard error of the batch means is below 1% of
// the overall mean
func batchMeansConvergence(returns []float64) models.ConvergenceTest {
	n := len(returns)
	if n < convergenceBatches {
		return models.ConvergenceTest{
			NumBatches:         0,
			HasConverged:       false,
			ConvergenceMessage: "too few trials for the batch-means diagnostic",
		}
	}

	batchSize := n / convergenceBatches
	batchMeans := make([]float64, convergenceBatches)
	for b := 0; b < convergenceBatches; b++ {
		lo := b * batchSize
		hi := lo + batchSize
		if b == convergenceBatches-1 {
			hi = n
		}
		batchMeans[b] = stats.Mean(returns[lo:hi])
	}

	overall := stats.Mean(returns)

	// Sample standard deviation of the batch means over sqrt(batches)
	sumSq := 0.0
	for _, m := range batchMeans {
		d := m - stats.Mean(batchMeans)
		sumSq += d * d
	}
	se := math.Sqrt(sumSq/float64(convergenceBatches-1)) / math.Sqrt(convergenceBatches)

	relErr := math.Inf(1)
	if overall != 0 {
		relErr = se / math.Abs(overall)
	}

	return models.ConvergenceTest{
		NumBatches:     convergenceBatches,
		StandardError:  se,
		HasConverged:   relErr < 0.01,
		ConfidenceLow:  overall - tValue9DF*se,
		ConfidenceHigh: overall + tValue9DF*se,
		RelativeError:  relErr,
	}
}
