// Package simulation generates correlated asset-return paths for the Monte
// Carlo engine: geometric Brownian motion driven by Cholesky-correlated
// normal shocks, with an optional compound-Poisson jump component.
package simulation

import (
	"math"
	"math/rand"

	"github.com/quantrisk/risk-engine/internal/linalg"
	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/logger"
)

// TradingDaysPerYear converts annualized model inputs to daily steps
const TradingDaysPerYear = 252.0

// Config controls one simulation trial
type Config struct {
	// TimeSteps is the number of discrete steps per trial
	TimeSteps int
	// Dt is the step size in years (1/252 for daily steps)
	Dt float64
	// Jump component: Bernoulli(JumpIntensity*Dt) per step, jump size
	// drawn from Normal(JumpMean, JumpStdDev)
	IncludeJumps  bool
	JumpIntensity float64
	JumpMean      float64
	JumpStdDev    float64
}

// PathSimulator produces simulated portfolio returns for a fixed factor
// model. The correlation matrix is factored once at construction; the
// simulator itself holds no mutable state and is safe for concurrent use
// as long as each trial receives its own RNG.
type PathSimulator struct {
	model       *models.RiskFactorModel
	chol        [][]float64
	regularized bool
	log         *logger.Logger
}

// NewPathSimulator validates the factor model and factors its correlation
// matrix, applying the ridge-regularization policy on failure.
func NewPathSimulator(model *models.RiskFactorModel, ridgeAlpha float64) (*PathSimulator, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if ridgeAlpha <= 0 {
		ridgeAlpha = linalg.DefaultRidgeAlpha
	}

	log := logger.GetLogger("simulation.paths")
	chol, regularized, err := linalg.CholeskyWithRegularization(model.CorrelationMatrix, ridgeAlpha)
	if err != nil {
		return nil, err
	}
	if regularized {
		log.Warnf("correlation matrix for %d assets required ridge regularization before factorization", model.NumAssets())
	}

	return &PathSimulator{
		model:       model,
		chol:        chol,
		regularized: regularized,
		log:         log,
	}, nil
}

// Regularized reports whether the correlation matrix needed repair
func (s *PathSimulator) Regularized() bool {
	return s.regularized
}

// NumAssets returns the number of assets in the underlying model
func (s *PathSimulator) NumAssets() int {
	return s.model.NumAssets()
}

// SimulateTrial runs one full path and returns the portfolio return for
// the trial. weights are market-value fractions aligned with the model's
// assets; they are read, never modified. The supplied RNG fully determines
// the output, which is what makes trials reproducible under parallelism.
func (s *PathSimulator) SimulateTrial(weights []float64, cfg Config, rng *rand.Rand) float64 {
	n := s.model.NumAssets()

	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 1.0
	}

	eps := make([]float64, n)
	for step := 0; step < cfg.TimeSteps; step++ {
		for i := 0; i < n; i++ {
			eps[i] = boxMuller(rng)
		}
		shocks := linalg.MultiplyVector(s.chol, eps)

		for i := 0; i < n; i++ {
			mu := s.model.ExpectedReturns[i]
			sigma := s.model.Volatilities[i]

			drift := (mu - 0.5*sigma*sigma) * cfg.Dt
			diffusion := sigma * math.Sqrt(cfg.Dt) * shocks[i]

			jump := 0.0
			if cfg.IncludeJumps && rng.Float64() < cfg.JumpIntensity*cfg.Dt {
				jump = cfg.JumpMean + cfg.JumpStdDev*boxMuller(rng)
			}

			prices[i] *= math.Exp(drift + diffusion + jump)
		}
	}

	initial := 0.0
	final := 0.0
	for i := 0; i < n; i++ {
		initial += weights[i]
		final += weights[i] * prices[i]
	}
	if initial == 0 {
		return 0
	}
	return (final - initial) / initial
}

// TrialRNG derives the independently seeded substream for one trial. The
// substream depends only on the master seed and the trial index, so results
// are identical regardless of worker count or scheduling order.
func TrialRNG(masterSeed int64, trialIndex int) *rand.Rand {
	return rand.New(rand.NewSource(masterSeed ^ int64(trialIndex)))
}

// boxMuller draws one standard normal variate from two uniform draws
func boxMuller(rng *rand.Rand) float64 {
	u1 := rng.Float64()
	for u1 == 0 {
		u1 = rng.Float64()
	}
	u2 := rng.Float64()
	return math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
}
