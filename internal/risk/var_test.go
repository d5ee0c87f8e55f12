package risk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrisk/risk-engine/internal/montecarlo"
	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
)

func newTestEngine() *VaREngine {
	return NewVaREngine(VaREngineConfig{Workers: 4}, montecarlo.NewEngine(4, 0))
}

func twoAssetPortfolio() *models.PortfolioSnapshot {
	return &models.PortfolioSnapshot{
		PortfolioID: "pf-var",
		AsOfDate:    time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		Positions: []models.Position{
			{ID: "p1", Symbol: "AAA", MarketValue: 500000, AssetClass: models.AssetClassEquity},
			{ID: "p2", Symbol: "BBB", MarketValue: 500000, AssetClass: models.AssetClassFixedIncome},
		},
	}
}

func twoAssetModel(correlation float64) *models.RiskFactorModel {
	return &models.RiskFactorModel{
		AssetIDs:        []string{"AAA", "BBB"},
		ExpectedReturns: []float64{0.06, 0.03},
		Volatilities:    []float64{0.10, 0.10},
		CorrelationMatrix: [][]float64{
			{1.0, correlation},
			{correlation, 1.0},
		},
	}
}

func TestParametricVaRTwoUncorrelatedAssets(t *testing.T) {
	// Equal weights, 10% vols, zero correlation: portfolio vol is
	// 0.10/sqrt(2) = 7.071% annualized
	engine := newTestEngine()
	result, err := engine.CalculateVaR(twoAssetPortfolio(), twoAssetModel(0.0), nil, models.VaRRequest{
		Method:          models.VaRMethodParametric,
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
	})
	require.NoError(t, err)

	expected := 1000000 * (0.10 / math.Sqrt2) * math.Sqrt(1.0/252.0) * 1.645
	assert.InDelta(t, expected, result.TotalVaR, 1e-6)
	assert.Equal(t, result.TotalVaR, result.DiversifiedVaR)
}

func TestDiversifiedNeverExceedsUndiversified(t *testing.T) {
	engine := newTestEngine()

	for _, rho := range []float64{-0.5, 0.0, 0.25, 0.8, 1.0} {
		result, err := engine.CalculateVaR(twoAssetPortfolio(), twoAssetModel(rho), nil, models.VaRRequest{
			Method:          models.VaRMethodParametric,
			ConfidenceLevel: 0.99,
			TimeHorizonDays: 10,
		})
		require.NoError(t, err, "correlation %.2f", rho)

		assert.LessOrEqual(t, result.DiversifiedVaR, result.UndiversifiedVaR, "correlation %.2f", rho)
		assert.GreaterOrEqual(t, result.DiversificationBenefit, 0.0, "correlation %.2f", rho)
	}
}

func TestHigherConfidenceRaisesVaR(t *testing.T) {
	engine := newTestEngine()
	portfolio := twoAssetPortfolio()
	model := twoAssetModel(0.3)

	var previous float64
	for _, level := range []float64{0.95, 0.99, 0.999} {
		result, err := engine.CalculateVaR(portfolio, model, nil, models.VaRRequest{
			Method:          models.VaRMethodParametric,
			ConfidenceLevel: level,
			TimeHorizonDays: 1,
		})
		require.NoError(t, err)
		assert.Greater(t, result.TotalVaR, previous, "level %.3f", level)
		previous = result.TotalVaR
	}
}

func TestUnsupportedMethodRejected(t *testing.T) {
	engine := newTestEngine()
	_, err := engine.CalculateVaR(twoAssetPortfolio(), twoAssetModel(0.0), nil, models.VaRRequest{
		Method:          "DELTA_GAMMA",
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUnsupported))
}

func TestUnsupportedConfidenceLevelRejected(t *testing.T) {
	engine := newTestEngine()
	_, err := engine.CalculateVaR(twoAssetPortfolio(), twoAssetModel(0.0), nil, models.VaRRequest{
		Method:          models.VaRMethodParametric,
		ConfidenceLevel: 0.90,
		TimeHorizonDays: 1,
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestEmptyPortfolioRejected(t *testing.T) {
	engine := newTestEngine()
	_, err := engine.CalculateVaR(&models.PortfolioSnapshot{PortfolioID: "empty"}, twoAssetModel(0.0), nil, models.VaRRequest{
		Method:          models.VaRMethodParametric,
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestHistoricalVaRMatchesEmpiricalQuantile(t *testing.T) {
	// 100 synthetic days from -5.0% to +4.9%: the 5th order statistic is
	// -4.5%, so 95% one-day VaR on 1M is 45,000
	series := make([]float64, 100)
	for i := range series {
		series[i] = float64(i-50) / 1000
	}
	portfolio := &models.PortfolioSnapshot{
		PortfolioID: "pf-hist",
		Positions:   []models.Position{{ID: "p1", Symbol: "AAA", MarketValue: 1000000, AssetClass: models.AssetClassEquity}},
	}
	history := map[string][]float64{"AAA": series}

	engine := newTestEngine()
	result, err := engine.CalculateVaR(portfolio, singleAssetModel(), history, models.VaRRequest{
		Method:          models.VaRMethodHistorical,
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
	})
	require.NoError(t, err)
	assert.InDelta(t, 45000.0, result.TotalVaR, 1e-6)
}

func TestHistoricalVaRInsufficientData(t *testing.T) {
	portfolio := &models.PortfolioSnapshot{
		PortfolioID: "pf-short",
		Positions:   []models.Position{{ID: "p1", Symbol: "AAA", MarketValue: 1000000, AssetClass: models.AssetClassEquity}},
	}
	history := map[string][]float64{"AAA": make([]float64, 20)}

	engine := newTestEngine()
	_, err := engine.CalculateVaR(portfolio, singleAssetModel(), history, models.VaRRequest{
		Method:          models.VaRMethodHistorical,
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInsufficientData))
}

func TestMonteCarloVaRReproducibleWithSeed(t *testing.T) {
	engine := newTestEngine()
	req := models.VaRRequest{
		Method:          models.VaRMethodMonteCarlo,
		ConfidenceLevel: 0.99,
		TimeHorizonDays: 5,
		NumberOfPaths:   4000,
		Seed:            424242,
	}

	first, err := engine.CalculateVaR(twoAssetPortfolio(), twoAssetModel(0.25), nil, req)
	require.NoError(t, err)
	second, err := engine.CalculateVaR(twoAssetPortfolio(), twoAssetModel(0.25), nil, req)
	require.NoError(t, err)

	assert.Equal(t, first.TotalVaR, second.TotalVaR)
	assert.Greater(t, first.TotalVaR, 0.0)
	assert.LessOrEqual(t, first.DiversifiedVaR, first.UndiversifiedVaR)
}

func TestComponentVaRDecomposition(t *testing.T) {
	engine := newTestEngine()
	result, err := engine.CalculateVaR(twoAssetPortfolio(), twoAssetModel(0.25), nil, models.VaRRequest{
		Method:          models.VaRMethodParametric,
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
	})
	require.NoError(t, err)

	require.Len(t, result.ComponentVaRs, 2)
	classes := map[models.AssetClass]bool{}
	weightSum, percentSum := 0.0, 0.0
	for _, c := range result.ComponentVaRs {
		classes[c.AssetClass] = true
		weightSum += c.Weight
		percentSum += c.PercentOfTotal
		assert.Greater(t, c.VaR, 0.0)
	}
	assert.True(t, classes[models.AssetClassEquity])
	assert.True(t, classes[models.AssetClassFixedIncome])
	assert.InDelta(t, 1.0, weightSum, 1e-9)
	assert.InDelta(t, 100.0, percentSum, 1e-9)
}

func TestLeaveOneOutDecomposition(t *testing.T) {
	engine := newTestEngine()
	result, err := engine.CalculateVaR(twoAssetPortfolio(), twoAssetModel(0.25), nil, models.VaRRequest{
		Method:          models.VaRMethodParametric,
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
	})
	require.NoError(t, err)

	require.Len(t, result.MarginalVaRs, 2)
	assert.Equal(t, result.MarginalVaRs, result.IncrementalVaRs)
	for _, m := range result.MarginalVaRs {
		assert.Empty(t, m.Error)
		assert.Greater(t, m.VaR, 0.0)
		assert.Less(t, m.VaR, result.TotalVaR)
	}
}

func TestBacktestWellCalibratedModel(t *testing.T) {
	// 13 exceptions in 250 days at the 95% level (expected 12.5), evenly
	// spaced so the independence test also passes
	series := make([]float64, 250)
	for i := range series {
		if i%20 == 0 {
			series[i] = -0.02
		} else {
			series[i] = 0.001
		}
	}
	portfolio := &models.PortfolioSnapshot{
		PortfolioID: "pf-bt",
		Positions:   []models.Position{{ID: "p1", Symbol: "AAA", MarketValue: 1000000, AssetClass: models.AssetClassEquity}},
	}
	history := map[string][]float64{"AAA": series}

	engine := newTestEngine()
	result, err := engine.CalculateVaR(portfolio, singleAssetModel(), history, models.VaRRequest{
		Method:          models.VaRMethodParametric,
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
		BacktestPeriod:  250,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Backtest)

	assert.Equal(t, 250, result.Backtest.Observations)
	assert.Equal(t, 13, result.Backtest.Exceptions)
	assert.False(t, result.Backtest.Kupiec.RejectNull)
	assert.False(t, result.Backtest.Christoffersen.RejectNull)
	assert.True(t, result.Backtest.IsModelAccurate)
	assert.InDelta(t, 1-math.Abs(13.0/250.0-0.05), result.ModelAccuracy, 1e-9)
}

func TestBacktestRequiresHistory(t *testing.T) {
	engine := newTestEngine()
	_, err := engine.CalculateVaR(twoAssetPortfolio(), twoAssetModel(0.0), nil, models.VaRRequest{
		Method:          models.VaRMethodParametric,
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
		BacktestPeriod:  250,
	})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInsufficientData))
}

func singleAssetModel() *models.RiskFactorModel {
	return &models.RiskFactorModel{
		AssetIDs:          []string{"AAA"},
		ExpectedReturns:   []float64{0.05},
		Volatilities:      []float64{0.10},
		CorrelationMatrix: [][]float64{{1.0}},
	}
}
