package stress

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
)

var asOf = time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC)

func equityPortfolio() *models.PortfolioSnapshot {
	return &models.PortfolioSnapshot{
		PortfolioID: "pf-stress",
		AsOfDate:    asOf,
		Positions: []models.Position{
			{ID: "p1", Symbol: "AAA", MarketValue: 1000000, AssetClass: models.AssetClassEquity, Currency: "USD"},
		},
	}
}

func equityModel() *models.RiskFactorModel {
	return &models.RiskFactorModel{
		AssetIDs:          []string{"AAA"},
		ExpectedReturns:   []float64{0.07},
		Volatilities:      []float64{0.20},
		CorrelationMatrix: [][]float64{{1.0}},
	}
}

func equityCrash(value float64) models.StressScenario {
	return models.StressScenario{
		ID:   "EQ_CRASH",
		Name: "Equity Crash",
		FactorShocks: []models.FactorShock{
			{FactorType: models.FactorTypeEquityIndex, FactorName: "GLOBAL_EQUITY", ShockType: models.ShockTypeRelative, ShockValue: value},
		},
	}
}

func TestEquityShockAppliesBetaOne(t *testing.T) {
	engine := NewEngine(4)
	result, err := engine.RunStressTest(equityPortfolio(), equityModel(), models.StressTestRequest{
		Scenarios: []models.StressScenario{equityCrash(-20)},
	})
	require.NoError(t, err)

	require.Len(t, result.ScenarioResults, 1)
	scenario := result.ScenarioResults[0]
	assert.InDelta(t, -200000.0, scenario.PortfolioChange, 1e-9)
	assert.InDelta(t, -20.0, scenario.PortfolioChangePercent, 1e-9)

	require.Len(t, scenario.PositionImpacts, 1)
	assert.InDelta(t, -20.0, scenario.PositionImpacts[0].ImpactPercent, 1e-9)
}

func TestFixedIncomeDurationImpact(t *testing.T) {
	maturity := asOf.Add(time.Duration(5 * 365.25 * 24 * float64(time.Hour)))
	portfolio := &models.PortfolioSnapshot{
		PortfolioID: "pf-fi",
		AsOfDate:    asOf,
		Positions: []models.Position{
			{ID: "b1", Symbol: "BND", MarketValue: 1000000, AssetClass: models.AssetClassFixedIncome, MaturityDate: &maturity},
		},
	}
	model := &models.RiskFactorModel{
		AssetIDs:          []string{"BND"},
		ExpectedReturns:   []float64{0.03},
		Volatilities:      []float64{0.05},
		CorrelationMatrix: [][]float64{{1.0}},
	}
	scenario := models.StressScenario{
		ID:   "RATES_UP",
		Name: "Parallel +100bp",
		FactorShocks: []models.FactorShock{
			{FactorType: models.FactorTypeInterestRate, FactorName: "USD_10Y", ShockType: models.ShockTypeAbsolute, ShockValue: 0.01},
		},
	}

	engine := NewEngine(2)
	result, err := engine.RunStressTest(portfolio, model, models.StressTestRequest{Scenarios: []models.StressScenario{scenario}})
	require.NoError(t, err)

	// Duration 5 against a 100bp rise loses 5% of value
	assert.InDelta(t, -50000.0, result.ScenarioResults[0].PortfolioChange, 1e-6)
}

func TestHistoricalLibraryIncluded(t *testing.T) {
	engine := NewEngine(4)
	result, err := engine.RunStressTest(equityPortfolio(), equityModel(), models.StressTestRequest{IncludeHistorical: true})
	require.NoError(t, err)

	require.Len(t, result.ScenarioResults, 3)
	ids := map[string]bool{}
	for _, s := range result.ScenarioResults {
		ids[s.ScenarioID] = true
		assert.Negative(t, s.PortfolioChange, "scenario %s", s.ScenarioID)
	}
	assert.True(t, ids["GFC_2008"])
	assert.True(t, ids["COVID_2020"])
	assert.True(t, ids["DOTCOM_2000"])

	// The deepest equity drawdown in the library dominates a pure equity book
	assert.Equal(t, "DOTCOM_2000", result.WorstScenarioID)
}

func TestCorrelationUpliftUnderStress(t *testing.T) {
	portfolio := &models.PortfolioSnapshot{
		PortfolioID: "pf-two",
		AsOfDate:    asOf,
		Positions: []models.Position{
			{ID: "p1", Symbol: "AAA", MarketValue: 500000, AssetClass: models.AssetClassEquity},
			{ID: "p2", Symbol: "BBB", MarketValue: 500000, AssetClass: models.AssetClassFixedIncome},
		},
	}
	model := &models.RiskFactorModel{
		AssetIDs:        []string{"AAA", "BBB"},
		ExpectedReturns: []float64{0.07, 0.03},
		Volatilities:    []float64{0.20, 0.10},
		CorrelationMatrix: [][]float64{
			{1.0, 0.2},
			{0.2, 1.0},
		},
	}

	engine := NewEngine(4)
	result, err := engine.RunStressTest(portfolio, model, models.StressTestRequest{
		Scenarios: []models.StressScenario{equityCrash(-10)},
	})
	require.NoError(t, err)

	scenario := result.ScenarioResults[0]
	require.Len(t, scenario.CorrelationChanges, 1)
	change := scenario.CorrelationChanges[0]
	assert.InDelta(t, 0.2, change.BaseCorrelation, 1e-9)
	assert.InDelta(t, 0.45, change.StressedCorrelation, 1e-9)

	// Stressed vol: equal weights, 20%/10% vols at correlation 0.45
	want := math.Sqrt(0.25*0.04 + 0.25*0.01 + 2*0.25*0.45*0.20*0.10)
	assert.InDelta(t, want, scenario.VolatilityUnderScenario, 1e-9)
	assert.Greater(t, scenario.VaRUnderScenario, 0.0)
}

func TestUpliftCapsAtOne(t *testing.T) {
	model := &models.RiskFactorModel{
		AssetIDs:        []string{"A", "B"},
		ExpectedReturns: []float64{0.05, 0.05},
		Volatilities:    []float64{0.10, 0.10},
		CorrelationMatrix: [][]float64{
			{1.0, 0.9},
			{0.9, 1.0},
		},
	}
	stressed, changes := upliftCorrelations(model)
	assert.InDelta(t, 1.0, stressed[0][1], 1e-9)
	assert.InDelta(t, 1.0, changes[0].StressedCorrelation, 1e-9)
}

func TestVolatilityShockScalesVol(t *testing.T) {
	scenario := equityCrash(-10)
	scenario.FactorShocks = append(scenario.FactorShocks, models.FactorShock{
		FactorType: models.FactorTypeVolatility, FactorName: "IMPLIED_VOL",
		ShockType: models.ShockTypeRelative, ShockValue: 100,
	})

	engine := NewEngine(2)
	plain, err := engine.RunStressTest(equityPortfolio(), equityModel(), models.StressTestRequest{
		Scenarios: []models.StressScenario{equityCrash(-10)},
	})
	require.NoError(t, err)
	shocked, err := engine.RunStressTest(equityPortfolio(), equityModel(), models.StressTestRequest{
		Scenarios: []models.StressScenario{scenario},
	})
	require.NoError(t, err)

	assert.InDelta(t, 2*plain.ScenarioResults[0].VolatilityUnderScenario,
		shocked.ScenarioResults[0].VolatilityUnderScenario, 1e-9)
}

func TestFactorAttributionAcrossScenarios(t *testing.T) {
	engine := NewEngine(4)
	result, err := engine.RunStressTest(equityPortfolio(), equityModel(), models.StressTestRequest{IncludeHistorical: true})
	require.NoError(t, err)

	var equity *models.FactorSensitivity
	for i := range result.FactorSensitivities {
		if result.FactorSensitivities[i].FactorType == models.FactorTypeEquityIndex {
			equity = &result.FactorSensitivities[i]
		}
	}
	require.NotNil(t, equity, "equity index factor missing from attribution")
	assert.Equal(t, 3, equity.Observations)
	// Deeper equity shocks produce deeper losses, so the fitted slope is
	// positive in (shock fraction, change percent) space
	assert.Positive(t, equity.Sensitivity)
	assert.Greater(t, equity.RSquared, 0.9)
}

func TestNoScenariosRejected(t *testing.T) {
	engine := NewEngine(2)
	_, err := engine.RunStressTest(equityPortfolio(), equityModel(), models.StressTestRequest{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestUnrelatedFactorLeavesPositionUntouched(t *testing.T) {
	scenario := models.StressScenario{
		ID:   "FX_ONLY",
		Name: "EUR slide",
		FactorShocks: []models.FactorShock{
			{FactorType: models.FactorTypeCurrency, FactorName: "EURUSD", ShockType: models.ShockTypeRelative, ShockValue: -15, Currency: "EUR"},
		},
	}

	engine := NewEngine(2)
	result, err := engine.RunStressTest(equityPortfolio(), equityModel(), models.StressTestRequest{
		Scenarios: []models.StressScenario{scenario},
	})
	require.NoError(t, err)
	assert.Zero(t, result.ScenarioResults[0].PortfolioChange)
}
