package store

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
)

func sampleSnapshot(id string) *models.PortfolioSnapshot {
	return &models.PortfolioSnapshot{
		PortfolioID: id,
		AsOfDate:    time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		Positions: []models.Position{
			{ID: "p1", Symbol: "AAA", MarketValue: 100000, AssetClass: models.AssetClassEquity},
		},
	}
}

func TestPortfolioStoreRoundTrip(t *testing.T) {
	s := NewPortfolioStore()
	require.NoError(t, s.Save(sampleSnapshot("pf-1")))

	got, err := s.Get("pf-1")
	require.NoError(t, err)
	assert.Equal(t, "pf-1", got.PortfolioID)
	assert.Len(t, got.Positions, 1)
}

func TestPortfolioStoreCopiesOnReadAndWrite(t *testing.T) {
	s := NewPortfolioStore()
	original := sampleSnapshot("pf-1")
	require.NoError(t, s.Save(original))

	// Mutating the saved-in snapshot must not leak into the store
	original.Positions[0].MarketValue = -1
	first, err := s.Get("pf-1")
	require.NoError(t, err)
	assert.Equal(t, 100000.0, first.Positions[0].MarketValue)

	// Mutating a returned snapshot must not leak either
	first.Positions[0].MarketValue = -2
	second, err := s.Get("pf-1")
	require.NoError(t, err)
	assert.Equal(t, 100000.0, second.Positions[0].MarketValue)
}

func TestPortfolioStoreMissingAndDelete(t *testing.T) {
	s := NewPortfolioStore()

	_, err := s.Get("nope")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	require.NoError(t, s.Save(sampleSnapshot("pf-1")))
	require.NoError(t, s.Delete("pf-1"))
	assert.True(t, errors.IsKind(s.Delete("pf-1"), errors.KindNotFound))
}

func TestPortfolioStoreRejectsInvalid(t *testing.T) {
	s := NewPortfolioStore()
	err := s.Save(&models.PortfolioSnapshot{PortfolioID: "empty"})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	err = s.Save(&models.PortfolioSnapshot{Positions: sampleSnapshot("x").Positions})
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestPortfolioStoreList(t *testing.T) {
	s := NewPortfolioStore()
	require.NoError(t, s.Save(sampleSnapshot("pf-b")))
	require.NoError(t, s.Save(sampleSnapshot("pf-a")))
	assert.Equal(t, []string{"pf-a", "pf-b"}, s.List())
}

func TestHistoricalStoreRoundTrip(t *testing.T) {
	s := NewHistoricalStore()
	require.NoError(t, s.Save("AAA", []float64{0.01, -0.02, 0.005}))

	got, err := s.Get("AAA")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.01, -0.02, 0.005}, got)

	_, err = s.Get("BBB")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestHistoricalStoreRejectsNonFinite(t *testing.T) {
	s := NewHistoricalStore()
	err := s.Save("AAA", []float64{0.01, math.NaN()})
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestHistoricalStoreWindowing(t *testing.T) {
	s := NewHistoricalStore()
	series := make([]float64, 500)
	for i := range series {
		series[i] = float64(i) / 10000
	}
	require.NoError(t, s.Save("AAA", series))

	windowed, err := s.GetAll([]string{"AAA"}, 250)
	require.NoError(t, err)
	require.Len(t, windowed["AAA"], 250)
	// The window keeps the most recent observations
	assert.Equal(t, series[250], windowed["AAA"][0])
	assert.Equal(t, series[499], windowed["AAA"][249])
}

func TestBuildFactorModelAnnualizes(t *testing.T) {
	s := NewHistoricalStore()

	// Alternating daily returns with mean 0.001 and a known population
	// stddev of 0.01
	series := make([]float64, 252)
	for i := range series {
		if i%2 == 0 {
			series[i] = 0.011
		} else {
			series[i] = -0.009
		}
	}
	require.NoError(t, s.Save("AAA", series))

	model, err := s.BuildFactorModel([]string{"AAA"}, 0)
	require.NoError(t, err)
	require.NoError(t, model.Validate())

	assert.InDelta(t, 0.001*252, model.ExpectedReturns[0], 1e-9)
	assert.InDelta(t, 0.01*math.Sqrt(252), model.Volatilities[0], 1e-9)
	assert.Equal(t, [][]float64{{1.0}}, model.CorrelationMatrix)
}

func TestBuildFactorModelCorrelations(t *testing.T) {
	s := NewHistoricalStore()
	base := []float64{0.01, -0.02, 0.015, 0.004, -0.007, 0.012, -0.001, 0.008}
	inverse := make([]float64, len(base))
	for i, r := range base {
		inverse[i] = -r
	}
	require.NoError(t, s.Save("AAA", base))
	require.NoError(t, s.Save("BBB", inverse))

	model, err := s.BuildFactorModel([]string{"AAA", "BBB"}, 0)
	require.NoError(t, err)
	require.NoError(t, model.Validate())
	assert.InDelta(t, -1.0, model.CorrelationMatrix[0][1], 1e-9)
}

func TestBuildFactorModelMismatchedLengths(t *testing.T) {
	s := NewHistoricalStore()
	require.NoError(t, s.Save("AAA", make([]float64, 100)))
	require.NoError(t, s.Save("BBB", make([]float64, 50)))

	_, err := s.BuildFactorModel([]string{"AAA", "BBB"}, 0)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}
