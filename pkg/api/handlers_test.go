package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrisk/risk-engine/internal/correlation"
	"github.com/quantrisk/risk-engine/internal/montecarlo"
	"github.com/quantrisk/risk-engine/internal/risk"
	"github.com/quantrisk/risk-engine/internal/store"
	"github.com/quantrisk/risk-engine/internal/stress"
	"github.com/quantrisk/risk-engine/pkg/models"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	portfolios := store.NewPortfolioStore()
	historical := store.NewHistoricalStore()
	mcEngine := montecarlo.NewEngine(4, 0)
	handlers := NewHandlers(
		portfolios,
		historical,
		risk.NewVaREngine(risk.VaREngineConfig{Workers: 4}, mcEngine),
		mcEngine,
		stress.NewEngine(4),
		correlation.NewAnalyzer(),
		nil,
		Defaults{},
	)
	return NewServer(Config{Host: "127.0.0.1", Port: 0}, handlers)
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func seedPortfolio(t *testing.T, s *Server) {
	t.Helper()

	snapshot := models.PortfolioSnapshot{
		PortfolioID: "pf-api",
		AsOfDate:    time.Date(2024, 6, 28, 0, 0, 0, 0, time.UTC),
		Positions: []models.Position{
			{ID: "p1", Symbol: "AAA", MarketValue: 600000, AssetClass: models.AssetClassEquity, Sector: "TECH"},
			{ID: "p2", Symbol: "BBB", MarketValue: 400000, AssetClass: models.AssetClassFixedIncome, Sector: "GOVT"},
		},
	}
	rec := doRequest(s, http.MethodPost, "/api/v1/portfolios", snapshot)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for seed, symbol := range map[int]string{1: "AAA", 2: "BBB"} {
		returns := make([]float64, 300)
		state := seed
		for i := range returns {
			state = (state*1103515245 + 12345) % 2147483648
			returns[i] = float64(state%2001-1000) / 50000
		}
		rec := doRequest(s, http.MethodPut, "/api/v1/returns/"+symbol, gin.H{"returns": returns})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestPortfolioLifecycle(t *testing.T) {
	s := newTestServer(t)
	seedPortfolio(t, s)

	rec := doRequest(s, http.MethodGet, "/api/v1/portfolios", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pf-api")

	rec = doRequest(s, http.MethodGet, "/api/v1/portfolios/pf-api", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodDelete, "/api/v1/portfolios/pf-api", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/v1/portfolios/pf-api", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCalculateVaREndpoint(t *testing.T) {
	s := newTestServer(t)
	seedPortfolio(t, s)

	rec := doRequest(s, http.MethodPost, "/api/v1/risk/pf-api/var", models.VaRRequest{
		Method:          models.VaRMethodParametric,
		ConfidenceLevel: 0.99,
		TimeHorizonDays: 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.VaRResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "pf-api", result.PortfolioID)
	assert.Greater(t, result.TotalVaR, 0.0)
	assert.LessOrEqual(t, result.DiversifiedVaR, result.UndiversifiedVaR)
}

func TestVaRDefaultConfidenceApplied(t *testing.T) {
	s := newTestServer(t)
	seedPortfolio(t, s)

	rec := doRequest(s, http.MethodPost, "/api/v1/risk/pf-api/var", gin.H{
		"method":          "PARAMETRIC",
		"timeHorizonDays": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.VaRResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 0.99, result.ConfidenceLevel)
}

func TestCalculateVaRUnknownMethod(t *testing.T) {
	s := newTestServer(t)
	seedPortfolio(t, s)

	rec := doRequest(s, http.MethodPost, "/api/v1/risk/pf-api/var", gin.H{
		"method":          "GUESSWORK",
		"confidenceLevel": 0.99,
		"timeHorizonDays": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported")
}

func TestCalculateVaRMissingPortfolio(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/v1/risk/ghost/var", models.VaRRequest{
		Method:          models.VaRMethodParametric,
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonteCarloEndpoint(t *testing.T) {
	s := newTestServer(t)
	seedPortfolio(t, s)

	rec := doRequest(s, http.MethodPost, "/api/v1/risk/pf-api/montecarlo", models.MonteCarloRequest{
		NumberOfPaths:   2000,
		TimeHorizonDays: 10,
		Seed:            99,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.MonteCarloResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2000, result.NumberOfPaths)
	assert.GreaterOrEqual(t, result.CVaR99, result.VaR99)
}

func TestStressEndpoint(t *testing.T) {
	s := newTestServer(t)
	seedPortfolio(t, s)

	rec := doRequest(s, http.MethodPost, "/api/v1/risk/pf-api/stress", models.StressTestRequest{
		IncludeHistorical: true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.StressTestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.ScenarioResults, 3)
	assert.NotEmpty(t, result.WorstScenarioID)
}

func TestCorrelationEndpoint(t *testing.T) {
	s := newTestServer(t)
	seedPortfolio(t, s)

	rec := doRequest(s, http.MethodPost, "/api/v1/risk/pf-api/correlation", models.CorrelationAnalysisOptions{
		GroupBy: []string{"assetClass"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.CorrelationAnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.PositionMatrix.Assets, 2)
	assert.Greater(t, result.PortfolioVolatility, 0.0)
}

func TestSaveReturnsRejectsEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPut, "/api/v1/returns/AAA", gin.H{"returns": []float64{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSavePortfolioRejectsEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/v1/portfolios", gin.H{"portfolioId": "pf-empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
