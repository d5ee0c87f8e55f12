package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantrisk/risk-engine/internal/correlation"
	"github.com/quantrisk/risk-engine/internal/kafka"
	"github.com/quantrisk/risk-engine/internal/montecarlo"
	"github.com/quantrisk/risk-engine/internal/risk"
	"github.com/quantrisk/risk-engine/internal/store"
	"github.com/quantrisk/risk-engine/internal/stress"
	"github.com/quantrisk/risk-engine/pkg/metrics"
	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
	"github.com/quantrisk/risk-engine/pkg/utils/logger"
)

// Defaults fill in request fields the caller left unset
type Defaults struct {
	// ConfidenceLevel applies to VaR requests without one
	ConfidenceLevel float64
	// BacktestWindow is the realized-return window for VaR backtests
	BacktestWindow int
	// HistoricalDays is the lookback window for factor model estimation
	HistoricalDays int
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	portfolios   *store.PortfolioStore
	historical   *store.HistoricalStore
	varEngine    *risk.VaREngine
	mcEngine     *montecarlo.Engine
	stressEngine *stress.Engine
	analyzer     *correlation.Analyzer
	publisher    *kafka.Publisher
	defaults     Defaults
	log          *logger.Logger
}

// NewHandlers creates the API handlers. publisher may be nil when Kafka is
// disabled.
func NewHandlers(
	portfolios *store.PortfolioStore,
	historical *store.HistoricalStore,
	varEngine *risk.VaREngine,
	mcEngine *montecarlo.Engine,
	stressEngine *stress.Engine,
	analyzer *correlation.Analyzer,
	publisher *kafka.Publisher,
	defaults Defaults,
) *Handlers {
	if defaults.ConfidenceLevel == 0 {
		defaults.ConfidenceLevel = 0.99
	}
	if defaults.BacktestWindow <= 0 {
		defaults.BacktestWindow = 250
	}
	if defaults.HistoricalDays <= 0 {
		defaults.HistoricalDays = 252
	}
	return &Handlers{
		portfolios:   portfolios,
		historical:   historical,
		varEngine:    varEngine,
		mcEngine:     mcEngine,
		stressEngine: stressEngine,
		analyzer:     analyzer,
		publisher:    publisher,
		defaults:     defaults,
		log:          logger.GetLogger("api.handlers"),
	}
}

// Health handles health check requests
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// SavePortfolio stores a portfolio snapshot
func (h *Handlers) SavePortfolio(c *gin.Context) {
	var snapshot models.PortfolioSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if snapshot.AsOfDate.IsZero() {
		snapshot.AsOfDate = time.Now().UTC()
	}
	if err := h.portfolios.Save(&snapshot); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"portfolioId": snapshot.PortfolioID})
}

// ListPortfolios returns all stored portfolio IDs
func (h *Handlers) ListPortfolios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"portfolios": h.portfolios.List()})
}

// GetPortfolio returns one stored snapshot
func (h *Handlers) GetPortfolio(c *gin.Context) {
	snapshot, err := h.portfolios.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// DeletePortfolio removes a stored snapshot
func (h *Handlers) DeletePortfolio(c *gin.Context) {
	if err := h.portfolios.Delete(c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SaveReturns stores a daily return series for a symbol
func (h *Handlers) SaveReturns(c *gin.Context) {
	var body struct {
		Returns []float64 `json:"returns"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol := c.Param("symbol")
	if err := h.historical.Save(symbol, body.Returns); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "days": len(body.Returns)})
}

// CalculateVaR runs a VaR calculation for a stored portfolio
func (h *Handlers) CalculateVaR(c *gin.Context) {
	start := time.Now()

	var req models.VaRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ConfidenceLevel == 0 {
		req.ConfidenceLevel = h.defaults.ConfidenceLevel
	}
	if req.BacktestPeriod < 0 {
		req.BacktestPeriod = h.defaults.BacktestWindow
	}

	portfolio, model, history, err := h.loadInputs(c.Param("id"))
	if err != nil {
		metrics.ObserveCalculation("var", start, err)
		h.respondError(c, err)
		return
	}

	result, err := h.varEngine.CalculateVaR(portfolio, model, history, req)
	metrics.ObserveCalculation("var", start, err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	metrics.SetLastVaR(result.PortfolioID, string(result.Method), result.TotalVaR)

	if h.publisher != nil {
		if err := h.publisher.PublishVaR(c.Request.Context(), result); err != nil {
			metrics.IncPublishFailure()
		}
	}
	c.JSON(http.StatusOK, result)
}

// RunMonteCarlo runs a Monte Carlo simulation for a stored portfolio
func (h *Handlers) RunMonteCarlo(c *gin.Context) {
	start := time.Now()

	var req models.MonteCarloRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.NumberOfPaths <= 0 {
		req.NumberOfPaths = montecarlo.DefaultNumberOfPaths
	}
	if req.TimeHorizonDays <= 0 {
		req.TimeHorizonDays = 1
	}

	portfolio, model, _, err := h.loadInputs(c.Param("id"))
	if err != nil {
		metrics.ObserveCalculation("montecarlo", start, err)
		h.respondError(c, err)
		return
	}

	metrics.ObserveSimulationPaths(req.NumberOfPaths)
	result, err := h.mcEngine.Simulate(portfolio, model, req)
	metrics.ObserveCalculation("montecarlo", start, err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishMonteCarlo(c.Request.Context(), result); err != nil {
			metrics.IncPublishFailure()
		}
	}
	c.JSON(http.StatusOK, result)
}

// RunStressTest runs stress scenarios against a stored portfolio
func (h *Handlers) RunStressTest(c *gin.Context) {
	start := time.Now()

	var req models.StressTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	portfolio, model, _, err := h.loadInputs(c.Param("id"))
	if err != nil {
		metrics.ObserveCalculation("stress", start, err)
		h.respondError(c, err)
		return
	}

	result, err := h.stressEngine.RunStressTest(portfolio, model, req)
	metrics.ObserveCalculation("stress", start, err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishStressTest(c.Request.Context(), result); err != nil {
			metrics.IncPublishFailure()
		}
	}
	c.JSON(http.StatusOK, result)
}

// AnalyzeCorrelations runs the correlation study for a stored portfolio
func (h *Handlers) AnalyzeCorrelations(c *gin.Context) {
	start := time.Now()

	var opts models.CorrelationAnalysisOptions
	if err := c.ShouldBindJSON(&opts); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	portfolio, err := h.portfolios.Get(c.Param("id"))
	if err != nil {
		metrics.ObserveCalculation("correlation", start, err)
		h.respondError(c, err)
		return
	}
	history, err := h.historical.GetAll(portfolioSymbols(portfolio), h.defaults.HistoricalDays)
	if err != nil {
		metrics.ObserveCalculation("correlation", start, err)
		h.respondError(c, err)
		return
	}

	result, err := h.analyzer.Analyze(portfolio, history, opts)
	metrics.ObserveCalculation("correlation", start, err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishCorrelation(c.Request.Context(), result); err != nil {
			metrics.IncPublishFailure()
		}
	}
	c.JSON(http.StatusOK, result)
}

// loadInputs fetches the snapshot, its return history and the factor model
// estimated from that history
func (h *Handlers) loadInputs(portfolioID string) (*models.PortfolioSnapshot, *models.RiskFactorModel, map[string][]float64, error) {
	portfolio, err := h.portfolios.Get(portfolioID)
	if err != nil {
		return nil, nil, nil, err
	}
	symbols := portfolioSymbols(portfolio)
	history, err := h.historical.GetAll(symbols, h.defaults.HistoricalDays)
	if err != nil {
		return nil, nil, nil, err
	}
	model, err := h.historical.BuildFactorModel(symbols, h.defaults.HistoricalDays)
	if err != nil {
		return nil, nil, nil, err
	}
	return portfolio, model, history, nil
}

// portfolioSymbols returns the distinct symbols of a snapshot in position
// order
func portfolioSymbols(portfolio *models.PortfolioSnapshot) []string {
	seen := make(map[string]bool, len(portfolio.Positions))
	var symbols []string
	for i := range portfolio.Positions {
		sym := portfolio.Positions[i].Symbol
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	return symbols
}

// respondError maps error kinds onto HTTP status codes
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errors.KindOf(err) {
	case errors.KindValidation, errors.KindUnsupported:
		status = http.StatusBadRequest
	case errors.KindNotFound:
		status = http.StatusNotFound
	case errors.KindInsufficientData, errors.KindNonPositiveDefinite, errors.KindNumericalInstability:
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.log.Errorf("request failed: %v", err)
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"kind":  errors.KindOf(err).String(),
	})
}
