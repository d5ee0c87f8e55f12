// Package api exposes the risk engine over HTTP: portfolio and return-series
// management plus the VaR, Monte Carlo, stress and correlation calculations.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantrisk/risk-engine/pkg/utils/logger"
)

// Config holds the configuration for the API server
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  string
	MetricsPath  string
}

// Server represents the API server
type Server struct {
	config     Config
	engine     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers
	log        *logger.Logger
}

// NewServer creates a new API server
func NewServer(config Config, handlers *Handlers) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:   config,
		engine:   gin.New(),
		handlers: handlers,
		log:      logger.GetLogger("api.server"),
	}
	server.setupRoutes()
	return server
}

// Start starts the API server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Infof("starting API server on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("stopping API server")
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(requestLogger(s.log))

	s.engine.GET("/health", s.handlers.Health)
	s.engine.GET(s.config.MetricsPath, gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/api/v1")

	portfolios := v1.Group("/portfolios")
	portfolios.POST("", s.handlers.SavePortfolio)
	portfolios.GET("", s.handlers.ListPortfolios)
	portfolios.GET("/:id", s.handlers.GetPortfolio)
	portfolios.DELETE("/:id", s.handlers.DeletePortfolio)

	v1.PUT("/returns/:symbol", s.handlers.SaveReturns)

	risk := v1.Group("/risk/:id")
	risk.POST("/var", s.handlers.CalculateVaR)
	risk.POST("/montecarlo", s.handlers.RunMonteCarlo)
	risk.POST("/stress", s.handlers.RunStressTest)
	risk.POST("/correlation", s.handlers.AnalyzeCorrelations)
}

// requestLogger logs one line per request with status and latency
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infof("%s %s -> %d in %v", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start))
	}
}
