package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantrisk/risk-engine/config"
	"github.com/quantrisk/risk-engine/internal/correlation"
	"github.com/quantrisk/risk-engine/internal/kafka"
	"github.com/quantrisk/risk-engine/internal/montecarlo"
	"github.com/quantrisk/risk-engine/internal/risk"
	"github.com/quantrisk/risk-engine/internal/store"
	"github.com/quantrisk/risk-engine/internal/stress"
	"github.com/quantrisk/risk-engine/pkg/api"
	"github.com/quantrisk/risk-engine/pkg/utils/logger"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Init(cfg.App.LogLevel, cfg.App.Environment)
	log := logger.GetLogger("risk-engine.main")
	log.Infof("starting %s (%s)", cfg.App.Name, cfg.App.Environment)

	portfolios := store.NewPortfolioStore()
	historical := store.NewHistoricalStore()

	mcEngine := montecarlo.NewEngine(cfg.Risk.Workers, cfg.Risk.RidgeAlpha)
	varEngine := risk.NewVaREngine(risk.VaREngineConfig{
		Workers:         cfg.Risk.Workers,
		SimulationPaths: cfg.Risk.SimulationRuns,
	}, mcEngine)
	stressEngine := stress.NewEngine(cfg.Risk.Workers)
	analyzer := correlation.NewAnalyzer()

	var publisher *kafka.Publisher
	if cfg.Kafka.Enabled {
		publisher = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topics.RiskResults)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Errorf("failed to close kafka publisher: %v", err)
			}
		}()
		log.Infof("publishing results to %s via %v", cfg.Kafka.Topics.RiskResults, cfg.Kafka.Brokers)
	}

	handlers := api.NewHandlers(
		portfolios,
		historical,
		varEngine,
		mcEngine,
		stressEngine,
		analyzer,
		publisher,
		api.Defaults{
			ConfidenceLevel: cfg.Risk.DefaultConfidenceLevel,
			BacktestWindow:  cfg.Risk.BacktestWindow,
			HistoricalDays:  cfg.Risk.HistoricalDays,
		},
	)
	server := api.NewServer(api.Config{
		Host:         cfg.API.Host,
		Port:         cfg.API.Port,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		Environment:  cfg.App.Environment,
		MetricsPath:  cfg.Metrics.Path,
	}, handlers)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("received signal %v, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Errorf("server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}

	log.Info("risk engine stopped")
	_ = logger.Sync()
}
