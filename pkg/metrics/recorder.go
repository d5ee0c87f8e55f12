// Package metrics exposes Prometheus instrumentation for the risk engine
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	calculationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "risk_engine",
		Name:      "calculations_total",
		Help:      "Total risk calculations by type and outcome",
	}, []string{"calculation", "status"})

	calculationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "risk_engine",
		Name:      "calculation_duration_seconds",
		Help:      "Risk calculation latency by type",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"calculation"})

	simulationPaths = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "risk_engine",
		Name:      "simulation_paths",
		Help:      "Monte Carlo path counts per simulation request",
		Buckets:   prometheus.ExponentialBuckets(1000, 2, 8),
	})

	lastVaR = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "risk_engine",
		Name:      "last_var",
		Help:      "Most recent VaR by portfolio and method",
	}, []string{"portfolio", "method"})

	publishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "risk_engine",
		Name:      "publish_failures_total",
		Help:      "Failed result publications to Kafka",
	})
)

// ObserveCalculation records one finished calculation
func ObserveCalculation(calculation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	calculationsTotal.WithLabelValues(calculation, status).Inc()
	if err == nil {
		calculationDuration.WithLabelValues(calculation).Observe(time.Since(start).Seconds())
	}
}

// ObserveSimulationPaths records the path count of a Monte Carlo request
func ObserveSimulationPaths(paths int) {
	simulationPaths.Observe(float64(paths))
}

// SetLastVaR records the most recent headline VaR for a portfolio
func SetLastVaR(portfolioID, method string, value float64) {
	lastVaR.WithLabelValues(portfolioID, method).Set(value)
}

// IncPublishFailure counts a failed Kafka publication
func IncPublishFailure() {
	publishFailures.Inc()
}
