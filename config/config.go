package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config for the whole application
type Config struct {
	App     AppConfig
	API     APIConfig
	Kafka   KafkaConfig
	Risk    RiskConfig
	Metrics MetricsConfig
}

// General application configuration
type AppConfig struct {
	Name        string
	Environment string
	LogLevel    string
}

// Configuration for the API server
type APIConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Configuration for Kafka
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topics  KafkaTopicsConfig
}

// Kafka topics configuration
type KafkaTopicsConfig struct {
	RiskResults string
}

// Configuration for risk calculations
type RiskConfig struct {
	DefaultConfidenceLevel float64
	SimulationRuns         int
	HistoricalDays         int
	Workers                int
	RidgeAlpha             float64
	BacktestWindow         int
}

// Configuration for Prometheus metrics
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads the configuration from the config file and RISK_-prefixed
// environment variables. A missing config file falls back to defaults.
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(GetConfigPath())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.SetEnvPrefix("RISK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "risk-engine")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.log_level", "info")

	// API defaults
	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.read_timeout", "10s")
	viper.SetDefault("api.write_timeout", "30s")
	viper.SetDefault("api.shutdown_timeout", "30s")

	// Kafka defaults
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.risk_results", "risk.results")

	// Risk defaults
	viper.SetDefault("risk.default_confidence_level", 0.99)
	viper.SetDefault("risk.simulation_runs", 10000)
	viper.SetDefault("risk.historical_days", 252)
	viper.SetDefault("risk.workers", 8)
	viper.SetDefault("risk.ridge_alpha", 0.01)
	viper.SetDefault("risk.backtest_window", 250)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}

// GetConfigPath returns the directory searched for config.yaml
func GetConfigPath() string {
	if path := os.Getenv("RISK_CONFIG_PATH"); path != "" {
		return path
	}
	return "./config"
}
