package store

import (
	"math"
	"sync"

	"github.com/quantrisk/risk-engine/internal/simulation"
	"github.com/quantrisk/risk-engine/internal/stats"
	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
)

// HistoricalStore is a thread-safe in-memory store of daily return series
// keyed by asset symbol. Series are copied on the way in and out.
type HistoricalStore struct {
	mu     sync.RWMutex
	series map[string][]float64
}

// NewHistoricalStore creates an empty historical store
func NewHistoricalStore() *HistoricalStore {
	return &HistoricalStore{series: make(map[string][]float64)}
}

// Save stores a daily return series for a symbol, replacing any existing
// series. Returns must be finite.
func (s *HistoricalStore) Save(symbol string, returns []float64) error {
	if symbol == "" {
		return errors.Validation("symbol", "symbol is required")
	}
	if len(returns) == 0 {
		return errors.Validation("returns", "return series is empty")
	}
	for i, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return errors.Validationf("returns", "return at index %d for %q is not finite", i, symbol)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]float64, len(returns))
	copy(copied, returns)
	s.series[symbol] = copied
	return nil
}

// Get returns a copy of the stored series for one symbol
func (s *HistoricalStore) Get(symbol string) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series, ok := s.series[symbol]
	if !ok {
		return nil, errors.NotFoundf("no return series for symbol %q", symbol)
	}
	out := make([]float64, len(series))
	copy(out, series)
	return out, nil
}

// GetAll returns copies of the series for every requested symbol, truncated
// to the most recent `days` observations when days is positive
func (s *HistoricalStore) GetAll(symbols []string, days int) (map[string][]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]float64, len(symbols))
	for _, sym := range symbols {
		series, ok := s.series[sym]
		if !ok {
			return nil, errors.NotFoundf("no return series for symbol %q", sym)
		}
		if days > 0 && days < len(series) {
			series = series[len(series)-days:]
		}
		copied := make([]float64, len(series))
		copy(copied, series)
		out[sym] = copied
	}
	return out, nil
}

// BuildFactorModel derives a risk factor model from stored daily returns:
// annualized mean returns and volatilities plus the pairwise correlation
// matrix. All requested symbols need series of equal length.
func (s *HistoricalStore) BuildFactorModel(symbols []string, days int) (*models.RiskFactorModel, error) {
	if len(symbols) == 0 {
		return nil, errors.Validation("symbols", "at least one symbol is required")
	}

	history, err := s.GetAll(symbols, days)
	if err != nil {
		return nil, err
	}

	length := len(history[symbols[0]])
	for _, sym := range symbols {
		if len(history[sym]) != length {
			return nil, errors.Validationf("returns", "return series for %q has %d days, expected %d", sym, len(history[sym]), length)
		}
	}
	if length < 2 {
		return nil, errors.InsufficientData("factor model estimation requires at least 2 return days")
	}

	n := len(symbols)
	model := &models.RiskFactorModel{
		AssetIDs:          make([]string, n),
		ExpectedReturns:   make([]float64, n),
		Volatilities:      make([]float64, n),
		CorrelationMatrix: make([][]float64, n),
	}
	copy(model.AssetIDs, symbols)

	for i, sym := range symbols {
		series := history[sym]
		model.ExpectedReturns[i] = stats.Mean(series) * simulation.TradingDaysPerYear
		model.Volatilities[i] = stats.StdDev(series) * math.Sqrt(simulation.TradingDaysPerYear)
		model.CorrelationMatrix[i] = make([]float64, n)
		model.CorrelationMatrix[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rho := stats.PearsonCorrelation(history[symbols[i]], history[symbols[j]])
			model.CorrelationMatrix[i][j] = rho
			model.CorrelationMatrix[j][i] = rho
		}
	}
	return model, nil
}
