package risk

import (
	"math"

	"github.com/quantrisk/risk-engine/internal/stats"
	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
)

// backtest replays the most recent realized daily portfolio returns against
// the one-day VaR threshold implied by the headline figure, then runs the
// Kupiec unconditional-coverage and Christoffersen conditional-coverage
// tests on the exception series.
func (e *VaREngine) backtest(portfolio *models.PortfolioSnapshot, historicalReturns map[string][]float64, req models.VaRRequest, totalVaR float64) (*models.BacktestResult, error) {
	series, err := portfolioReturnHistory(portfolio, historicalReturns)
	if err != nil {
		return nil, err
	}

	window := req.BacktestPeriod
	if window > len(series) {
		window = len(series)
	}
	if window < stats.MinBacktestObservations {
		return nil, errors.InsufficientData("backtest requires at least 30 realized return days")
	}
	series = series[len(series)-window:]

	// Rescale the horizon VaR to a one-day loss threshold in return space
	value := math.Abs(portfolio.TotalValue())
	if value == 0 {
		return nil, errors.Validation("positions", "portfolio has zero total market value")
	}
	dailyVaR := totalVaR / value / math.Sqrt(float64(req.TimeHorizonDays))

	exceedances := make([]bool, len(series))
	exceptions := 0
	for i, r := range series {
		if r < -dailyVaR {
			exceedances[i] = true
			exceptions++
		}
	}

	expectedRate := 1 - req.ConfidenceLevel

	kupiec, err := stats.KupiecTest(exceptions, len(series), expectedRate)
	if err != nil {
		return nil, err
	}
	christoffersen, err := stats.ChristoffersenTest(exceedances, expectedRate)
	if err != nil {
		return nil, err
	}

	return &models.BacktestResult{
		Observations:    len(series),
		Exceptions:      exceptions,
		ExceptionRate:   float64(exceptions) / float64(len(series)),
		ExpectedRate:    expectedRate,
		Kupiec:          kupiec,
		Christoffersen:  christoffersen,
		IsModelAccurate: !kupiec.RejectNull && !christoffersen.RejectNull,
	}, nil
}
