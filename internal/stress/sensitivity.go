package stress

import (
	"time"

	"github.com/quantrisk/risk-engine/pkg/models"
)

const (
	// defaultDuration is assumed for fixed-income positions without a
	// maturity date
	defaultDuration = 5.0
	// equityRateBeta is the mild inverse rate exposure of equities
	equityRateBeta = 2.0
	// spreadDurationRatio scales modified duration into spread duration
	spreadDurationRatio = 0.9
	// optionVega is the fractional value change per 100% volatility move
	optionVega = 0.4
	// optionDelta approximates equity-index exposure of option books
	optionDelta = 0.5
	// alternativeEquityBeta dampens equity shocks for alternatives
	alternativeEquityBeta = 0.6
	// alternativeCommodityBeta is the commodity exposure of alternatives
	alternativeCommodityBeta = 0.3
)

// positionSensitivity maps one factor shock to the fractional value change
// of one position. Relative shock values are percentages (-20 means -20%);
// absolute shocks are decimal moves (0.01 is 100bp). Unrelated factor and
// asset-class pairs return zero.
func positionSensitivity(pos *models.Position, shock models.FactorShock, asOf time.Time) float64 {
	switch shock.FactorType {
	case models.FactorTypeEquityIndex:
		beta := 0.0
		switch pos.AssetClass {
		case models.AssetClassEquity:
			beta = 1.0
		case models.AssetClassOption:
			beta = optionDelta
		case models.AssetClassAlternative:
			beta = alternativeEquityBeta
		}
		return beta * shockFraction(shock)

	case models.FactorTypeInterestRate:
		switch pos.AssetClass {
		case models.AssetClassFixedIncome:
			return -positionDuration(pos, asOf) * absoluteMove(shock)
		case models.AssetClassEquity:
			return -equityRateBeta * absoluteMove(shock)
		}
		return 0

	case models.FactorTypeCreditSpread:
		if pos.AssetClass != models.AssetClassFixedIncome {
			return 0
		}
		// Government paper carries no spread exposure
		if pos.CreditRating == "GOVT" {
			return 0
		}
		return -positionDuration(pos, asOf) * spreadDurationRatio * absoluteMove(shock)

	case models.FactorTypeCurrency:
		if shock.Currency == "" || pos.Currency != shock.Currency {
			return 0
		}
		return shockFraction(shock)

	case models.FactorTypeVolatility:
		if pos.AssetClass != models.AssetClassOption {
			return 0
		}
		return optionVega * shockFraction(shock)

	case models.FactorTypeCommodity:
		switch pos.AssetClass {
		case models.AssetClassCommodity:
			return shockFraction(shock)
		case models.AssetClassAlternative:
			return alternativeCommodityBeta * shockFraction(shock)
		}
		return 0
	}
	return 0
}

// shockFraction converts a relative shock percentage into a fraction;
// absolute shocks pass through as-is
func shockFraction(shock models.FactorShock) float64 {
	if shock.ShockType == models.ShockTypeRelative {
		return shock.ShockValue / 100
	}
	return shock.ShockValue
}

// absoluteMove returns the decimal factor move for rate-style shocks,
// converting relative percentages when a scenario author used them
func absoluteMove(shock models.FactorShock) float64 {
	if shock.ShockType == models.ShockTypeAbsolute {
		return shock.ShockValue
	}
	return shock.ShockValue / 100
}

// positionDuration derives modified duration from time to maturity, with a
// fallback for undated holdings
func positionDuration(pos *models.Position, asOf time.Time) float64 {
	if pos.MaturityDate == nil {
		return defaultDuration
	}
	years := pos.MaturityDate.Sub(asOf).Hours() / (24 * 365.25)
	if years < 0 {
		return 0
	}
	return years
}
