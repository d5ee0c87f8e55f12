package stress

import "github.com/quantrisk/risk-engine/pkg/models"

// HistoricalScenarios returns the built-in scenario library: calibrated
// replays of the 2008 financial crisis, the March 2020 COVID crash and the
// 2000 dot-com bust. The returned scenarios are fresh copies; callers may
// modify them freely.
func HistoricalScenarios() []models.StressScenario {
	return []models.StressScenario{
		{
			ID:          "GFC_2008",
			Name:        "2008 Global Financial Crisis",
			Description: "Peak-to-trough moves of the 2008-2009 crisis: equity collapse, spread blowout, flight-to-quality rate rally",
			FactorShocks: []models.FactorShock{
				{FactorType: models.FactorTypeEquityIndex, FactorName: "GLOBAL_EQUITY", ShockType: models.ShockTypeRelative, ShockValue: -40},
				{FactorType: models.FactorTypeInterestRate, FactorName: "USD_10Y", ShockType: models.ShockTypeAbsolute, ShockValue: -0.020},
				{FactorType: models.FactorTypeCreditSpread, FactorName: "IG_CREDIT", ShockType: models.ShockTypeAbsolute, ShockValue: 0.035},
				{FactorType: models.FactorTypeVolatility, FactorName: "IMPLIED_VOL", ShockType: models.ShockTypeRelative, ShockValue: 150},
				{FactorType: models.FactorTypeCommodity, FactorName: "BROAD_COMMODITY", ShockType: models.ShockTypeRelative, ShockValue: -30},
			},
		},
		{
			ID:          "COVID_2020",
			Name:        "March 2020 COVID Crash",
			Description: "The fastest 30% equity drawdown on record with an oil collapse and emergency rate cuts",
			FactorShocks: []models.FactorShock{
				{FactorType: models.FactorTypeEquityIndex, FactorName: "GLOBAL_EQUITY", ShockType: models.ShockTypeRelative, ShockValue: -30},
				{FactorType: models.FactorTypeInterestRate, FactorName: "USD_10Y", ShockType: models.ShockTypeAbsolute, ShockValue: -0.015},
				{FactorType: models.FactorTypeCreditSpread, FactorName: "IG_CREDIT", ShockType: models.ShockTypeAbsolute, ShockValue: 0.025},
				{FactorType: models.FactorTypeVolatility, FactorName: "IMPLIED_VOL", ShockType: models.ShockTypeRelative, ShockValue: 200},
				{FactorType: models.FactorTypeCommodity, FactorName: "CRUDE_OIL", ShockType: models.ShockTypeRelative, ShockValue: -50},
			},
		},
		{
			ID:          "DOTCOM_2000",
			Name:        "2000 Dot-Com Bust",
			Description: "Slow-motion equity unwind concentrated in growth names, easing rates, modest vol",
			FactorShocks: []models.FactorShock{
				{FactorType: models.FactorTypeEquityIndex, FactorName: "GLOBAL_EQUITY", ShockType: models.ShockTypeRelative, ShockValue: -45},
				{FactorType: models.FactorTypeInterestRate, FactorName: "USD_10Y", ShockType: models.ShockTypeAbsolute, ShockValue: -0.010},
				{FactorType: models.FactorTypeVolatility, FactorName: "IMPLIED_VOL", ShockType: models.ShockTypeRelative, ShockValue: 80},
			},
		},
	}
}
