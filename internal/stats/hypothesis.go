package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quantrisk/risk-engine/pkg/models"
	"github.com/quantrisk/risk-engine/pkg/utils/errors"
)

const (
	// Chi-square critical values at the 95% level
	chiSquare1Critical = 3.841
	chiSquare2Critical = 5.991

	// MinBacktestObservations is the smallest sample the backtests accept
	MinBacktestObservations = 30
)

// KupiecTest runs the unconditional-coverage likelihood-ratio test: does
// the observed exception count match the rate the confidence level implies?
// The null hypothesis is that the model is correctly calibrated.
func KupiecTest(exceptions, observations int, expectedRate float64) (models.HypothesisTest, error) {
	if observations < MinBacktestObservations {
		return models.HypothesisTest{}, errors.InsufficientData("backtest requires at least 30 observations")
	}
	if exceptions < 0 || exceptions > observations {
		return models.HypothesisTest{}, errors.Validation("exceptions", "exception count outside [0, observations]")
	}
	if expectedRate <= 0 || expectedRate >= 1 {
		return models.HypothesisTest{}, errors.Validation("expectedRate", "expected exception rate must be in (0, 1)")
	}

	n := float64(observations)
	x := float64(exceptions)
	observedRate := x / n

	// LR = -2 ln(L0/L1) with L0 at the expected rate and L1 at the
	// observed rate. xlogy handles the x=0 and x=n boundaries.
	logL0 := xlogy(n-x, 1-expectedRate) + xlogy(x, expectedRate)
	logL1 := xlogy(n-x, 1-observedRate) + xlogy(x, observedRate)
	lr := -2 * (logL0 - logL1)
	if lr < 0 {
		lr = 0
	}

	chi1 := distuv.ChiSquared{K: 1}
	return models.HypothesisTest{
		TestStatistic: lr,
		CriticalValue: chiSquare1Critical,
		PValue:        1 - chi1.CDF(lr),
		RejectNull:    lr > chiSquare1Critical,
	}, nil
}

// ChristoffersenTest runs the conditional-coverage test: the Kupiec
// coverage statistic plus a first-order Markov independence statistic,
// against chi-square with two degrees of freedom. It rejects models whose
// exceptions cluster in time even when the overall rate looks right.
// exceedances[i] is true when day i's realized loss exceeded VaR.
func ChristoffersenTest(exceedances []bool, expectedRate float64) (models.HypothesisTest, error) {
	if len(exceedances) < MinBacktestObservations {
		return models.HypothesisTest{}, errors.InsufficientData("backtest requires at least 30 observations")
	}

	exceptions := 0
	for _, e := range exceedances {
		if e {
			exceptions++
		}
	}
	coverage, err := KupiecTest(exceptions, len(exceedances), expectedRate)
	if err != nil {
		return models.HypothesisTest{}, err
	}

	lr := coverage.TestStatistic + independenceStatistic(exceedances)

	chi2 := distuv.ChiSquared{K: 2}
	return models.HypothesisTest{
		TestStatistic: lr,
		CriticalValue: chiSquare2Critical,
		PValue:        1 - chi2.CDF(lr),
		RejectNull:    lr > chiSquare2Critical,
	}, nil
}

// independenceStatistic computes the Markov-transition likelihood ratio.
// Under the null the probability of an exception does not depend on
// whether yesterday was an exception.
func independenceStatistic(exceedances []bool) float64 {
	var n00, n01, n10, n11 float64
	for i := 1; i < len(exceedances); i++ {
		prev, cur := exceedances[i-1], exceedances[i]
		switch {
		case !prev && !cur:
			n00++
		case !prev && cur:
			n01++
		case prev && !cur:
			n10++
		default:
			n11++
		}
	}

	total := n00 + n01 + n10 + n11
	if total == 0 {
		return 0
	}

	pi := (n01 + n11) / total
	var pi01, pi11 float64
	if n00+n01 > 0 {
		pi01 = n01 / (n00 + n01)
	}
	if n10+n11 > 0 {
		pi11 = n11 / (n10 + n11)
	}

	logLNull := xlogy(n00+n10, 1-pi) + xlogy(n01+n11, pi)
	logLAlt := xlogy(n00, 1-pi01) + xlogy(n01, pi01) + xlogy(n10, 1-pi11) + xlogy(n11, pi11)

	lr := -2 * (logLNull - logLAlt)
	if lr < 0 || math.IsNaN(lr) {
		return 0
	}
	return lr
}

// NormalCDF is the standard normal cumulative distribution function
func NormalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// xlogy returns x*ln(y), defining 0*ln(0) = 0
func xlogy(x, y float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(y)
}
