// Package stats provides the pure statistical primitives shared by the risk
// engines: moments, correlation measures, percentile extraction, least
// squares regression and the VaR backtesting hypothesis tests.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean, 0 for an empty sample
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Variance returns the population variance
func Variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := Mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs))
}

// StdDev returns the population standard deviation
func StdDev(xs []float64) float64 {
	return math.Sqrt(Variance(xs))
}

// Skewness returns the third standardized moment, 0 for degenerate samples
func Skewness(xs []float64) float64 {
	return standardizedMoment(xs, 3)
}

// Kurtosis returns the fourth standardized moment. A normal distribution
// scores approximately 3.
func Kurtosis(xs []float64) float64 {
	return standardizedMoment(xs, 4)
}

func standardizedMoment(xs []float64, order float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := Mean(xs)
	sd := StdDev(xs)
	if sd == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Pow((x-mean)/sd, order)
	}
	return sum / float64(len(xs))
}

// PearsonCorrelation returns the linear correlation of two equal-length
// series. Zero-variance inputs yield 0 rather than NaN.
func PearsonCorrelation(xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0
	}
	meanX := Mean(xs)
	meanY := Mean(ys)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// SpearmanCorrelation rank-transforms both series and applies Pearson.
// Ties receive their average rank.
func SpearmanCorrelation(xs, ys []float64) float64 {
	if len(xs) != len(ys) {
		return 0
	}
	return PearsonCorrelation(ranks(xs), ranks(ys))
}

func ranks(xs []float64) []float64 {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	out := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

// Percentile extracts the nearest-rank percentile (p in (0,100]) from a
// value-sorted copy of the sample
func Percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Regression is a closed-form ordinary-least-squares fit y = a + b*x
type Regression struct {
	Slope     float64
	Intercept float64
	RSquared  float64
	N         int
}

// LinearRegression fits y on x by least squares. Degenerate inputs (empty,
// mismatched, zero-variance x) produce a zero-slope fit.
func LinearRegression(xs, ys []float64) Regression {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return Regression{}
	}
	meanX := Mean(xs)
	meanY := Mean(ys)

	var sxx, sxy, syy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return Regression{Intercept: meanY, N: n}
	}

	slope := sxy / sxx
	r2 := 0.0
	if syy > 0 {
		r2 = (sxy * sxy) / (sxx * syy)
	}
	return Regression{
		Slope:     slope,
		Intercept: meanY - slope*meanX,
		RSquared:  r2,
		N:         n,
	}
}
