// Package formulas holds the numeric building blocks shared by the indicator,
// allocation and reporting code.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Epsilon guards every ratio whose denominator can legitimately reach zero
// (flat prices, zero volume, identical DI lines).
const Epsilon = 1e-10

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (n-1 denominator)
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Correlation calculates the Pearson correlation coefficient between two datasets.
// Returns 0 when either side is constant or the inputs don't line up.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) {
		return 0
	}
	return c
}

// Clip bounds v to [lo, hi]
func Clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LinearFit fits y = intercept + slope*x over x = 0..n-1 with ordinary least squares.
// R² uses an epsilon-guarded total sum of squares so a perfectly flat window
// reports a perfect fit instead of NaN.
func LinearFit(y []float64) (slope, intercept, r2 float64) {
	n := len(y)
	if n < 2 {
		return 0, 0, 0
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}

	intercept, slope = stat.LinearRegression(x, y, nil, false)

	mean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i, v := range y {
		fitted := intercept + slope*x[i]
		ssRes += (v - fitted) * (v - fitted)
		ssTot += (v - mean) * (v - mean)
	}
	r2 = 1 - ssRes/(ssTot+Epsilon)

	return slope, intercept, r2
}
