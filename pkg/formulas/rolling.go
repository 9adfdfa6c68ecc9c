package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// NaNs returns a series of length n filled with NaN
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// maskLookback replaces the warm-up region talib leaves as zeros with NaN,
// so downstream code can tell "not enough history" apart from a real zero.
func maskLookback(series []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(series); i++ {
		series[i] = math.NaN()
	}
	return series
}

// SMA returns the simple moving average of a gap-free series.
// The first period-1 values are NaN.
func SMA(values []float64, period int) []float64 {
	if len(values) < period || period < 1 {
		return NaNs(len(values))
	}
	return maskLookback(talib.Sma(values, period), period-1)
}

// Sum returns the rolling sum of a gap-free series.
// The first period-1 values are NaN.
func Sum(values []float64, period int) []float64 {
	if len(values) < period || period < 1 {
		return NaNs(len(values))
	}
	return maskLookback(talib.Sum(values, period), period-1)
}

// RollingMax returns the rolling maximum (window includes the current bar).
// The first period-1 values are NaN.
func RollingMax(values []float64, period int) []float64 {
	if len(values) < period || period < 1 {
		return NaNs(len(values))
	}
	return maskLookback(talib.Max(values, period), period-1)
}

// MACD returns the MACD line, signal line and histogram for the given periods.
// Values inside the combined warm-up window are NaN.
func MACD(values []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	lookback := slow - 1 + signal - 1
	if len(values) <= lookback {
		return NaNs(len(values)), NaNs(len(values)), NaNs(len(values))
	}
	macd, sig, hist = talib.Macd(values, fast, slow, signal)
	return maskLookback(macd, lookback), maskLookback(sig, lookback), maskLookback(hist, lookback)
}

// RollingMean is a windowed mean over a series that may contain NaN.
// A window yields NaN unless it holds at least minPeriods finite values.
func RollingMean(values []float64, window, minPeriods int) []float64 {
	return rollingApply(values, window, minPeriods, Mean)
}

// RollingStd is the windowed sample standard deviation over a series that may
// contain NaN. A window yields NaN unless it holds at least minPeriods (and at
// least two) finite values.
func RollingStd(values []float64, window, minPeriods int) []float64 {
	if minPeriods < 2 {
		minPeriods = 2
	}
	return rollingApply(values, window, minPeriods, StdDev)
}

func rollingApply(values []float64, window, minPeriods int, fn func([]float64) float64) []float64 {
	out := NaNs(len(values))
	if window < 1 {
		return out
	}
	if minPeriods < 1 {
		minPeriods = 1
	}

	buf := make([]float64, 0, window)
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		buf = buf[:0]
		for _, v := range values[start : i+1] {
			if IsFinite(v) {
				buf = append(buf, v)
			}
		}
		if len(buf) >= minPeriods {
			out[i] = fn(buf)
		}
	}
	return out
}

// Diff returns values[i] - values[i-1]; the first element is NaN.
func Diff(values []float64) []float64 {
	out := NaNs(len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}
