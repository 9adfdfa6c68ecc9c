package indicators

import (
	"math"

	"github.com/aristath/sigmaguard/pkg/formulas"
)

// regression returns rolling R² and the relative slope (% of the window's first close per bar).
func regression(closes []float64, period int) (r2, slope []float64) {
	r2 = formulas.NaNs(len(closes))
	slope = formulas.NaNs(len(closes))
	for i := period - 1; i < len(closes); i++ {
		window := closes[i-period+1 : i+1]
		s, _, fit := formulas.LinearFit(window)
		r2[i] = fit
		slope[i] = s / (window[0] + formulas.Epsilon) * 100
	}
	return r2, slope
}

func macdTrend(closes []float64) (hist []float64, trend []MACDTrend) {
	_, _, hist = formulas.MACD(closes, 12, 26, 9)
	trend = make([]MACDTrend, len(closes))
	for i := 1; i < len(closes); i++ {
		if math.IsNaN(hist[i]) || math.IsNaN(hist[i-1]) {
			continue
		}
		if hist[i] > hist[i-1] {
			trend[i] = MACDAccelerating
		} else {
			trend[i] = MACDDecelerating
		}
	}
	return hist, trend
}

func maSlope(sma []float64, shift int) []MASlope {
	out := make([]MASlope, len(sma))
	for i := shift; i < len(sma); i++ {
		if math.IsNaN(sma[i]) || math.IsNaN(sma[i-shift]) {
			continue
		}
		if sma[i] > sma[i-shift] {
			out[i] = MASlopeRising
		} else {
			out[i] = MASlopeFalling
		}
	}
	return out
}

// newHighs flags bars whose close equals the highest close of the trailing window.
func newHighs(closes []float64, window int) []bool {
	max := formulas.RollingMax(closes, window)
	out := make([]bool, len(closes))
	for i := range closes {
		out[i] = !math.IsNaN(max[i]) && closes[i] >= max[i]
	}
	return out
}
