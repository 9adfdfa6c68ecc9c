package indicators

import (
	"math"

	"github.com/aristath/sigmaguard/pkg/formulas"
)

const (
	bbwFloor       = 0.3
	disparityFloor = 110.0
)

type bollingerBands struct {
	middle, upper, lower, width, threshold []float64
}

func bollinger(closes []float64, period int, k float64) bollingerBands {
	n := len(closes)
	bb := bollingerBands{
		middle:    formulas.SMA(closes, period),
		upper:     formulas.NaNs(n),
		lower:     formulas.NaNs(n),
		width:     formulas.NaNs(n),
		threshold: make([]float64, n),
	}
	std := formulas.RollingStd(closes, period, period)

	for i := 0; i < n; i++ {
		if math.IsNaN(bb.middle[i]) || math.IsNaN(std[i]) {
			continue
		}
		bb.upper[i] = bb.middle[i] + k*std[i]
		bb.lower[i] = bb.middle[i] - k*std[i]
		if bb.middle[i] != 0 {
			bb.width[i] = (bb.upper[i] - bb.lower[i]) / bb.middle[i]
		}
	}

	mean := formulas.RollingMean(bb.width, 100, 100)
	spread := formulas.RollingStd(bb.width, 100, 100)
	for i := 0; i < n; i++ {
		thr := mean[i] + 1.5*spread[i]
		if math.IsNaN(thr) {
			thr = bbwFloor
		}
		bb.threshold[i] = math.Max(thr, bbwFloor)
	}
	return bb
}

// multiSigma measures how many rolling standard deviations the close sits from
// its rolling mean on each horizon. A horizon starts reporting once it has
// minObs observations, so shorter histories still yield partial figures.
func multiSigma(closes []float64, minObs int) (sigma [5][]float64, avg []float64) {
	n := len(closes)
	for h, window := range SigmaWindows {
		mean := formulas.RollingMean(closes, window, minObs)
		std := formulas.RollingStd(closes, window, minObs)
		sigma[h] = formulas.NaNs(n)
		for i := 0; i < n; i++ {
			if math.IsNaN(mean[i]) || math.IsNaN(std[i]) {
				continue
			}
			sigma[h][i] = (closes[i] - mean[i]) / (std[i] + formulas.Epsilon)
		}
	}

	avg = formulas.NaNs(n)
	for i := 0; i < n; i++ {
		var sum float64
		var count int
		for h := range sigma {
			if !math.IsNaN(sigma[h][i]) {
				sum += sigma[h][i]
				count++
			}
		}
		if count > 0 {
			avg[i] = sum / float64(count)
		}
	}
	return sigma, avg
}

// disparity returns close / SMA as a percentage.
func disparity(closes, sma []float64) []float64 {
	out := formulas.NaNs(len(closes))
	for i := range closes {
		if !math.IsNaN(sma[i]) {
			out[i] = closes[i] / (sma[i] + formulas.Epsilon) * 100
		}
	}
	return out
}

// disparityLimit is the instrument's own overheating line: mean + 2 std of the
// disparity ratio over a long window, never below 110.
func disparityLimit(disp []float64, window, minObs int) (limit, avg []float64) {
	ratio := make([]float64, len(disp))
	for i, d := range disp {
		ratio[i] = d / 100
	}

	mean := formulas.RollingMean(ratio, window, minObs)
	std := formulas.RollingStd(ratio, window, minObs)

	limit = formulas.NaNs(len(disp))
	avg = formulas.NaNs(len(disp))
	for i := range disp {
		if math.IsNaN(mean[i]) || math.IsNaN(std[i]) {
			continue
		}
		limit[i] = math.Max((mean[i]+2*std[i])*100, disparityFloor)
		avg[i] = mean[i] * 100
	}
	return limit, avg
}
