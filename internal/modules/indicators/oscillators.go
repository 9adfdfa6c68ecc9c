package indicators

import (
	"math"

	"github.com/aristath/sigmaguard/pkg/formulas"
)

// rsi uses simple rolling means of gains and losses rather than Wilder smoothing.
func rsi(closes []float64, period int) []float64 {
	delta := formulas.Diff(closes)
	gains := formulas.NaNs(len(closes))
	losses := formulas.NaNs(len(closes))
	for i := 1; i < len(closes); i++ {
		gains[i] = math.Max(delta[i], 0)
		losses[i] = math.Max(-delta[i], 0)
	}

	avgGain := formulas.RollingMean(gains, period, period)
	avgLoss := formulas.RollingMean(losses, period, period)

	out := formulas.NaNs(len(closes))
	for i := range out {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			continue
		}
		rs := avgGain[i] / (avgLoss[i] + formulas.Epsilon)
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// mfi is the volume-weighted RSI over the typical price.
func mfi(highs, lows, closes, volumes []float64, period int) []float64 {
	n := len(closes)
	typical := make([]float64, n)
	for i := range typical {
		typical[i] = (highs[i] + lows[i] + closes[i]) / 3
	}

	posFlow := make([]float64, n)
	negFlow := make([]float64, n)
	for i := 1; i < n; i++ {
		flow := typical[i] * volumes[i]
		switch {
		case typical[i] > typical[i-1]:
			posFlow[i] = flow
		case typical[i] < typical[i-1]:
			negFlow[i] = flow
		}
	}

	posSum := formulas.Sum(posFlow, period)
	negSum := formulas.Sum(negFlow, period)

	out := formulas.NaNs(n)
	for i := range out {
		if math.IsNaN(posSum[i]) || math.IsNaN(negSum[i]) {
			continue
		}
		ratio := posSum[i] / (negSum[i] + formulas.Epsilon)
		out[i] = 100 - 100/(1+ratio)
	}
	return out
}

// adx averages true range, directional movement and DX with simple rolling means.
// Directional movement only counts when one side beats the other by more than epsilon.
func adx(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 0; i < n; i++ {
		tr[i] = highs[i] - lows[i]
		if i == 0 {
			continue
		}
		tr[i] = math.Max(tr[i], math.Max(
			math.Abs(highs[i]-closes[i-1]),
			math.Abs(lows[i]-closes[i-1]),
		))

		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down+formulas.Epsilon && up > 0 {
			plusDM[i] = up
		}
		if down > up+formulas.Epsilon && down > 0 {
			minusDM[i] = down
		}
	}

	atr := formulas.SMA(tr, period)
	plusAvg := formulas.SMA(plusDM, period)
	minusAvg := formulas.SMA(minusDM, period)

	dx := formulas.NaNs(n)
	for i := range dx {
		if math.IsNaN(atr[i]) {
			continue
		}
		plusDI := 100 * plusAvg[i] / (atr[i] + formulas.Epsilon)
		minusDI := 100 * minusAvg[i] / (atr[i] + formulas.Epsilon)
		dx[i] = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI + formulas.Epsilon)
	}

	return formulas.RollingMean(dx, period, period)
}
