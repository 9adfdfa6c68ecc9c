package scoring

import (
	"github.com/aristath/sigmaguard/internal/modules/indicators"
	"github.com/aristath/sigmaguard/pkg/formulas"
)

// positionRisk scores statistical extremeness: 0 at or below the mean, full
// weight once avg sigma reaches the critical level.
func positionRisk(s indicators.Snapshot, sigmaCritical float64) float64 {
	return formulas.Round(formulas.Clip(s.AvgSigma/sigmaCritical, 0, 1)*weightPosition, 1)
}

// energyRisk combines momentum deceleration, volatility expansion and
// money-flow divergence (MFI lagging RSI).
func energyRisk(s indicators.Snapshot) float64 {
	raw := macdStableRisk
	if s.MACDTrend == indicators.MACDDecelerating {
		raw = macdReversalRisk
	}

	if s.BBW > s.BBWThreshold {
		raw += bbwExpansionRisk
	} else {
		raw += bbwNormalRisk
	}

	if s.MFI < s.RSI {
		raw += mfiDivergenceRisk
	} else {
		raw += mfiStableRisk
	}

	return formulas.Round(formulas.Clip(raw/energyMaxRaw, 0, 1)*weightEnergy, 1)
}

// trapRisk is maximal under a falling long-term average; otherwise it measures how far
// disparity has travelled from its historical average toward the dynamic limit.
func trapRisk(s indicators.Snapshot) float64 {
	if s.MASlope == indicators.MASlopeFalling {
		return weightTrap
	}
	ratio := (s.Disparity - s.DisparityAvg) / (s.DisparityLimit - s.DisparityAvg + formulas.Epsilon)
	return formulas.Round(formulas.Clip(ratio, 0, 1)*weightTrap, 1)
}

// smooth blends today's raw sub-scores with yesterday's smoothed ones.
// Without history the raw values pass through unchanged.
func smooth(raw SubScores, prev *PreviousState, alpha float64) SubScores {
	if prev == nil {
		return raw
	}
	blend := func(today, before float64) float64 {
		return formulas.Round(alpha*today+(1-alpha)*before, 1)
	}
	return SubScores{
		Position: blend(raw.Position, prev.Smoothed.Position),
		Energy:   blend(raw.Energy, prev.Smoothed.Energy),
		Trap:     blend(raw.Trap, prev.Smoothed.Trap),
	}
}

// trendQuality mixes regression fit and trend strength into [0, 1].
func trendQuality(s indicators.Snapshot) float64 {
	return s.R2*0.7 + formulas.Clip(s.ADX/adxSaturation, 0, 1)*0.3
}

// multiplier brakes the score for orderly uptrends while the base is still
// moderate, and amplifies it for downtrends in proportion to their quality.
func multiplier(s indicators.Snapshot, baseRaw float64) (float64, Scenario) {
	quality := trendQuality(s)
	if s.Slope > 0 {
		confidence := formulas.Clip((confidenceCeiling-baseRaw)/confidenceRange, 0, 1)
		return formulas.Round(1-quality*bullishBrakeFactor*confidence, 2), ScenarioBullish
	}
	return formulas.Round(1+quality*bearishBoostFactor, 2), ScenarioBearish
}
