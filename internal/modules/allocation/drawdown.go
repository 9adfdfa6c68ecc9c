package allocation

import "github.com/aristath/sigmaguard/internal/modules/indicators"

// DrawdownEstimate is a coarse expectation of the next pullback, for reporting only.
type DrawdownEstimate struct {
	ExpectedMDDPct float64 `json:"expected_mdd_pct"`
	RecoveryDays   int     `json:"recovery_days"`
}

// EstimateDrawdown expects a deeper pullback when the price is statistically
// stretched and a slower recovery when momentum is overbought.
func EstimateDrawdown(latest indicators.Snapshot) DrawdownEstimate {
	est := DrawdownEstimate{ExpectedMDDPct: -5, RecoveryDays: 10}
	if latest.AvgSigma > 2.0 {
		est.ExpectedMDDPct = -15
	}
	if latest.RSI > 70 {
		est.RecoveryDays = 20
	}
	return est
}
