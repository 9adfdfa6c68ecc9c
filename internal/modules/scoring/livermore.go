package scoring

import (
	"fmt"
	"strings"

	"github.com/aristath/sigmaguard/internal/modules/indicators"
)

// Livermore statuses recorded in the ledger
const (
	LivermoreConfirmed252 = "CONFIRMED: 252-day high above MA20"
	LivermoreConfirmed126 = "CONFIRMED: 126-day high above MA20"
	LivermoreUnsupported  = "PENDING: new high without MA20 support"
	LivermoreNone         = "NONE: no breakout"
	livermoreVoidPrefix   = "VOID"
)

// livermoreDiscount grants a score discount to confirmed breakouts and then
// voids it unless every quality gate passes.
func livermoreDiscount(s indicators.Snapshot, p Policy) (string, float64) {
	aboveMA := s.Close > s.SMA20

	var status string
	var discount float64
	switch {
	case s.NewHigh252 && aboveMA:
		status, discount = LivermoreConfirmed252, 0.30
	case s.NewHigh126 && aboveMA:
		status, discount = LivermoreConfirmed126, 0.15
	case s.NewHigh252 || s.NewHigh126:
		status, discount = LivermoreUnsupported, 0.05
	default:
		return LivermoreNone, 0
	}

	if failed := failedGates(s, p); len(failed) > 0 {
		return fmt.Sprintf("%s (%s): %s", livermoreVoidPrefix, status, strings.Join(failed, ", ")), 0
	}
	return status, discount
}

func failedGates(s indicators.Snapshot, p Policy) []string {
	var failed []string
	if s.AvgSigma >= p.LivermoreMaxSigma {
		failed = append(failed, fmt.Sprintf("sigma %.2f >= %.1f", s.AvgSigma, p.LivermoreMaxSigma))
	}
	if s.R2 < p.LivermoreMinR2 {
		failed = append(failed, fmt.Sprintf("R2 %.2f < %.2f", s.R2, p.LivermoreMinR2))
	}
	if s.ADX < p.LivermoreMinADX {
		failed = append(failed, fmt.Sprintf("ADX %.1f < %.0f", s.ADX, p.LivermoreMinADX))
	}
	if s.MFI < p.LivermoreMinMFI {
		failed = append(failed, fmt.Sprintf("MFI %.1f < %.0f", s.MFI, p.LivermoreMinMFI))
	}
	return failed
}

// IsVoided reports whether a recorded Livermore status is a voided discount
func IsVoided(status string) bool {
	return strings.HasPrefix(status, livermoreVoidPrefix)
}
