// Package allocation derives stop-loss, position weight and efficiency index
// from the latest indicator snapshot.
package allocation

import (
	"math"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/internal/modules/indicators"
	"github.com/aristath/sigmaguard/pkg/formulas"
)

const (
	statisticalLookback = 252
	technicalBuffer     = 0.92
	emergencyStopRatio  = 0.90
	emergencyRisk       = 0.10
)

// Policy is the capital-at-risk policy
type Policy struct {
	AccountRiskLimit float64 // fraction of the account lost if the stop is hit
	MaxWeightPct     float64 // hard cap on recommended weight, in percent
	EIBenchmark      float64 // risk distance the efficiency index is measured against
}

// DefaultPolicy risks 0.8% of the account per position, capped at a 20% weight
func DefaultPolicy() Policy {
	return Policy{
		AccountRiskLimit: 0.008,
		MaxWeightPct:     20,
		EIBenchmark:      0.20,
	}
}

// Allocation is the capital recommendation for one instrument
type Allocation struct {
	StopLoss        float64 `json:"stop_loss"`
	RiskDistancePct float64 `json:"risk_distance_pct"`
	WeightPct       float64 `json:"weight_pct"`
	EfficiencyIndex float64 `json:"efficiency_index"`
	Emergency       bool    `json:"emergency"` // price was at or below both floors
}

// Allocator sizes positions under a fixed policy
type Allocator struct {
	policy Policy
}

// NewAllocator creates a new allocator
func NewAllocator(policy Policy) *Allocator {
	return &Allocator{policy: policy}
}

// Allocate places the stop at the higher of a statistical floor (one-year mean
// minus two standard deviations) and a technical floor (8% under SMA120), then
// sizes the position so hitting the stop costs the account risk limit.
func (a *Allocator) Allocate(latest indicators.Snapshot, bars []domain.PriceBar) Allocation {
	price := latest.Close

	stop := math.Max(statisticalFloor(bars), technicalFloor(latest))

	var risk float64
	emergency := price <= stop
	if emergency {
		stop = price * emergencyStopRatio
		risk = emergencyRisk
	} else {
		risk = (price - stop) / price
	}

	weight := math.Min(a.policy.AccountRiskLimit/risk*100, a.policy.MaxWeightPct)

	return Allocation{
		StopLoss:        formulas.Round(stop, 2),
		RiskDistancePct: formulas.Round(risk*100, 2),
		WeightPct:       formulas.Round(weight, 1),
		EfficiencyIndex: formulas.Round(a.policy.EIBenchmark/risk, 2),
		Emergency:       emergency,
	}
}

func statisticalFloor(bars []domain.PriceBar) float64 {
	start := len(bars) - statisticalLookback
	if start < 0 {
		start = 0
	}
	closes := make([]float64, 0, len(bars)-start)
	for _, b := range bars[start:] {
		closes = append(closes, b.Close)
	}
	if len(closes) == 0 {
		return math.Inf(-1)
	}
	return formulas.Mean(closes) - 2*formulas.StdDev(closes)
}

// technicalFloor recovers SMA120 from the disparity and sits 8% below it
func technicalFloor(latest indicators.Snapshot) float64 {
	if latest.Disparity <= 0 {
		return math.Inf(-1)
	}
	return latest.Close / (latest.Disparity / 100) * technicalBuffer
}
