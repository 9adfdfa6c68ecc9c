// Package scoring turns the latest indicator snapshot into a 0-100 risk score,
// a nine-level SOP band and the component breakdown recorded in the ledger.
package scoring

import (
	"math"

	"github.com/aristath/sigmaguard/internal/modules/indicators"
	"github.com/aristath/sigmaguard/pkg/formulas"
	"github.com/rs/zerolog"
)

// Engine scores snapshots under a fixed policy. Cross-run state is passed in
// explicitly, so one engine serves every instrument concurrently.
type Engine struct {
	policy Policy
	log    zerolog.Logger
}

// NewEngine creates a new scoring engine
func NewEngine(policy Policy, log zerolog.Logger) *Engine {
	return &Engine{
		policy: policy,
		log:    log.With().Str("component", "scoring").Logger(),
	}
}

// Evaluate scores the latest snapshot.
//
// bench is optional and only feeds the comparison columns. prev is the last
// recorded state strictly before the snapshot's date, or nil on the first run.
// Evaluate never fails: a missing or incomplete snapshot yields a NODATA
// assessment with score 0, and an internal panic yields ERROR with score 50.
func (e *Engine) Evaluate(latest, bench *indicators.Snapshot, prev *PreviousState) (result Assessment) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("Scoring panicked, returning neutral assessment")
			result = sentinelAssessment(50, LabelError)
		}
	}()

	if latest == nil || !latest.Valid() {
		return sentinelAssessment(0, LabelNoData)
	}
	s := *latest

	raw := rawSubScores(s, e.policy)
	smoothed := smooth(raw, prev, e.policy.SmoothingAlpha)
	baseRaw := formulas.Round(smoothed.Sum(), 1)

	mult, scenario := multiplier(s, baseRaw)
	livStatus, livDiscount := livermoreDiscount(s, e.policy)

	score := formulas.Clip(formulas.Round(baseRaw*mult*(1-livDiscount), 1), 0, 100)
	if math.IsNaN(score) {
		score = 0
	}
	sop := SOPFor(score)

	a := Assessment{
		Score:             score,
		Level:             sop.Level,
		Label:             sop.Label,
		Action:            sop.Action,
		Adjustment:        sop.Adjustment,
		Raw:               raw,
		Smoothed:          smoothed,
		BaseRaw:           baseRaw,
		Multiplier:        mult,
		Scenario:          scenario,
		LivermoreStatus:   livStatus,
		LivermoreDiscount: livDiscount,
		MACDHist:          s.MACDHist,
	}

	if bench != nil && bench.Valid() {
		a.BenchMACDHist = bench.MACDHist
		a.ADXGap = s.ADX - bench.ADX
	}

	return a
}

// rawSubScores is a variable so tests can force the recovery path.
var rawSubScores = func(s indicators.Snapshot, p Policy) SubScores {
	return SubScores{
		Position: positionRisk(s, p.SigmaCritical),
		Energy:   energyRisk(s),
		Trap:     trapRisk(s),
	}
}

func sentinelAssessment(score float64, label string) Assessment {
	sop := SOPFor(score)
	return Assessment{
		Score:      score,
		Level:      sop.Level,
		Label:      label,
		Action:     sop.Action,
		Multiplier: 1,
	}
}
