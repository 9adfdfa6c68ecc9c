package audit

import (
	"strconv"
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/internal/modules/allocation"
	"github.com/aristath/sigmaguard/internal/modules/scoring"
	"github.com/aristath/sigmaguard/pkg/formulas"
)

// Status is the outcome of auditing one instrument
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped" // no data or too little history, nothing written
	StatusFailed    Status = "failed"  // ledger fault or unexpected panic, run incomplete
)

// InstrumentResult is what one audit produced
type InstrumentResult struct {
	Ticker     string                      `json:"ticker"`
	Name       string                      `json:"name"`
	Status     Status                      `json:"status"`
	Reason     string                      `json:"reason,omitempty"`
	AuditDate  time.Time                   `json:"audit_date,omitempty"`
	Benchmark  string                      `json:"benchmark,omitempty"`
	Assessment scoring.Assessment          `json:"assessment"`
	Allocation allocation.Allocation       `json:"allocation"`
	Drawdown   allocation.DrawdownEstimate `json:"drawdown"`
	Previous   *scoring.PreviousState      `json:"previous,omitempty"`
	// Persisted is false for sentinel assessments, which never enter the feedback loop
	Persisted     bool          `json:"persisted"`
	ForwardFilled int           `json:"forward_filled"`
	Duration      time.Duration `json:"duration_ns"`
}

// Delta is the score change against the previous audit, if there was one
func (r InstrumentResult) Delta() (float64, bool) {
	return r.Assessment.Delta(r.Previous)
}

// DeltaMark renders the score change as ▲/▼ with magnitude, or "NEW" on a first audit
func (r InstrumentResult) DeltaMark() string {
	d, ok := r.Delta()
	switch {
	case !ok:
		return "NEW"
	case d > 0:
		return "▲" + trimFloat(d)
	case d < 0:
		return "▼" + trimFloat(-d)
	default:
		return "="
	}
}

// LevelChanged reports whether the SOP level moved since the previous audit
func (r InstrumentResult) LevelChanged() bool {
	return r.Previous != nil && r.Previous.Level != r.Assessment.Level
}

// BatchSummary describes one batch run
type BatchSummary struct {
	RunID         string               `json:"run_id"`
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    time.Time            `json:"finished_at"`
	Macro         domain.MacroSnapshot `json:"macro"`
	Total         int                  `json:"total"`
	Completed     int                  `json:"completed"`
	Skipped       int                  `json:"skipped"`
	Failed        int                  `json:"failed"`
	ForwardFilled int                  `json:"forward_filled"`
	Results       []InstrumentResult   `json:"results"`
}

func (s *BatchSummary) tally() {
	s.Total = len(s.Results)
	s.Completed, s.Skipped, s.Failed, s.ForwardFilled = 0, 0, 0, 0
	for _, r := range s.Results {
		switch r.Status {
		case StatusCompleted:
			s.Completed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
		s.ForwardFilled += r.ForwardFilled
	}
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(formulas.Round(v, 1), 'f', 1, 64)
}
