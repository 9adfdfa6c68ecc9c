package scoring

import "time"

// Sentinel labels for assessments that could not be scored
const (
	LabelNoData = "NODATA"
	LabelError  = "ERROR"
)

// Scenario is the trend direction that picks the multiplier formula
type Scenario string

const (
	ScenarioBullish Scenario = "BULLISH"
	ScenarioBearish Scenario = "BEARISH"
)

// SubScores are the three risk components in points (position 0-30, energy 0-50, trap 0-20).
type SubScores struct {
	Position float64 `json:"position"`
	Energy   float64 `json:"energy"`
	Trap     float64 `json:"trap"`
}

// Sum returns the total of the three components
func (s SubScores) Sum() float64 {
	return s.Position + s.Energy + s.Trap
}

// PreviousState is the last recorded assessment for an instrument strictly
// before the current audit date. It is the only state carried between runs.
type PreviousState struct {
	AuditDate time.Time `json:"audit_date"`
	Score     float64   `json:"score"`
	Level     int       `json:"level"`
	Smoothed  SubScores `json:"smoothed"`
}

// Assessment is the full result of scoring one instrument on one day.
type Assessment struct {
	Score  float64 `json:"score"`
	Level  int     `json:"level"`
	Label  string  `json:"label"`
	Action string  `json:"action"`
	// Adjustment is the suggested fractional position change (-1 exits, +1 commits fully).
	Adjustment float64 `json:"adjustment"`

	Raw        SubScores `json:"raw"`
	Smoothed   SubScores `json:"smoothed"`
	BaseRaw    float64   `json:"base_raw"`
	Multiplier float64   `json:"multiplier"`
	Scenario   Scenario  `json:"scenario"`

	LivermoreStatus   string  `json:"livermore_status"`
	LivermoreDiscount float64 `json:"livermore_discount"`

	MACDHist      float64 `json:"macd_hist"`
	BenchMACDHist float64 `json:"bench_macd_hist"`
	ADXGap        float64 `json:"adx_gap"`
}

// Scored reports whether the assessment came out of the model rather than a sentinel path.
func (a Assessment) Scored() bool {
	return a.Label != LabelNoData && a.Label != LabelError
}

// State converts the assessment into the state the next run will read back.
func (a Assessment) State(auditDate time.Time) PreviousState {
	return PreviousState{
		AuditDate: auditDate,
		Score:     a.Score,
		Level:     a.Level,
		Smoothed:  a.Smoothed,
	}
}

// Delta returns the score change against the previous state and whether one exists.
func (a Assessment) Delta(prev *PreviousState) (float64, bool) {
	if prev == nil {
		return 0, false
	}
	return a.Score - prev.Score, true
}
