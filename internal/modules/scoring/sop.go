package scoring

// SOP is one band of the standard operating procedure: what to do at a given risk score.
type SOP struct {
	Level      int     `json:"level"`
	MinScore   float64 `json:"min_score"`
	Label      string  `json:"label"`
	Action     string  `json:"action"`
	Adjustment float64 `json:"adjustment"`
}

// sopBands is ordered from highest risk to lowest
var sopBands = []SOP{
	{9, 91, "EXIT", "Full exit: liquidate the position and hold cash", -1.0},
	{8, 81, "DANGER", "Protect capital: take profit on at least 50% and raise cash", -0.5},
	{7, 71, "WARNING", "Reduce exposure: trim 30% of the position", -0.3},
	{6, 61, "CAUTION", "Tighten stops and trim 10%; no new entries", -0.1},
	{5, 41, "WATCH", "Hold and observe overheating signs; no new entries", 0},
	{4, 31, "STABLE", "Hold: trend healthy and within the risk budget", 0},
	{3, 21, "HOLD", "Hold and add on pullbacks toward the stop", 0.1},
	{2, 11, "ACCUMULATE", "Scale in: add 30% of the target weight", 0.3},
	{1, 0, "STRONG BUY", "Commit up to the recommended weight", 1.0},
}

// SOPFor returns the band a score falls into. Scores below zero land in level 1.
func SOPFor(score float64) SOP {
	for _, band := range sopBands {
		if score >= band.MinScore {
			return band
		}
	}
	return sopBands[len(sopBands)-1]
}

// LevelFor returns the 1-9 level for a score
func LevelFor(score float64) int {
	return SOPFor(score).Level
}

// SOPBands returns a copy of every band, highest level first
func SOPBands() []SOP {
	out := make([]SOP, len(sopBands))
	copy(out, sopBands)
	return out
}
