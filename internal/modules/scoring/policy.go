package scoring

// Policy holds the tunable weights and thresholds of the scoring model.
// The values are policy choices, not derived constants.
type Policy struct {
	SmoothingAlpha float64 // EMA weight of today's raw sub-score
	SigmaCritical  float64 // avg sigma at which position risk saturates

	LivermoreMaxSigma float64 // discount voided at or above this avg sigma
	LivermoreMinR2    float64
	LivermoreMinADX   float64
	LivermoreMinMFI   float64
}

// DefaultPolicy returns the standard scoring policy
func DefaultPolicy() Policy {
	return Policy{
		SmoothingAlpha:    0.5,
		SigmaCritical:     2.5,
		LivermoreMaxSigma: 2.0,
		LivermoreMinR2:    0.5,
		LivermoreMinADX:   25,
		LivermoreMinMFI:   40,
	}
}

// Sub-score weights and energy components
const (
	weightPosition = 30.0
	weightEnergy   = 50.0
	weightTrap     = 20.0

	energyMaxRaw       = 40.0
	macdReversalRisk   = 10.0
	macdStableRisk     = 3.0
	bbwExpansionRisk   = 12.0
	bbwNormalRisk      = 5.0
	mfiDivergenceRisk  = 18.0
	mfiStableRisk      = 8.0
	confidenceCeiling  = 80.0
	confidenceRange    = 40.0
	bullishBrakeFactor = 0.40
	bearishBoostFactor = 0.60
	adxSaturation      = 40.0
)
