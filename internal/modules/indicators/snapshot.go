package indicators

import (
	"time"

	"github.com/aristath/sigmaguard/pkg/formulas"
)

// MACDTrend labels the direction of the MACD histogram versus the previous bar.
type MACDTrend string

const (
	MACDAccelerating MACDTrend = "accelerating"
	MACDDecelerating MACDTrend = "decelerating"
)

// MASlope labels the 120-day moving average against its value five bars earlier.
type MASlope string

const (
	MASlopeRising  MASlope = "Rising"
	MASlopeFalling MASlope = "Falling"
)

// Sigma horizons in trading days (1y through 5y)
var SigmaWindows = [5]int{252, 504, 756, 1008, 1260}

// Snapshot is the full indicator row for one bar.
// Only rows where every required field is populated leave the engine.
type Snapshot struct {
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Volume float64   `json:"volume"`

	RSI float64 `json:"rsi"`
	MFI float64 `json:"mfi"`
	ADX float64 `json:"adx"`

	R2    float64 `json:"r2"`
	Slope float64 `json:"slope"` // % of the window's first close per bar

	Disparity      float64 `json:"disparity"`       // close / SMA120 * 100
	DisparityLimit float64 `json:"disparity_limit"` // floored at 110
	DisparityAvg   float64 `json:"disparity_avg"`

	BBUpper      float64 `json:"bb_upper"`
	BBLower      float64 `json:"bb_lower"`
	BBW          float64 `json:"bbw"`
	BBWThreshold float64 `json:"bbw_threshold"` // floored at 0.3

	Sigma    [5]float64 `json:"sigma"` // indexed like SigmaWindows
	AvgSigma float64    `json:"avg_sigma"`

	MACDHist  float64   `json:"macd_hist"`
	MACDTrend MACDTrend `json:"macd_trend"`
	MASlope   MASlope   `json:"ma_slope"`

	SMA20      float64 `json:"sma20"`
	SMA120     float64 `json:"sma120"`
	NewHigh126 bool    `json:"new_high_126"`
	NewHigh252 bool    `json:"new_high_252"`
}

// Sigma1Y returns the one-year sigma
func (s Snapshot) Sigma1Y() float64 { return s.Sigma[0] }

// Sigma5Y returns the five-year sigma
func (s Snapshot) Sigma5Y() float64 { return s.Sigma[4] }

// Valid reports whether every numeric field the scoring model reads is finite
// and both trend labels are set.
func (s Snapshot) Valid() bool {
	required := []float64{
		s.Close, s.RSI, s.MFI, s.ADX, s.R2, s.Slope,
		s.Disparity, s.DisparityLimit, s.DisparityAvg,
		s.BBUpper, s.BBLower, s.BBW, s.BBWThreshold,
		s.AvgSigma, s.MACDHist, s.SMA20, s.SMA120,
	}
	required = append(required, s.Sigma[:]...)
	for _, v := range required {
		if !formulas.IsFinite(v) {
			return false
		}
	}
	return s.MACDTrend != "" && s.MASlope != ""
}
