// Package indicators turns a daily price series into per-bar technical and
// statistical indicator snapshots.
package indicators

import (
	"fmt"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/pkg/formulas"
	"github.com/rs/zerolog"
)

const (
	// MinBars is the shortest history the engine accepts
	MinBars = 120

	periodRSI       = 14
	periodMFI       = 14
	periodADX       = 14
	periodBB        = 20
	periodR2        = 20
	periodDisparity = 120
	maSlopeShift    = 5
	disparityWindow = 1260
	bbStdDev        = 2.0
)

// Engine computes indicator snapshots. It holds no per-instrument state and is
// safe for concurrent use.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new indicator engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "indicators").Logger(),
	}
}

// Compute derives one snapshot per bar and returns only the fully populated rows,
// in date order. About 239 bars are needed before the first complete row appears.
//
// Returns domain.ErrNoData for an empty series and domain.ErrDataInsufficient
// when the series is shorter than MinBars or produces no complete row.
func (e *Engine) Compute(bars []domain.PriceBar) ([]Snapshot, error) {
	if len(bars) == 0 {
		return nil, domain.ErrNoData
	}
	if len(bars) < MinBars {
		return nil, fmt.Errorf("%w: %d bars, need at least %d", domain.ErrDataInsufficient, len(bars), MinBars)
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	rsiSeries := rsi(closes, periodRSI)
	mfiSeries := mfi(highs, lows, closes, volumes, periodMFI)
	adxSeries := adx(highs, lows, closes, periodADX)
	r2Series, slopeSeries := regression(closes, periodR2)
	bb := bollinger(closes, periodBB, bbStdDev)

	sma120 := formulas.SMA(closes, periodDisparity)
	disp := disparity(closes, sma120)
	dispLimit, dispAvg := disparityLimit(disp, disparityWindow, periodDisparity)
	sigma, avgSigma := multiSigma(closes, MinBars)
	hist, trend := macdTrend(closes)
	slopeLabel := maSlope(sma120, maSlopeShift)
	high126 := newHighs(closes, 126)
	high252 := newHighs(closes, 252)

	snapshots := make([]Snapshot, 0, n)
	for i, b := range bars {
		s := Snapshot{
			Date:           b.Date,
			Close:          b.Close,
			High:           b.High,
			Low:            b.Low,
			Volume:         b.Volume,
			RSI:            rsiSeries[i],
			MFI:            mfiSeries[i],
			ADX:            adxSeries[i],
			R2:             r2Series[i],
			Slope:          slopeSeries[i],
			Disparity:      disp[i],
			DisparityLimit: dispLimit[i],
			DisparityAvg:   dispAvg[i],
			BBUpper:        bb.upper[i],
			BBLower:        bb.lower[i],
			BBW:            bb.width[i],
			BBWThreshold:   bb.threshold[i],
			AvgSigma:       avgSigma[i],
			MACDHist:       hist[i],
			MACDTrend:      trend[i],
			MASlope:        slopeLabel[i],
			SMA20:          bb.middle[i],
			SMA120:         sma120[i],
			NewHigh126:     high126[i],
			NewHigh252:     high252[i],
		}
		for h := range sigma {
			s.Sigma[h] = sigma[h][i]
		}
		if s.Valid() {
			snapshots = append(snapshots, s)
		}
	}

	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%w: %d bars produced no complete indicator row", domain.ErrDataInsufficient, n)
	}

	e.log.Debug().
		Int("bars", n).
		Int("rows", len(snapshots)).
		Msg("Indicators computed")

	return snapshots, nil
}

// Latest computes the series and returns only its most recent complete row.
func (e *Engine) Latest(bars []domain.PriceBar) (Snapshot, error) {
	snapshots, err := e.Compute(bars)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshots[len(snapshots)-1], nil
}
