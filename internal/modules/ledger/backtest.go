package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/pkg/formulas"
	"github.com/rs/zerolog"
)

const (
	// ForwardWaitDays is how many calendar days an entry must age before its returns are measured
	ForwardWaitDays = 20
	// ForwardTradingDays is how many post-audit bars the measurement uses
	ForwardTradingDays = 15
)

// Backtester fills realized forward returns for entries old enough to measure.
type Backtester struct {
	repo     *Repository
	provider domain.PriceProvider
	now      func() time.Time
	log      zerolog.Logger
}

// NewBacktester creates a new forward-return backtester
func NewBacktester(repo *Repository, provider domain.PriceProvider, log zerolog.Logger) *Backtester {
	return &Backtester{
		repo:     repo,
		provider: provider,
		now:      time.Now,
		log:      log.With().Str("component", "backtester").Logger(),
	}
}

// Resolve measures every due entry for ticker and returns how many it filled.
// Entries without post-audit data yet are left for a later run.
func (b *Backtester) Resolve(ctx context.Context, ticker string) (int, error) {
	now := b.now()
	cutoff := now.AddDate(0, 0, -ForwardWaitDays)

	pending, err := b.repo.PendingForwardReturns(ctx, ticker, cutoff)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// One fetch covers every pending row; they are sorted oldest first.
	period := periodCovering(now.Sub(pending[0].AuditDate))
	bars, err := b.provider.History(ctx, ticker, period)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch post-audit prices for %s: %w", ticker, err)
	}

	filled := 0
	for _, p := range pending {
		fr, ok := ComputeForwardReturns(bars, p.AuditDate, p.PriceT)
		if !ok {
			b.log.Debug().
				Str("ticker", ticker).
				Str("audit_date", p.AuditDate.Format(DateLayout)).
				Msg("No post-audit bars yet, leaving for next run")
			continue
		}

		wrote, err := b.repo.FillForwardReturns(ctx, ticker, p.AuditDate, fr)
		if err != nil {
			return filled, err
		}
		if wrote {
			filled++
		}
	}

	if filled > 0 {
		b.log.Info().
			Str("ticker", ticker).
			Int("filled", filled).
			Int("pending", len(pending)).
			Msg("Forward returns resolved")
	}
	return filled, nil
}

// ComputeForwardReturns measures the first ForwardTradingDays bars strictly after
// auditDate against the audited price: close-to-close return, worst low and best high.
// Returns false when no post-audit bar exists or the audited price is unusable.
func ComputeForwardReturns(bars []domain.PriceBar, auditDate time.Time, priceT float64) (ForwardReturns, bool) {
	if priceT <= 0 {
		return ForwardReturns{}, false
	}

	day := truncateDay(auditDate)
	window := make([]domain.PriceBar, 0, ForwardTradingDays)
	for _, bar := range bars {
		if !truncateDay(bar.Date).After(day) {
			continue
		}
		window = append(window, bar)
		if len(window) == ForwardTradingDays {
			break
		}
	}
	if len(window) == 0 {
		return ForwardReturns{}, false
	}

	maxHigh, minLow := window[0].High, window[0].Low
	for _, bar := range window[1:] {
		if bar.High > maxHigh {
			maxHigh = bar.High
		}
		if bar.Low < minLow {
			minLow = bar.Low
		}
	}
	last := window[len(window)-1].Close

	pct := func(p float64) float64 {
		return formulas.Round((p-priceT)/priceT*100, 2)
	}
	return ForwardReturns{
		Ret20d:    pct(last),
		MinRet20d: pct(minLow),
		MaxRet20d: pct(maxHigh),
	}, true
}

// periodCovering returns the shortest Yahoo history period reaching back at least age.
func periodCovering(age time.Duration) string {
	days := int(age.Hours()/24) + 5
	switch {
	case days <= 28:
		return "1mo"
	case days <= 88:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 360:
		return "1y"
	case days <= 725:
		return "2y"
	case days <= 1820:
		return "5y"
	case days <= 3650:
		return "10y"
	default:
		return "max"
	}
}
