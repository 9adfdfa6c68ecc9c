// Package yahoo provides the Yahoo Finance price provider.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/pkg/formulas"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Config tunes how hard the client leans on Yahoo
type Config struct {
	RequestsPerSecond float64       `yaml:"requests_per_second" default:"2" validate:"gt=0"`
	Burst             int           `yaml:"burst" default:"4" validate:"gte=1"`
	MaxRetries        int           `yaml:"max_retries" default:"3" validate:"gte=1,lte=10"`
	RetryBase         time.Duration `yaml:"retry_base" default:"1s"`
	BreakerFailures   uint32        `yaml:"breaker_failures" default:"5" validate:"gte=1"`
	BreakerTimeout    time.Duration `yaml:"breaker_timeout" default:"60s"`
}

// DefaultConfig returns the production client settings
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		Burst:             4,
		MaxRetries:        3,
		RetryBase:         time.Second,
		BreakerFailures:   5,
		BreakerTimeout:    60 * time.Second,
	}
}

// Client implements domain.PriceProvider against Yahoo Finance.
// Every upstream call goes through one rate limiter and one circuit breaker.
type Client struct {
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger

	history historyFunc
	quotes  quotesFunc
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new Yahoo Finance client backed by go-yfinance
func NewClient(cfg Config, log zerolog.Logger) *Client {
	return newClient(cfg, log, nativeHistory, nativeQuotes)
}

func newClient(cfg Config, log zerolog.Logger, history historyFunc, quotes quotesFunc) *Client {
	c := &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		log:     log.With().Str("client", "yahoo").Logger(),
		history: history,
		quotes:  quotes,
		sleep:   sleepContext,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "yahoo",
		Interval: 60 * time.Second,
		Timeout:  cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A symbol without data is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNoData)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	return c
}

// History fetches daily bars for symbol over a Yahoo period ("1mo", "5y", "max").
// Bars come back sorted by date with duplicates and non-positive closes removed.
func (c *Client) History(ctx context.Context, symbol, period string) ([]domain.PriceBar, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", domain.ErrNoData)
	}

	var bars []domain.PriceBar
	err := c.do(ctx, "history:"+symbol, func() error {
		raw, err := c.history(symbol, period)
		if err != nil {
			return err
		}
		bars = cleanBars(raw)
		if len(bars) == 0 {
			return fmt.Errorf("%w: %s returned no usable bars for %s", domain.ErrNoData, symbol, period)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("period", period).
		Int("bars", len(bars)).
		Msg("Fetched price history")
	return bars, nil
}

// Macro fetches the latest VIX, US 10Y yield and dollar index closes in one request.
// Quotes that fail individually are left at zero.
func (c *Client) Macro(ctx context.Context) (domain.MacroSnapshot, error) {
	symbols := []string{domain.SymbolVIX, domain.SymbolUS10Y, domain.SymbolDXY}

	var last map[string]float64
	err := c.do(ctx, "macro", func() error {
		var err error
		last, err = c.quotes(symbols)
		return err
	})
	if err != nil {
		return domain.MacroSnapshot{}, err
	}

	snap := domain.MacroSnapshot{
		AsOf:  time.Now().UTC(),
		VIX:   finiteOrZero(last[domain.SymbolVIX]),
		US10Y: finiteOrZero(last[domain.SymbolUS10Y]),
		DXY:   finiteOrZero(last[domain.SymbolDXY]),
	}
	for _, s := range symbols {
		if _, ok := last[s]; !ok {
			c.log.Warn().Str("symbol", s).Msg("Macro quote unavailable, recording zero")
		}
	}
	return snap, nil
}

// do runs fn behind the limiter and breaker, retrying transient failures with
// exponential backoff. ErrNoData and an open breaker are not retried.
func (c *Client) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait for %s: %w", op, err)
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, domain.ErrNoData) ||
			errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		if attempt < c.cfg.MaxRetries-1 {
			wait := c.cfg.RetryBase * time.Duration(1<<uint(attempt))
			c.log.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).Dur("wait", wait).Msg("Retrying")
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("yahoo %s failed: %w", op, lastErr)
}

// BreakerState reports the circuit breaker state for status endpoints
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func cleanBars(raw []domain.PriceBar) []domain.PriceBar {
	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Date.Before(raw[j].Date) })

	out := make([]domain.PriceBar, 0, len(raw))
	for _, b := range raw {
		if !formulas.IsFinite(b.Close) || b.Close <= 0 {
			continue
		}
		if n := len(out); n > 0 && sameDay(out[n-1].Date, b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func finiteOrZero(v float64) float64 {
	if !formulas.IsFinite(v) {
		return 0
	}
	return v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
