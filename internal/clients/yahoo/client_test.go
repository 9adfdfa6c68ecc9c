package yahoo

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 100
	cfg.RetryBase = time.Millisecond
	return cfg
}

func newTestClient(cfg Config, history historyFunc, quotes quotesFunc) *Client {
	c := newClient(cfg, zerolog.Nop(), history, quotes)
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func bar(day int, close float64) domain.PriceBar {
	return domain.PriceBar{
		Date:  time.Date(2026, 1, day, 0, 0, 0, 0, time.UTC),
		High:  close + 1,
		Low:   close - 1,
		Close: close,
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(DefaultConfig(), zerolog.Nop())
	assert.NotNil(t, client)
	assert.Equal(t, "closed", client.BreakerState())

	var _ domain.PriceProvider = client
}

func TestHistory_CleansBars(t *testing.T) {
	client := newTestClient(testConfig(), func(symbol, period string) ([]domain.PriceBar, error) {
		assert.Equal(t, "AAPL", symbol)
		assert.Equal(t, "5y", period)
		return []domain.PriceBar{
			bar(3, 103),
			bar(1, 101),
			bar(2, 0),          // halted, no price
			bar(4, math.NaN()), // corrupt
			bar(3, 104),        // duplicate day, later wins
		}, nil
	}, nil)

	bars, err := client.History(context.Background(), " AAPL ", "5y")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 104.0, bars[1].Close)
}

func TestHistory_EmptyIsNoData(t *testing.T) {
	var calls int32
	client := newTestClient(testConfig(), func(string, string) ([]domain.PriceBar, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}, nil)

	_, err := client.History(context.Background(), "DELISTED", "5y")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoData)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no-data is not retried")

	_, err = client.History(context.Background(), "  ", "5y")
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestHistory_RetriesTransientErrors(t *testing.T) {
	var calls int32
	client := newTestClient(testConfig(), func(string, string) ([]domain.PriceBar, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("connection reset")
		}
		return []domain.PriceBar{bar(1, 100)}, nil
	}, nil)

	bars, err := client.History(context.Background(), "AAPL", "1y")
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHistory_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	boom := errors.New("HTTP 500")
	client := newTestClient(testConfig(), func(string, string) ([]domain.PriceBar, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	}, nil)

	_, err := client.History(context.Background(), "AAPL", "1y")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHistory_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.BreakerFailures = 2

	var calls int32
	client := newTestClient(cfg, func(string, string) ([]domain.PriceBar, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("HTTP 429")
	}, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.History(ctx, "AAPL", "1y")
		require.Error(t, err)
	}
	assert.Equal(t, "open", client.BreakerState())

	_, err := client.History(ctx, "AAPL", "1y")
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "open breaker short-circuits upstream")
}

func TestHistory_NoDataDoesNotTripBreaker(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerFailures = 1
	client := newTestClient(cfg, func(string, string) ([]domain.PriceBar, error) {
		return nil, nil
	}, nil)

	for i := 0; i < 3; i++ {
		_, err := client.History(context.Background(), "DELISTED", "1y")
		assert.ErrorIs(t, err, domain.ErrNoData)
	}
	assert.Equal(t, "closed", client.BreakerState())
}

func TestHistory_CancelledContext(t *testing.T) {
	client := newTestClient(testConfig(), func(string, string) ([]domain.PriceBar, error) {
		return nil, errors.New("unreachable")
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.History(ctx, "AAPL", "1y")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMacro(t *testing.T) {
	client := newTestClient(testConfig(), nil, func(symbols []string) (map[string]float64, error) {
		assert.ElementsMatch(t, []string{domain.SymbolVIX, domain.SymbolUS10Y, domain.SymbolDXY}, symbols)
		return map[string]float64{
			domain.SymbolVIX:   18.5,
			domain.SymbolUS10Y: 4.25,
		}, nil
	})

	snap, err := client.Macro(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 18.5, snap.VIX)
	assert.Equal(t, 4.25, snap.US10Y)
	assert.Equal(t, 0.0, snap.DXY)
	assert.False(t, snap.AsOf.IsZero())
}

func TestMacro_Error(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	client := newTestClient(cfg, nil, func([]string) (map[string]float64, error) {
		return nil, errors.New("download failed")
	})

	_, err := client.Macro(context.Background())
	assert.Error(t, err)
}
