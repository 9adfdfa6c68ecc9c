package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/internal/metrics"
	"github.com/aristath/sigmaguard/internal/modules/allocation"
	"github.com/aristath/sigmaguard/internal/modules/indicators"
	"github.com/aristath/sigmaguard/internal/modules/ledger"
	"github.com/aristath/sigmaguard/internal/modules/scoring"
	testingpkg "github.com/aristath/sigmaguard/internal/testing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc      *Service
	repo     *ledger.Repository
	provider *testingpkg.MockPriceProvider
	close    func()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	nop := zerolog.Nop()
	repo := ledger.NewRepository(db.Conn(), nop)
	provider := testingpkg.NewMockPriceProvider()
	svc := NewService(
		Config{HistoryPeriod: "6y", Workers: 4},
		provider,
		repo,
		ledger.NewBacktester(repo, provider, nop),
		indicators.NewEngine(nop),
		scoring.NewEngine(scoring.DefaultPolicy(), nop),
		allocation.NewAllocator(allocation.DefaultPolicy()),
		metrics.New(prometheus.NewRegistry()),
		nop,
	)
	return &testEnv{svc: svc, repo: repo, provider: provider, close: cleanup}
}

func item(ticker string) domain.WatchlistItem {
	return domain.WatchlistItem{Ticker: ticker, Name: ticker + " Corp"}
}

func TestRunInstrument_Completed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bars := testingpkg.RandomWalkBars(400, 1)
	env.provider.SetHistory("AAPL", bars)
	env.provider.SetHistory("SPY", testingpkg.RandomWalkBars(400, 2))

	macro := domain.MacroSnapshot{VIX: 17.25, US10Y: 4.1, DXY: 103.5}
	res := env.svc.RunInstrument(ctx, item("AAPL"), macro)

	require.Equal(t, StatusCompleted, res.Status, res.Reason)
	assert.True(t, res.Persisted)
	assert.True(t, res.AuditDate.Equal(bars[len(bars)-1].Date))
	assert.Equal(t, "SPY", res.Benchmark)
	assert.Nil(t, res.Previous)
	assert.Equal(t, "NEW", res.DeltaMark())
	assert.GreaterOrEqual(t, res.Assessment.Score, 0.0)
	assert.LessOrEqual(t, res.Assessment.Score, 100.0)
	assert.LessOrEqual(t, res.Allocation.WeightPct, 20.0)

	entry, err := env.repo.Get(ctx, "AAPL", res.AuditDate)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "AAPL Corp", entry.Name)
	assert.Equal(t, res.Assessment.Level, entry.RiskLevel)
	assert.Equal(t, "SPY", entry.BenchTicker)
	assert.NotZero(t, entry.BenchPrice)
	assert.Equal(t, 17.25, entry.VIX)
	assert.Nil(t, entry.Forward)
}

func TestRunInstrument_SameDayRerunOverwrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.SetHistory("AAPL", testingpkg.RandomWalkBars(400, 1))

	first := env.svc.RunInstrument(ctx, item("AAPL"), domain.MacroSnapshot{})
	second := env.svc.RunInstrument(ctx, item("AAPL"), domain.MacroSnapshot{})

	require.Equal(t, StatusCompleted, second.Status)
	assert.Nil(t, second.Previous, "a same-day row is never its own previous state")
	assert.Equal(t, first.Assessment.Score, second.Assessment.Score)

	entries, err := env.repo.Entries(ctx, "AAPL", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunInstrument_NextDayUsesPreviousState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bars := testingpkg.RandomWalkBars(401, 3)
	env.provider.SetHistory("AAPL", bars[:400])
	first := env.svc.RunInstrument(ctx, item("AAPL"), domain.MacroSnapshot{})
	require.Equal(t, StatusCompleted, first.Status)

	env.provider.SetHistory("AAPL", bars)
	second := env.svc.RunInstrument(ctx, item("AAPL"), domain.MacroSnapshot{})
	require.Equal(t, StatusCompleted, second.Status)

	require.NotNil(t, second.Previous)
	assert.True(t, second.Previous.AuditDate.Equal(first.AuditDate))
	assert.Equal(t, first.Assessment.Score, second.Previous.Score)
	_, hasDelta := second.Delta()
	assert.True(t, hasDelta)

	// The first row is old and now has a post-audit bar, so it gets measured
	assert.Equal(t, 1, second.ForwardFilled)
	entry, err := env.repo.Get(ctx, "AAPL", first.AuditDate)
	require.NoError(t, err)
	require.NotNil(t, entry.Forward)
}

func TestRunInstrument_Skips(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *testingpkg.MockPriceProvider)
	}{
		{"no data", func(p *testingpkg.MockPriceProvider) { p.SetError("AAPL", domain.ErrNoData) }},
		{"fetch error", func(p *testingpkg.MockPriceProvider) { p.SetError("AAPL", errors.New("timeout")) }},
		{"short history", func(p *testingpkg.MockPriceProvider) { p.SetHistory("AAPL", testingpkg.RandomWalkBars(100, 1)) }},
		{"not enough for a complete row", func(p *testingpkg.MockPriceProvider) { p.SetHistory("AAPL", testingpkg.RandomWalkBars(200, 1)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(env.provider)

			res := env.svc.RunInstrument(context.Background(), item("AAPL"), domain.MacroSnapshot{})
			assert.Equal(t, StatusSkipped, res.Status)
			assert.NotEmpty(t, res.Reason)
			assert.False(t, res.Persisted)

			tickers, err := env.repo.Tickers(context.Background())
			require.NoError(t, err)
			assert.Empty(t, tickers, "skipped instruments write nothing")
		})
	}
}

func TestRunInstrument_MissingBenchmarkStillCompletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.SetHistory("AAPL", testingpkg.RandomWalkBars(400, 1))
	env.provider.SetError("SPY", errors.New("benchmark down"))

	res := env.svc.RunInstrument(ctx, item("AAPL"), domain.MacroSnapshot{})
	require.Equal(t, StatusCompleted, res.Status)

	entry, err := env.repo.Get(ctx, "AAPL", res.AuditDate)
	require.NoError(t, err)
	assert.Equal(t, "SPY", entry.BenchTicker)
	assert.Zero(t, entry.BenchPrice)
}

func TestRunInstrument_PanicIsContained(t *testing.T) {
	env := newTestEnv(t)
	env.provider.SetPanic("AAPL")

	res := env.svc.RunInstrument(context.Background(), item("AAPL"), domain.MacroSnapshot{})
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Reason, "panic")
}

func TestRunInstrument_LedgerFault(t *testing.T) {
	env := newTestEnv(t)
	env.provider.SetHistory("AAPL", testingpkg.RandomWalkBars(400, 1))
	env.close()

	res := env.svc.RunInstrument(context.Background(), item("AAPL"), domain.MacroSnapshot{})
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.Persisted)
}

func TestRunBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.provider.SetMacro(domain.MacroSnapshot{VIX: 22}, nil)
	env.provider.SetHistory("SPY", testingpkg.RandomWalkBars(400, 9))
	env.provider.SetHistory("AAPL", testingpkg.RandomWalkBars(400, 1))
	env.provider.SetHistory("MSFT", testingpkg.RandomWalkBars(400, 2))
	env.provider.SetHistory("NVDA", testingpkg.RandomWalkBars(400, 3))
	env.provider.SetError("GONE", domain.ErrNoData)
	env.provider.SetPanic("BOOM")

	items := []domain.WatchlistItem{item("AAPL"), item("GONE"), item("MSFT"), item("BOOM"), item("NVDA")}
	summary, err := env.svc.RunBatch(ctx, items)
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 22.0, summary.Macro.VIX)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))

	for i, r := range summary.Results {
		assert.Equal(t, items[i].Ticker, r.Ticker, "results keep watchlist order")
	}
	assert.Equal(t, StatusSkipped, summary.Results[1].Status)
	assert.Equal(t, StatusFailed, summary.Results[3].Status)

	assert.Equal(t, 1, env.provider.MacroCalls())
	assert.Equal(t, 1, env.provider.Calls("SPY"), "shared benchmark is fetched once per batch")

	tickers, err := env.repo.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, tickers)

	assert.False(t, env.svc.Running())
}

func TestRunBatch_MacroFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.provider.SetMacro(domain.MacroSnapshot{}, errors.New("macro down"))
	env.provider.SetHistory("AAPL", testingpkg.RandomWalkBars(400, 1))

	summary, err := env.svc.RunBatch(context.Background(), []domain.WatchlistItem{item("AAPL")})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Zero(t, summary.Macro.VIX)
}

func TestRunBatch_RejectsOverlap(t *testing.T) {
	env := newTestEnv(t)
	env.svc.running.Store(true)

	_, err := env.svc.RunBatch(context.Background(), []domain.WatchlistItem{item("AAPL")})
	assert.ErrorIs(t, err, ErrBatchRunning)
}

func TestRunBatch_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	env.provider.SetHistory("AAPL", testingpkg.RandomWalkBars(400, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := env.svc.RunBatch(ctx, []domain.WatchlistItem{item("AAPL"), item("MSFT")})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, "batch cancelled", summary.Results[0].Reason)
}

func TestResolveForwardReturns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bars := testingpkg.RandomWalkBars(420, 5)
	env.provider.SetHistory("AAPL", bars[:400])
	first := env.svc.RunInstrument(ctx, item("AAPL"), domain.MacroSnapshot{})
	require.Equal(t, StatusCompleted, first.Status)

	env.provider.SetHistory("AAPL", bars)
	filled, err := env.svc.ResolveForwardReturns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, filled)

	entry, err := env.repo.Get(ctx, "AAPL", first.AuditDate)
	require.NoError(t, err)
	require.NotNil(t, entry.Forward)

	again, err := env.svc.ResolveForwardReturns(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestWorkerPool_RunsEveryIndexOnce(t *testing.T) {
	pool := NewWorkerPool(3)
	seen := make([]int, 50)

	pool.Run(context.Background(), len(seen),
		func(_ context.Context, idx int) { seen[idx]++ },
		func(int) { t.Error("nothing should be skipped") },
	)
	for i, n := range seen {
		assert.Equal(t, 1, n, "index %d", i)
	}
}

func TestInstrumentResult_DeltaMark(t *testing.T) {
	r := InstrumentResult{Assessment: scoring.Assessment{Score: 55.2, Level: 5}}
	assert.Equal(t, "NEW", r.DeltaMark())
	assert.False(t, r.LevelChanged())

	r.Previous = &scoring.PreviousState{Score: 50, Level: 4, AuditDate: time.Now()}
	assert.Equal(t, "▲5.2", r.DeltaMark())
	assert.True(t, r.LevelChanged())

	r.Previous.Score = 60
	assert.Equal(t, "▼4.8", r.DeltaMark())

	r.Previous.Score = 55.2
	assert.Equal(t, "=", r.DeltaMark())
}
