package ledger

import (
	"context"
	"testing"
	"time"

	testingpkg "github.com/aristath/sigmaguard/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleEntry(ticker string, date time.Time, score float64, level int) Entry {
	return Entry{
		AuditDate:     date,
		Ticker:        ticker,
		Name:          ticker + " Inc",
		RiskScore:     score,
		RiskLevel:     level,
		PriceT:        100,
		SigmaAvg:      0.5,
		Sigma:         [5]float64{0.1, 0.2, 0.3, 0.4, 0.5},
		RSI:           55,
		MFI:           50,
		ADX:           30,
		R2:            0.8,
		BenchTicker:   "^GSPC",
		ScorePos:      10,
		ScorePosEMA:   11,
		ScoreEne:      20,
		ScoreEneEMA:   21,
		ScoreTrap:     5,
		ScoreTrapEMA:  6,
		TrendScenario: "BULLISH",
		SOPAction:     "Hold",
	}
}

func TestRepository_UpsertAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	e := sampleEntry("AAPL", day(2026, 3, 2), 42.5, 5)
	require.NoError(t, repo.Upsert(ctx, e))

	got, err := repo.Get(ctx, "AAPL", day(2026, 3, 2))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, e.AuditDate, got.AuditDate)
	assert.Equal(t, "AAPL Inc", got.Name)
	assert.Equal(t, 42.5, got.RiskScore)
	assert.Equal(t, 5, got.RiskLevel)
	assert.Equal(t, e.Sigma, got.Sigma)
	assert.Equal(t, "^GSPC", got.BenchTicker)
	assert.Nil(t, got.Forward)

	missing, err := repo.Get(ctx, "AAPL", day(2026, 3, 3))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_UpsertOverwritesSameDay(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 3, 2), 40, 4)))
	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 3, 2), 65, 6)))

	entries, err := repo.Entries(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 65.0, entries[0].RiskScore)
	assert.Equal(t, 6, entries[0].RiskLevel)
}

func TestRepository_UpsertKeepsFilledForwardReturns(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	date := day(2026, 1, 5)

	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", date, 40, 4)))
	wrote, err := repo.FillForwardReturns(ctx, "AAPL", date, ForwardReturns{Ret20d: 3.5, MinRet20d: -2, MaxRet20d: 6})
	require.NoError(t, err)
	require.True(t, wrote)

	// Re-running the audit for the same day must not erase realized outcomes
	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", date, 55, 5)))

	got, err := repo.Get(ctx, "AAPL", date)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 55.0, got.RiskScore)
	require.NotNil(t, got.Forward)
	assert.Equal(t, 3.5, got.Forward.Ret20d)
	assert.Equal(t, -2.0, got.Forward.MinRet20d)
	assert.Equal(t, 6.0, got.Forward.MaxRet20d)
}

func TestRepository_FillForwardReturnsOnlyOnce(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	date := day(2026, 1, 5)
	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", date, 40, 4)))

	wrote, err := repo.FillForwardReturns(ctx, "AAPL", date, ForwardReturns{Ret20d: 1})
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = repo.FillForwardReturns(ctx, "AAPL", date, ForwardReturns{Ret20d: 99})
	require.NoError(t, err)
	assert.False(t, wrote)

	got, err := repo.Get(ctx, "AAPL", date)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Forward.Ret20d)
}

func TestRepository_PreviousState(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	t.Run("no history", func(t *testing.T) {
		state, err := repo.PreviousState(ctx, "AAPL", day(2026, 3, 2))
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 2, 26), 30, 3)))
	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 2, 27), 35, 4)))
	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 3, 2), 70, 7)))
	require.NoError(t, repo.Upsert(ctx, sampleEntry("MSFT", day(2026, 3, 1), 90, 8)))

	t.Run("strictly before date", func(t *testing.T) {
		state, err := repo.PreviousState(ctx, "AAPL", day(2026, 3, 2))
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, day(2026, 2, 27), state.AuditDate)
		assert.Equal(t, 35.0, state.Score)
		assert.Equal(t, 4, state.Level)
		assert.Equal(t, 11.0, state.Smoothed.Position)
		assert.Equal(t, 21.0, state.Smoothed.Energy)
		assert.Equal(t, 6.0, state.Smoothed.Trap)
	})

	t.Run("ignores time of day", func(t *testing.T) {
		state, err := repo.PreviousState(ctx, "AAPL", day(2026, 3, 2).Add(15*time.Hour))
		require.NoError(t, err)
		require.NotNil(t, state)
		assert.Equal(t, day(2026, 2, 27), state.AuditDate)
	})

	t.Run("first entry has no previous", func(t *testing.T) {
		state, err := repo.PreviousState(ctx, "AAPL", day(2026, 2, 26))
		require.NoError(t, err)
		assert.Nil(t, state)
	})
}

func TestRepository_PendingForwardReturns(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 1, 10), 40, 4)))
	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 1, 5), 40, 4)))
	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 2, 20), 40, 4)))
	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 1, 2), 40, 4)))
	_, err := repo.FillForwardReturns(ctx, "AAPL", day(2026, 1, 2), ForwardReturns{Ret20d: 1})
	require.NoError(t, err)

	pending, err := repo.PendingForwardReturns(ctx, "AAPL", day(2026, 1, 31))
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, day(2026, 1, 5), pending[0].AuditDate)
	assert.Equal(t, day(2026, 1, 10), pending[1].AuditDate)
	assert.Equal(t, 100.0, pending[0].PriceT)
}

func TestRepository_EntriesLatestAndTickers(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleEntry("MSFT", day(2026, 3, 1), 20, 2)))
	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 3, 1), 30, 3)))
	require.NoError(t, repo.Upsert(ctx, sampleEntry("AAPL", day(2026, 3, 2), 31, 3)))

	entries, err := repo.Entries(ctx, "AAPL", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, day(2026, 3, 2), entries[0].AuditDate)

	latest, err := repo.Latest(ctx, "AAPL")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 31.0, latest.RiskScore)

	none, err := repo.Latest(ctx, "TSLA")
	require.NoError(t, err)
	assert.Nil(t, none)

	tickers, err := repo.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, tickers)
}

func TestEntry_State(t *testing.T) {
	e := sampleEntry("AAPL", day(2026, 3, 2), 42, 5)
	state := e.State()
	assert.Equal(t, e.AuditDate, state.AuditDate)
	assert.Equal(t, 42.0, state.Score)
	assert.Equal(t, 5, state.Level)
	assert.Equal(t, 11.0, state.Smoothed.Position)
}

func TestColumns(t *testing.T) {
	assert.Len(t, Columns, 53)
	assert.Len(t, entryArgs(sampleEntry("AAPL", day(2026, 3, 2), 1, 1)), len(Columns))
}
