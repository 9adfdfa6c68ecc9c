package clientdata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/sigmaguard/internal/domain"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory database with the cache tables
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every pooled connection would otherwise get its own empty in-memory database
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE price_history (symbol TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
		CREATE TABLE macro_snapshot (key TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err)
	return db
}

func testBars() []domain.PriceBar {
	return []domain.PriceBar{
		{Date: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Open: 99, High: 101, Low: 98, Close: 100, Volume: 1e6},
		{Date: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), Open: 100, High: 103, Low: 99, Close: 102.5, Volume: 2e6},
	}
}

func TestRepository_StoreAndGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TablePriceHistory, "AAPL|5y", testBars(), time.Hour))

	var bars []domain.PriceBar
	ok, err := repo.GetIfFresh(ctx, TablePriceHistory, "AAPL|5y", &bars)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, bars, 2)
	assert.Equal(t, 102.5, bars[1].Close)
	assert.True(t, bars[0].Date.Equal(testBars()[0].Date))

	ok, err = repo.GetIfFresh(ctx, TablePriceHistory, "MSFT|5y", &bars)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_ExpiredOnlyViaGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TablePriceHistory, "AAPL|5y", testBars(), -time.Minute))

	var bars []domain.PriceBar
	ok, err := repo.GetIfFresh(ctx, TablePriceHistory, "AAPL|5y", &bars)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Get(ctx, TablePriceHistory, "AAPL|5y", &bars)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, bars, 2)
}

func TestRepository_InvalidTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewRepository(db)
	ctx := context.Background()

	err := repo.Store(ctx, "users; DROP TABLE price_history", "k", 1, time.Hour)
	assert.Error(t, err)

	var out int
	_, err = repo.Get(ctx, "nope", "k", &out)
	assert.Error(t, err)
}

func TestRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewRepository(db)
	ctx := context.Background()

	snap := domain.MacroSnapshot{VIX: 18}
	require.NoError(t, repo.Store(ctx, TableMacroSnapshot, "latest", snap, time.Hour))
	require.NoError(t, repo.Delete(ctx, TableMacroSnapshot, "latest"))

	ok, err := repo.Get(ctx, TableMacroSnapshot, "latest", &snap)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_DeleteAllExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewRepository(db)
	ctx := context.Background()

	now := time.Now()
	_, err := db.Exec("INSERT INTO price_history (symbol, data, expires_at) VALUES (?, ?, ?)", "OLD", []byte{0xc0}, now.Add(-10*24*time.Hour).Unix())
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO price_history (symbol, data, expires_at) VALUES (?, ?, ?)", "RECENT", []byte{0xc0}, now.Add(-time.Hour).Unix())
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO macro_snapshot (key, data, expires_at) VALUES (?, ?, ?)", "latest", []byte{0xc0}, now.Add(time.Hour).Unix())
	require.NoError(t, err)

	results, err := repo.DeleteAllExpired(ctx, StaleRetention)
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[TablePriceHistory])
	assert.Equal(t, int64(0), results[TableMacroSnapshot])

	results, err = repo.DeleteAllExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[TablePriceHistory])

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM macro_snapshot").Scan(&count))
	assert.Equal(t, 1, count)
}
