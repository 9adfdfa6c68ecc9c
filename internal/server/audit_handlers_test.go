package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/sigmaguard/internal/audit"
	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records batches; when block is set RunBatch waits for release or ctx.
type fakeRunner struct {
	mu      sync.Mutex
	batches [][]domain.WatchlistItem
	running atomic.Bool
	block   chan struct{}
	done    chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan struct{}, 8)}
}

func (f *fakeRunner) RunBatch(ctx context.Context, items []domain.WatchlistItem) (*audit.BatchSummary, error) {
	if !f.running.CompareAndSwap(false, true) {
		return nil, audit.ErrBatchRunning
	}
	defer func() {
		f.running.Store(false)
		f.done <- struct{}{}
	}()

	f.mu.Lock()
	f.batches = append(f.batches, items)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return &audit.BatchSummary{RunID: "cancelled", Total: len(items)}, ctx.Err()
		}
	}
	return &audit.BatchSummary{RunID: "run-1", Total: len(items), Completed: len(items)}, nil
}

func (f *fakeRunner) Running() bool { return f.running.Load() }

func (f *fakeRunner) lastBatch() []domain.WatchlistItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

var testWatchlist = []domain.WatchlistItem{
	{Ticker: "AAPL", Name: "Apple"},
	{Ticker: "005930.KS", Name: "Samsung Electronics"},
	{Ticker: "MSFT", Name: "Microsoft"},
}

func post(h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func waitDone(t *testing.T, f *fakeRunner) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish")
	}
}

func TestHandleRun_Background(t *testing.T) {
	runner := newFakeRunner()
	h := NewAuditHandlers(runner, testWatchlist, zerolog.Nop())
	defer h.Close()

	rec := post(h.HandleRun, "/api/audit/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "started", body["status"])
	assert.Equal(t, 3.0, body["instruments"])

	waitDone(t, runner)
	h.Close()
	require.NotNil(t, h.Last())
	assert.Equal(t, "run-1", h.Last().RunID)
	assert.Len(t, runner.lastBatch(), 3)
}

func TestHandleRun_Wait(t *testing.T) {
	runner := newFakeRunner()
	h := NewAuditHandlers(runner, testWatchlist, zerolog.Nop())
	defer h.Close()

	rec := post(h.HandleRun, "/api/audit/run?wait=true", `{"tickers":["msft"," aapl "]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary audit.BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Total)

	batch := runner.lastBatch()
	require.Len(t, batch, 2)
	assert.Equal(t, "MSFT", batch[0].Ticker)
	assert.Equal(t, "AAPL", batch[1].Ticker)
	assert.Equal(t, 2, h.Last().Total)
}

func TestHandleRun_Rejections(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"malformed body", `{"tickers":`, http.StatusBadRequest, "invalid request body"},
		{"unknown ticker", `{"tickers":["AAPL","NVDA"]}`, http.StatusBadRequest, "NVDA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			h := NewAuditHandlers(runner, testWatchlist, zerolog.Nop())
			defer h.Close()

			rec := post(h.HandleRun, "/api/audit/run", tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.msg)
			assert.Nil(t, runner.lastBatch())
		})
	}
}

func TestHandleRun_ConflictWhileRunning(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})
	h := NewAuditHandlers(runner, testWatchlist, zerolog.Nop())

	rec := post(h.HandleRun, "/api/audit/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, runner.Running, 5*time.Second, 10*time.Millisecond)

	rec = post(h.HandleRun, "/api/audit/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), audit.ErrBatchRunning.Error())

	close(runner.block)
	waitDone(t, runner)
	h.Close()
}

func TestClose_CancelsBackgroundBatch(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})
	h := NewAuditHandlers(runner, testWatchlist, zerolog.Nop())

	require.Equal(t, http.StatusAccepted, post(h.HandleRun, "/api/audit/run", "").Code)
	require.Eventually(t, runner.Running, 5*time.Second, 10*time.Millisecond)

	h.Close()
	assert.False(t, runner.Running())
	require.NotNil(t, h.Last())
	assert.Equal(t, "cancelled", h.Last().RunID)
}

func TestHandleLast(t *testing.T) {
	h := NewAuditHandlers(newFakeRunner(), testWatchlist, zerolog.Nop())
	defer h.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/audit/last", nil)
	rec := httptest.NewRecorder()
	h.HandleLast(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.Publish(&audit.BatchSummary{RunID: "scheduled", Total: 3})
	h.Publish(nil)

	rec = httptest.NewRecorder()
	h.HandleLast(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary audit.BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "scheduled", summary.RunID)
}
