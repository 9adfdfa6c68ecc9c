package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aristath/sigmaguard/internal/audit"
	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/rs/zerolog"
)

// AuditRunner runs audit batches
type AuditRunner interface {
	RunBatch(ctx context.Context, items []domain.WatchlistItem) (*audit.BatchSummary, error)
	Running() bool
}

// RunRequest optionally narrows a manual run to part of the watchlist
type RunRequest struct {
	Tickers []string `json:"tickers,omitempty"`
}

// AuditHandlers triggers batches and serves the latest summary
type AuditHandlers struct {
	runner    AuditRunner
	watchlist []domain.WatchlistItem
	timeout   time.Duration
	log       zerolog.Logger

	mu   sync.RWMutex
	last *audit.BatchSummary

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAuditHandlers creates audit handlers for the given watchlist
func NewAuditHandlers(runner AuditRunner, watchlist []domain.WatchlistItem, log zerolog.Logger) *AuditHandlers {
	ctx, cancel := context.WithCancel(context.Background())
	return &AuditHandlers{
		runner:    runner,
		watchlist: watchlist,
		timeout:   time.Hour,
		log:       log.With().Str("component", "audit_handlers").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Publish stores a finished batch as the latest summary
func (h *AuditHandlers) Publish(summary *audit.BatchSummary) {
	if summary == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = summary
}

// Last returns the latest batch summary, or nil
func (h *AuditHandlers) Last() *audit.BatchSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// Close cancels background batches and waits for them
func (h *AuditHandlers) Close() {
	h.cancel()
	h.wg.Wait()
}

// HandleRun handles POST /api/audit/run
// The batch runs in the background and the response is 202. With ?wait=true
// the request blocks and returns the summary. A running batch yields 409.
func (h *AuditHandlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, h.log, http.StatusBadRequest, "invalid request body")
		return
	}

	items, unknown := h.selectItems(req.Tickers)
	if len(unknown) > 0 {
		writeError(w, h.log, http.StatusBadRequest, "not on the watchlist: "+strings.Join(unknown, ", "))
		return
	}
	if h.runner.Running() {
		writeError(w, h.log, http.StatusConflict, audit.ErrBatchRunning.Error())
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		summary, err := h.runner.RunBatch(r.Context(), items)
		if errors.Is(err, audit.ErrBatchRunning) {
			writeError(w, h.log, http.StatusConflict, err.Error())
			return
		}
		h.Publish(summary)
		if err != nil {
			h.log.Warn().Err(err).Msg("Manual audit batch ended early")
		}
		writeJSON(w, h.log, http.StatusOK, summary)
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
		defer cancel()

		summary, err := h.runner.RunBatch(ctx, items)
		h.Publish(summary)
		if err != nil {
			h.log.Warn().Err(err).Msg("Manual audit batch did not complete")
		}
	}()

	writeJSON(w, h.log, http.StatusAccepted, map[string]interface{}{
		"status":      "started",
		"instruments": len(items),
	})
}

// HandleLast handles GET /api/audit/last
func (h *AuditHandlers) HandleLast(w http.ResponseWriter, r *http.Request) {
	summary := h.Last()
	if summary == nil {
		writeError(w, h.log, http.StatusNotFound, "no batch has run yet")
		return
	}
	writeJSON(w, h.log, http.StatusOK, summary)
}

func (h *AuditHandlers) selectItems(tickers []string) ([]domain.WatchlistItem, []string) {
	if len(tickers) == 0 {
		return h.watchlist, nil
	}

	byTicker := make(map[string]domain.WatchlistItem, len(h.watchlist))
	for _, item := range h.watchlist {
		byTicker[item.Ticker] = item
	}

	var items []domain.WatchlistItem
	var unknown []string
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		item, ok := byTicker[t]
		if !ok {
			unknown = append(unknown, t)
			continue
		}
		items = append(items, item)
	}
	return items, unknown
}
