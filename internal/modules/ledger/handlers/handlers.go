// Package handlers provides HTTP handlers for the audit ledger.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/sigmaguard/internal/modules/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxLimit = 1000

// Handler serves ledger entries and realized performance
type Handler struct {
	repo     *ledger.Repository
	analyzer *ledger.Analyzer
	log      zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(repo *ledger.Repository, analyzer *ledger.Analyzer, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		analyzer: analyzer,
		log:      log.With().Str("module", "ledger_handlers").Logger(),
	}
}

// PerformanceResponse is the realized-outcome report
type PerformanceResponse struct {
	Ticker      string                    `json:"ticker,omitempty"`
	Levels      []ledger.LevelPerformance `json:"levels"`
	Correlation float64                   `json:"score_drawdown_correlation"`
	Samples     int                       `json:"samples"`
}

// HandleGetOverview handles GET /ledger
// Returns the latest entry of every audited instrument.
func (h *Handler) HandleGetOverview(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.repo.Tickers(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list tickers")
		h.writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}

	latest := make([]ledger.Entry, 0, len(tickers))
	for _, ticker := range tickers {
		entry, err := h.repo.Latest(r.Context(), ticker)
		if err != nil {
			h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to read latest entry")
			h.writeError(w, http.StatusInternalServerError, "failed to read ledger")
			return
		}
		if entry != nil {
			latest = append(latest, *entry)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": latest,
		"metadata": map[string]interface{}{
			"count":     len(latest),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetEntries handles GET /ledger/{ticker}?limit=N
func (h *Handler) HandleGetEntries(w http.ResponseWriter, r *http.Request) {
	ticker := tickerParam(r)

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}

	entries, err := h.repo.Entries(r.Context(), ticker, limit)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to read entries")
		h.writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	if len(entries) == 0 {
		h.writeError(w, http.StatusNotFound, "no entries for "+ticker)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": entries,
		"metadata": map[string]interface{}{
			"ticker": ticker,
			"count":  len(entries),
		},
	})
}

// HandleGetLatest handles GET /ledger/{ticker}/latest
func (h *Handler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	ticker := tickerParam(r)

	entry, err := h.repo.Latest(r.Context(), ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to read latest entry")
		h.writeError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	if entry == nil {
		h.writeError(w, http.StatusNotFound, "no entries for "+ticker)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": entry})
}

// HandleGetPerformance handles GET /performance?ticker=T
// Without a ticker the whole ledger is aggregated.
func (h *Handler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("ticker")))

	levels, err := h.analyzer.PerformanceByLevel(r.Context(), ticker)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to aggregate performance")
		h.writeError(w, http.StatusInternalServerError, "failed to aggregate performance")
		return
	}
	corr, samples, err := h.analyzer.ScoreDrawdownCorrelation(r.Context(), ticker)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute correlation")
		h.writeError(w, http.StatusInternalServerError, "failed to aggregate performance")
		return
	}
	if levels == nil {
		levels = []ledger.LevelPerformance{}
	}

	h.writeJSON(w, http.StatusOK, PerformanceResponse{
		Ticker:      ticker,
		Levels:      levels,
		Correlation: corr,
		Samples:     samples,
	})
}

func tickerParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ticker")))
}

// Helper methods

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
