package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/", h.HandleGetOverview)              // Latest entry per instrument
		r.Get("/{ticker}", h.HandleGetEntries)       // History, newest first
		r.Get("/{ticker}/latest", h.HandleGetLatest) // Most recent audit
	})
	r.Get("/performance", h.HandleGetPerformance) // Realized outcomes per risk level
}
