// Package server provides the HTTP server and routing for SigmaGuard.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aristath/sigmaguard/internal/database"
	"github.com/aristath/sigmaguard/internal/domain"
	"github.com/aristath/sigmaguard/internal/metrics"
	ledgerhandlers "github.com/aristath/sigmaguard/internal/modules/ledger/handlers"
	"github.com/aristath/sigmaguard/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Databases []*database.DB

	Ledger    *ledgerhandlers.Handler
	Audit     AuditRunner
	Watchlist []domain.WatchlistItem
	Scheduler *scheduler.Scheduler // optional, nil outside serve mode

	// BreakerState reports the price provider circuit state
	BreakerState func() string

	Metrics  *metrics.Recorder
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	metrics        *metrics.Recorder
	gatherer       prometheus.Gatherer
	ledger         *ledgerhandlers.Handler
	auditHandlers  *AuditHandlers
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router:         chi.NewRouter(),
		log:            log,
		port:           cfg.Port,
		metrics:        cfg.Metrics,
		gatherer:       gatherer,
		ledger:         cfg.Ledger,
		auditHandlers:  NewAuditHandlers(cfg.Audit, cfg.Watchlist, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.DataDir, cfg.Databases, cfg.Audit, cfg.Scheduler, cfg.BreakerState, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Audit exposes the audit handlers so scheduled batches can publish their summary
func (s *Server) Audit() *AuditHandlers {
	return s.auditHandlers
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging and metrics
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)

		r.Route("/audit", func(r chi.Router) {
			r.Post("/run", s.auditHandlers.HandleRun)  // Start a batch (202, 409 while one runs)
			r.Get("/last", s.auditHandlers.HandleLast) // Most recent batch summary
		})

		if s.ledger != nil {
			s.ledger.RegisterRoutes(r)
		}
	})

	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and cancels API-started batches
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.auditHandlers.Close()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs every request and records it under its route pattern
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.metrics.InFlight(1)
		defer s.metrics.InFlight(-1)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		duration := time.Since(start)
		s.metrics.RecordHTTP(route, r.Method, ww.Status(), duration)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", duration).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
