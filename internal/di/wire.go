// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/aristath/sigmaguard/internal/config"
	ledgerhandlers "github.com/aristath/sigmaguard/internal/modules/ledger/handlers"
	"github.com/aristath/sigmaguard/internal/scheduler"
	"github.com/aristath/sigmaguard/internal/server"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container
// This is the main entry point for dependency injection
// Order of operations:
// 1. Initialize databases
// 2. Initialize services
// 3. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	if cfg == nil || cfg.Policy == nil {
		return nil, nil, fmt.Errorf("configuration with a loaded policy is required")
	}

	// Step 1: Initialize databases
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	// Step 2: Initialize services
	if err := InitializeServices(container, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Step 3: Register jobs
	jobs, err := RegisterJobs(container, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, jobs, nil
}

// NewServer builds the HTTP server over the container.
// sched may be nil when the server runs without background jobs.
func NewServer(container *Container, sched *scheduler.Scheduler, log zerolog.Logger) *server.Server {
	cfg := container.Config
	return server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		DataDir:      cfg.DataDir,
		Databases:    container.Databases(),
		Ledger:       ledgerhandlers.NewHandler(container.LedgerRepo, container.Analyzer, log),
		Audit:        container.AuditService,
		Watchlist:    cfg.Policy.Watchlist,
		Scheduler:    sched,
		BreakerState: container.Yahoo.BreakerState,
		Metrics:      container.Metrics,
		Gatherer:     container.Registry,
	})
}
