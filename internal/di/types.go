/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived component of the audit system. It is
 * built once by Wire() and shared by the CLI commands and the HTTP server.
 */
package di

import (
	"errors"

	"github.com/aristath/sigmaguard/internal/audit"
	"github.com/aristath/sigmaguard/internal/clientdata"
	"github.com/aristath/sigmaguard/internal/clients/yahoo"
	"github.com/aristath/sigmaguard/internal/config"
	"github.com/aristath/sigmaguard/internal/database"
	"github.com/aristath/sigmaguard/internal/metrics"
	"github.com/aristath/sigmaguard/internal/modules/allocation"
	"github.com/aristath/sigmaguard/internal/modules/indicators"
	"github.com/aristath/sigmaguard/internal/modules/ledger"
	"github.com/aristath/sigmaguard/internal/modules/scoring"
	"github.com/aristath/sigmaguard/internal/reliability"
	"github.com/aristath/sigmaguard/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

// Container holds all dependencies for the application.
//
// Architecture:
//   - Databases: ledger.db (durable audit trail) and cache.db (provider cache)
//   - Clients: Yahoo Finance behind a rate limiter and circuit breaker, wrapped by the cache
//   - Engines: indicators, scoring and allocation, all stateless
//   - Services: the audit batch service and the backup service
type Container struct {
	Config *config.Config

	// Databases
	LedgerDB *database.DB
	CacheDB  *database.DB

	// Metrics
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder

	// Clients
	Yahoo     *yahoo.Client
	CacheRepo *clientdata.Repository
	Provider  *clientdata.CachedProvider

	// Ledger
	LedgerRepo *ledger.Repository
	Backtester *ledger.Backtester
	Analyzer   *ledger.Analyzer

	// Engines
	IndicatorEngine *indicators.Engine
	ScoringEngine   *scoring.Engine
	Allocator       *allocation.Allocator

	// Services
	AuditService  *audit.Service
	BackupService *reliability.BackupService
}

// Databases returns the open databases, ledger first
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.LedgerDB, c.CacheDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes every database. Safe on a partially built container.
func (c *Container) Close() error {
	var errs []error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JobInstances holds the background jobs used by serve mode.
// The CLI can also run any of them once.
type JobInstances struct {
	Audit        *scheduler.AuditJob
	CacheCleanup *clientdata.CleanupJob
	Maintenance  *reliability.MaintenanceJob
}
