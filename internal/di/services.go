// Package di provides service initialization functions.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sigmaguard/internal/audit"
	"github.com/aristath/sigmaguard/internal/clientdata"
	"github.com/aristath/sigmaguard/internal/clients/yahoo"
	"github.com/aristath/sigmaguard/internal/metrics"
	"github.com/aristath/sigmaguard/internal/modules/allocation"
	"github.com/aristath/sigmaguard/internal/modules/indicators"
	"github.com/aristath/sigmaguard/internal/modules/ledger"
	"github.com/aristath/sigmaguard/internal/modules/scoring"
	"github.com/aristath/sigmaguard/internal/reliability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// instrumentTimeout bounds a single instrument pipeline inside a batch
const instrumentTimeout = 3 * time.Minute

// InitializeServices creates clients, engines and services on top of the databases
func InitializeServices(container *Container, log zerolog.Logger) error {
	if container == nil || container.LedgerDB == nil || container.CacheDB == nil {
		return fmt.Errorf("databases must be initialized first")
	}
	cfg := container.Config
	policy := cfg.Policy

	// ==========================================
	// METRICS
	// ==========================================
	container.Registry = prometheus.NewRegistry()
	container.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	container.Metrics = metrics.New(container.Registry)

	// ==========================================
	// PRICE PROVIDER
	// ==========================================
	// Yahoo -> rate limiter/breaker -> SQLite cache with stale fallback
	container.Yahoo = yahoo.NewClient(policy.Yahoo, log)
	container.CacheRepo = clientdata.NewRepository(container.CacheDB.Conn())
	container.Provider = clientdata.NewCachedProvider(container.Yahoo, container.CacheRepo, log)

	// ==========================================
	// LEDGER
	// ==========================================
	container.LedgerRepo = ledger.NewRepository(container.LedgerDB.Conn(), log)
	container.Backtester = ledger.NewBacktester(container.LedgerRepo, container.Provider, log)
	container.Analyzer = ledger.NewAnalyzer(container.LedgerDB.Conn())

	// ==========================================
	// ENGINES
	// ==========================================
	container.IndicatorEngine = indicators.NewEngine(log)
	container.ScoringEngine = scoring.NewEngine(policy.ScoringPolicy(), log)
	container.Allocator = allocation.NewAllocator(policy.AllocationPolicy())

	// ==========================================
	// AUDIT SERVICE
	// ==========================================
	container.AuditService = audit.NewService(
		audit.Config{
			HistoryPeriod:     policy.HistoryPeriod(),
			Workers:           policy.Settings.Workers,
			InstrumentTimeout: instrumentTimeout,
		},
		container.Provider,
		container.LedgerRepo,
		container.Backtester,
		container.IndicatorEngine,
		container.ScoringEngine,
		container.Allocator,
		container.Metrics,
		log,
	)

	// ==========================================
	// BACKUPS
	// ==========================================
	var store reliability.ObjectStore
	if cfg.Backup.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s3Client, err := reliability.NewS3Client(ctx, cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup storage client: %w", err)
		}
		store = s3Client
	} else {
		log.Info().Msg("BACKUP_S3_BUCKET not set, snapshots stay local")
	}

	container.BackupService = reliability.NewBackupService(
		container.Databases(),
		store,
		reliability.BackupOptions{
			Dir:           cfg.BackupDir(),
			KeepLocal:     cfg.Backup.KeepLocal,
			RetentionDays: cfg.Backup.RetentionDays,
		},
		log,
	)

	log.Info().
		Int("watchlist", len(policy.Watchlist)).
		Int("workers", policy.Settings.Workers).
		Str("history_period", policy.HistoryPeriod()).
		Msg("Services initialized")

	return nil
}
