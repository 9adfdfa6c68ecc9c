package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/sigmaguard/internal/database"
	"github.com/aristath/sigmaguard/internal/scheduler/base"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Disk thresholds in GB
const (
	criticalFreeGB = 0.5
	lowFreeGB      = 5.0
)

// ErrDiskCritical is returned when the data directory is nearly full
var ErrDiskCritical = errors.New("insufficient disk space")

// diskUsageFunc reports free bytes for a path
type diskUsageFunc func(ctx context.Context, path string) (uint64, error)

func gopsutilFree(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// MaintenanceJob keeps the databases healthy and takes the weekly backup.
// Steps: integrity check, WAL checkpoint, disk space check, VACUUM of the
// cache, then a ledger backup when a backup service is configured.
type MaintenanceJob struct {
	base.JobBase
	databases []*database.DB
	backup    *BackupService // optional
	dataDir   string
	diskFree  diskUsageFunc
	timeout   time.Duration
	log       zerolog.Logger
}

// NewMaintenanceJob creates the maintenance job. backup may be nil.
func NewMaintenanceJob(databases []*database.DB, backup *BackupService, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		backup:    backup,
		dataDir:   dataDir,
		diskFree:  gopsutilFree,
		timeout:   30 * time.Minute,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return j.RunContext(ctx)
}

// RunContext executes the maintenance steps. A failed integrity check or a
// critically full disk halts the run before anything is written.
func (j *MaintenanceJob) RunContext(ctx context.Context) error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	for _, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Integrity check failed")
			return fmt.Errorf("maintenance halted: %w", err)
		}
	}

	for _, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(ctx); err != nil {
		return err
	}

	for _, db := range j.databases {
		// the ledger is append-mostly, only the cache churns
		if db.Profile() != database.ProfileCache {
			continue
		}
		if err := vacuum(ctx, db, j.log); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
		}
	}

	if j.backup != nil {
		if _, err := j.backup.CreateBackup(ctx); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace(ctx context.Context) error {
	free, err := j.diskFree(ctx, j.dataDir)
	if err != nil {
		j.log.Warn().Err(err).Msg("Disk usage unavailable")
		return nil
	}

	freeGB := float64(free) / 1e9
	switch {
	case freeGB < criticalFreeGB:
		j.log.Error().Float64("available_gb", freeGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("%w: %.2f GB free", ErrDiskCritical, freeGB)
	case freeGB < lowFreeGB:
		j.log.Warn().Float64("available_gb", freeGB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("available_gb", freeGB).Msg("Disk space check")
	}
	return nil
}

func vacuum(ctx context.Context, db *database.DB, log zerolog.Logger) error {
	before, err := db.GetStats()
	if err != nil {
		return err
	}
	if _, err := db.Conn().ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}
	after, err := db.GetStats()
	if err != nil {
		return err
	}

	log.Info().
		Str("database", db.Name()).
		Int64("pages_before", before.PageCount).
		Int64("pages_after", after.PageCount).
		Msg("VACUUM completed")
	return nil
}
