// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"
	"time"

	"github.com/aristath/sigmaguard/internal/clientdata"
	"github.com/aristath/sigmaguard/internal/reliability"
	"github.com/aristath/sigmaguard/internal/scheduler"
	"github.com/rs/zerolog"
)

// auditBatchTimeout bounds a scheduled batch over the whole watchlist
const auditBatchTimeout = time.Hour

// RegisterJobs creates the background jobs
// Returns JobInstances for scheduling and manual triggering
func RegisterJobs(container *Container, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}
	if container.AuditService == nil || container.CacheRepo == nil || container.BackupService == nil {
		return nil, fmt.Errorf("services must be initialized first")
	}

	instances := &JobInstances{}

	// Job 1: Daily audit over the configured watchlist
	instances.Audit = scheduler.NewAuditJob(
		container.AuditService,
		container.Config.Policy.Watchlist,
		auditBatchTimeout,
		log,
	)

	// Job 2: Cache cleanup (expired rows past the stale-fallback window)
	instances.CacheCleanup = clientdata.NewCleanupJob(container.CacheRepo, log)

	// Job 3: Maintenance (integrity, WAL, disk space, VACUUM, backup)
	instances.Maintenance = reliability.NewMaintenanceJob(
		container.Databases(),
		container.BackupService,
		container.Config.DataDir,
		log,
	)

	log.Info().Msg("Jobs registered")
	return instances, nil
}

// NewScheduler registers every job on the cron expressions from the policy
func NewScheduler(container *Container, jobs *JobInstances, log zerolog.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(container.Metrics, log)
	schedule := container.Config.Policy.Schedule

	entries := []struct {
		spec string
		job  scheduler.Job
	}{
		{schedule.Audit, jobs.Audit},
		{schedule.CacheCleanup, jobs.CacheCleanup},
		{schedule.Maintenance, jobs.Maintenance},
	}
	for _, e := range entries {
		if err := sched.AddJob(e.spec, e.job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
