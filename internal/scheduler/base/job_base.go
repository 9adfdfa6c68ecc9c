// Package base provides base implementation for scheduler jobs.
package base

import (
	"sync"
	"time"
)

// RunInfo is the outcome of a job's most recent run
type RunInfo struct {
	LastRun  time.Time     `json:"last_run"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Runs     int           `json:"runs"`
	Failures int           `json:"failures"`
}

// JobBase records run history for the scheduler.
// Jobs embed it to satisfy the scheduler's recorder interface.
type JobBase struct {
	mu   sync.Mutex
	info RunInfo
}

// MarkRun stores the result of a finished run
func (j *JobBase) MarkRun(started time.Time, d time.Duration, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.info.LastRun = started
	j.info.Duration = d
	j.info.Runs++
	j.info.Error = ""
	if err != nil {
		j.info.Error = err.Error()
		j.info.Failures++
	}
}

// LastRun returns a copy of the run history (zero value when never run)
func (j *JobBase) LastRun() RunInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.info
}
