package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/sigmaguard/internal/database"
	"github.com/aristath/sigmaguard/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemStatusResponse represents the service status
type SystemStatusResponse struct {
	Status        string                `json:"status"` // "healthy" or "degraded"
	Uptime        string                `json:"uptime"`
	AuditRunning  bool                  `json:"audit_running"`
	ProviderState string                `json:"provider_state,omitempty"` // circuit breaker state
	CPUPercent    float64               `json:"cpu_percent"`
	MemPercent    float64               `json:"mem_percent"`
	DiskFreeGB    float64               `json:"disk_free_gb"`
	Databases     []DBInfo              `json:"databases"`
	Jobs          []scheduler.JobStatus `json:"jobs,omitempty"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name      string  `json:"name"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	Healthy   bool    `json:"healthy"`
	Error     string  `json:"error,omitempty"`
}

type runningReporter interface {
	Running() bool
}

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log          zerolog.Logger
	dataDir      string
	startupTime  time.Time
	databases    []*database.DB
	audit        runningReporter
	scheduler    *scheduler.Scheduler
	breakerState func() string
	hostStats    func() (cpuPct, memPct, diskFreeGB float64)
}

// NewSystemHandlers creates a new system handlers instance.
// sched and breakerState may be nil.
func NewSystemHandlers(
	dataDir string,
	databases []*database.DB,
	audit runningReporter,
	sched *scheduler.Scheduler,
	breakerState func() string,
	log zerolog.Logger,
) *SystemHandlers {
	h := &SystemHandlers{
		log:          log.With().Str("component", "system_handlers").Logger(),
		dataDir:      dataDir,
		startupTime:  time.Now(),
		databases:    databases,
		audit:        audit,
		scheduler:    sched,
		breakerState: breakerState,
	}
	h.hostStats = h.getSystemStats
	return h
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	response := SystemStatusResponse{
		Status: "healthy",
		Uptime: time.Since(h.startupTime).Round(time.Second).String(),
	}
	if h.audit != nil {
		response.AuditRunning = h.audit.Running()
	}
	if h.breakerState != nil {
		response.ProviderState = h.breakerState()
		if response.ProviderState == "open" {
			response.Status = "degraded"
		}
	}

	response.CPUPercent, response.MemPercent, response.DiskFreeGB = h.hostStats()

	response.Databases = make([]DBInfo, 0, len(h.databases))
	for _, db := range h.databases {
		info := DBInfo{Name: db.Name(), Healthy: true}
		if err := db.HealthCheck(r.Context()); err != nil {
			info.Healthy = false
			info.Error = err.Error()
			response.Status = "degraded"
		}
		if stats, err := db.GetStats(); err == nil {
			info.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			info.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
		}
		response.Databases = append(response.Databases, info)
	}

	if h.scheduler != nil {
		response.Jobs = h.scheduler.Jobs()
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

// getSystemStats samples CPU over 100ms so the endpoint stays responsive
func (h *SystemHandlers) getSystemStats() (float64, float64, float64) {
	var cpuAvg, memPct, diskFree float64

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	if memStat, err := mem.VirtualMemory(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		memPct = memStat.UsedPercent
	}

	dir := h.dataDir
	if dir == "" {
		dir = os.TempDir()
	}
	if usage, err := disk.Usage(filepath.Clean(dir)); err != nil {
		h.log.Warn().Err(err).Str("dir", dir).Msg("Failed to get disk usage")
	} else {
		diskFree = float64(usage.Free) / 1e9
	}

	return cpuAvg, memPct, diskFree
}
