package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/metrics"
	"github.com/ternarybob/probo/internal/services/maintenance"
)

// AppStatus is the aggregate health snapshot served at /api/status.
type AppStatus struct {
	Service         string                            `json:"service"`
	Version         string                            `json:"version"`
	Status          string                            `json:"status"`
	UptimeSeconds   int64                             `json:"uptime_seconds"`
	Queue           QueueStatsUpdate                  `json:"queue"`
	Runtime         RuntimeStats                      `json:"runtime"`
	MaintenanceJobs map[string]*maintenance.JobStatus `json:"maintenance_jobs,omitempty"`
	Timestamp       time.Time                         `json:"timestamp"`
}

// RuntimeStats reports process-level diagnostics: live goroutines and the
// number spawned through the panic-protected wrappers since startup.
type RuntimeStats struct {
	Goroutines        int   `json:"goroutines"`
	SpawnedGoroutines int64 `json:"spawned_goroutines"`
}

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	queue       interfaces.Queue
	metrics     *metrics.Registry
	maintenance *maintenance.Service
	startTime   time.Time
	logger      arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(queue interfaces.Queue, metricsRegistry *metrics.Registry, maintenanceService *maintenance.Service, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		queue:       queue,
		metrics:     metricsRegistry,
		maintenance: maintenanceService,
		startTime:   time.Now(),
		logger:      logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := AppStatus{
		Service:       "probo",
		Version:       common.GetVersion(),
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:        runtime.NumGoroutine(),
			SpawnedGoroutines: common.GetGoroutineCount(),
		},
		Timestamp: time.Now(),
	}

	if h.queue != nil {
		if stats, err := h.queue.GetStats(r.Context()); err == nil {
			status.Queue = QueueStatsUpdate{
				Waiting:   stats.Waiting,
				Active:    stats.Active,
				Completed: stats.Completed,
				Failed:    stats.Failed,
				Timestamp: status.Timestamp,
			}
		} else {
			h.logger.Warn().Err(err).Msg("Failed to get queue stats for status")
			status.Status = "degraded"
		}
	}

	if h.metrics != nil {
		status.Queue.ErrorRate = h.metrics.ErrorRate()
	}

	if h.maintenance != nil {
		status.MaintenanceJobs = h.maintenance.GetAllJobStatuses()
	}

	WriteJSON(w, http.StatusOK, status)
}
