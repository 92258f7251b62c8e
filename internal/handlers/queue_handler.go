package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/metrics"
	"github.com/ternarybob/probo/internal/models"
)

// CleanRequest selects which terminal job history to prune.
type CleanRequest struct {
	State     string `json:"state"`
	OlderThan string `json:"older_than"`
	Keep      int    `json:"keep"`
}

// QueueHandler handles queue inspection and maintenance endpoints
type QueueHandler struct {
	queue      interfaces.Queue
	jobStorage interfaces.JobStorage
	metrics    *metrics.Registry
	logger     arbor.ILogger
}

// NewQueueHandler creates a new QueueHandler
func NewQueueHandler(queue interfaces.Queue, jobStorage interfaces.JobStorage, metricsRegistry *metrics.Registry, logger arbor.ILogger) *QueueHandler {
	return &QueueHandler{
		queue:      queue,
		jobStorage: jobStorage,
		metrics:    metricsRegistry,
		logger:     logger,
	}
}

// GetStatsHandler handles GET /api/queue/stats
func (h *QueueHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.queue.GetStats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get queue stats")
		WriteError(w, http.StatusInternalServerError, "Failed to get queue stats")
		return
	}

	response := QueueStatsUpdate{
		Waiting:   stats.Waiting,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
		Timestamp: time.Now(),
	}
	if h.metrics != nil {
		response.ErrorRate = h.metrics.ErrorRate()
	}

	WriteJSON(w, http.StatusOK, response)
}

// ListJobsHandler handles GET /api/queue/jobs?state=&page=&pageSize=.
// Lifecycle rows survive crashes, so waiting and active listings are how
// operators find rows that need resubmission.
func (h *QueueHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stateParam := r.URL.Query().Get("state")
	if stateParam == "" {
		WriteError(w, http.StatusBadRequest, "state query parameter is required")
		return
	}

	state := models.JobState(stateParam)
	switch state {
	case models.JobStateWaiting, models.JobStateActive, models.JobStateCompleted, models.JobStateFailed:
	default:
		WriteError(w, http.StatusBadRequest, "Unknown job state: "+stateParam)
		return
	}

	page, pageSize := GetPaginationParams(r)
	ctx := r.Context()

	records, err := h.jobStorage.ListJobsByState(ctx, state, pageSize, page*pageSize)
	if err != nil {
		h.logger.Error().Err(err).Str("state", stateParam).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	total, err := h.jobStorage.CountByState(ctx, state)
	if err != nil {
		h.logger.Error().Err(err).Str("state", stateParam).Msg("Failed to count jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to count jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":       records,
		"pagination": NewPaginationResponse(page, pageSize, total),
	})
}

// CleanHandler handles POST /api/queue/clean, a manual retention trigger
// alongside the scheduled cleanup.
func (h *QueueHandler) CleanHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req CleanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	state := models.JobState(req.State)
	if !state.IsTerminal() {
		WriteError(w, http.StatusBadRequest, "state must be completed or failed")
		return
	}

	olderThan, err := time.ParseDuration(req.OlderThan)
	if err != nil || olderThan <= 0 {
		WriteError(w, http.StatusBadRequest, "older_than must be a positive duration")
		return
	}

	removed, err := h.queue.Clean(r.Context(), state, olderThan, req.Keep)
	if err != nil {
		h.logger.Error().Err(err).Str("state", req.State).Msg("Failed to clean queue history")
		WriteError(w, http.StatusInternalServerError, "Failed to clean queue history")
		return
	}

	h.logger.Info().
		Str("state", req.State).
		Str("older_than", req.OlderThan).
		Int("removed", removed).
		Msg("Queue history cleaned")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"state":   req.State,
		"removed": removed,
	})
}
