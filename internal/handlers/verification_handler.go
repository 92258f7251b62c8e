package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// VerificationRequest is the submit body for a single verification.
type VerificationRequest struct {
	RequestID string `json:"request_id" validate:"required"`
	URL       string `json:"url" validate:"required,url"`
	Priority  int    `json:"priority" validate:"gte=0"`
}

// BatchVerificationRequest submits several verifications in one call.
type BatchVerificationRequest struct {
	Requests []VerificationRequest `json:"requests"`
}

// VerificationAdmission reports the admission outcome for one request.
// Admitted false with no error means the request ID was already queued.
type VerificationAdmission struct {
	RequestID string `json:"request_id"`
	Admitted  bool   `json:"admitted"`
	Error     string `json:"error,omitempty"`
}

// VerificationHandler handles verification submission endpoints
type VerificationHandler struct {
	queue    interfaces.Queue
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewVerificationHandler creates a new VerificationHandler
func NewVerificationHandler(queue interfaces.Queue, logger arbor.ILogger) *VerificationHandler {
	return &VerificationHandler{
		queue:    queue,
		validate: validator.New(),
		logger:   logger,
	}
}

// SubmitHandler handles POST /api/verifications
func (h *VerificationHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req VerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	job := models.NewVerificationJob(req.RequestID, req.URL, req.Priority)
	admitted, err := h.queue.Enqueue(r.Context(), job)
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", req.RequestID).Msg("Failed to enqueue verification")
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue verification")
		return
	}

	if !admitted {
		h.logger.Debug().Str("request_id", req.RequestID).Msg("Verification already queued")
	}

	WriteJSON(w, http.StatusAccepted, VerificationAdmission{
		RequestID: req.RequestID,
		Admitted:  admitted,
	})
}

// SubmitBatchHandler handles POST /api/verifications/batch. Entries are
// validated and admitted independently: one bad entry never blocks the
// rest of the batch.
func (h *VerificationHandler) SubmitBatchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req BatchVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Requests) == 0 {
		WriteError(w, http.StatusBadRequest, "At least one request is required")
		return
	}

	results := make([]VerificationAdmission, 0, len(req.Requests))
	admitted := 0

	for i := range req.Requests {
		item := req.Requests[i]
		outcome := VerificationAdmission{RequestID: item.RequestID}

		if err := h.validate.Struct(&item); err != nil {
			outcome.Error = err.Error()
			results = append(results, outcome)
			continue
		}

		job := models.NewVerificationJob(item.RequestID, item.URL, item.Priority)
		ok, err := h.queue.Enqueue(r.Context(), job)
		if err != nil {
			outcome.Error = err.Error()
			results = append(results, outcome)
			continue
		}

		outcome.Admitted = ok
		if ok {
			admitted++
		}
		results = append(results, outcome)
	}

	h.logger.Info().
		Int("requested", len(req.Requests)).
		Int("admitted", admitted).
		Msg("Batch verification submitted")

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"admitted": admitted,
		"results":  results,
	})
}
