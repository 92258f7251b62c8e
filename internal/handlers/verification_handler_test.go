package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/models"
)

// mockQueue implements interfaces.Queue for testing
type mockQueue struct {
	enqueueFunc  func(ctx context.Context, job *models.VerificationJob) (bool, error)
	getStatsFunc func(ctx context.Context) (*models.QueueStats, error)
	cleanFunc    func(ctx context.Context, state models.JobState, olderThan time.Duration, keep int) (int, error)
}

func (m *mockQueue) Enqueue(ctx context.Context, job *models.VerificationJob) (bool, error) {
	if m.enqueueFunc != nil {
		return m.enqueueFunc(ctx, job)
	}
	return true, nil
}

func (m *mockQueue) GetStats(ctx context.Context) (*models.QueueStats, error) {
	if m.getStatsFunc != nil {
		return m.getStatsFunc(ctx)
	}
	return &models.QueueStats{}, nil
}

func (m *mockQueue) Clean(ctx context.Context, state models.JobState, olderThan time.Duration, keep int) (int, error) {
	if m.cleanFunc != nil {
		return m.cleanFunc(ctx, state, olderThan, keep)
	}
	return 0, nil
}

func (m *mockQueue) Close() error { return nil }

func TestSubmitHandler_Admits(t *testing.T) {
	var enqueued *models.VerificationJob
	queue := &mockQueue{
		enqueueFunc: func(ctx context.Context, job *models.VerificationJob) (bool, error) {
			enqueued = job
			return true, nil
		},
	}

	handler := NewVerificationHandler(queue, arbor.NewLogger())

	body := `{"request_id":"req-1","url":"https://cdn.example.com/a.jpg","priority":2}`
	req := httptest.NewRequest("POST", "/api/verifications", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.SubmitHandler(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var response VerificationAdmission
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.RequestID != "req-1" || !response.Admitted {
		t.Errorf("Expected admitted req-1, got %+v", response)
	}

	if enqueued == nil {
		t.Fatal("Expected job to reach the queue")
	}
	if enqueued.RequestID != "req-1" || enqueued.URL != "https://cdn.example.com/a.jpg" || enqueued.Priority != 2 {
		t.Errorf("Job fields not propagated: %+v", enqueued)
	}
	if enqueued.AttemptCount != 0 {
		t.Errorf("Expected attempt count 0 on admission, got %d", enqueued.AttemptCount)
	}
}

func TestSubmitHandler_DuplicateReportsNotAdmitted(t *testing.T) {
	queue := &mockQueue{
		enqueueFunc: func(ctx context.Context, job *models.VerificationJob) (bool, error) {
			return false, nil
		},
	}

	handler := NewVerificationHandler(queue, arbor.NewLogger())

	body := `{"request_id":"req-1","url":"https://cdn.example.com/a.jpg"}`
	req := httptest.NewRequest("POST", "/api/verifications", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.SubmitHandler(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202 for duplicate, got %d", rec.Code)
	}

	var response VerificationAdmission
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Admitted {
		t.Error("Expected admitted=false for duplicate submission")
	}
	if response.Error != "" {
		t.Errorf("Duplicate is not an error, got %q", response.Error)
	}
}

func TestSubmitHandler_Validation(t *testing.T) {
	handler := NewVerificationHandler(&mockQueue{}, arbor.NewLogger())

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"request_id":`},
		{"missing request_id", `{"url":"https://cdn.example.com/a.jpg"}`},
		{"missing url", `{"request_id":"req-1"}`},
		{"not a url", `{"request_id":"req-1","url":"not a url"}`},
		{"negative priority", `{"request_id":"req-1","url":"https://cdn.example.com/a.jpg","priority":-1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/verifications", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			handler.SubmitHandler(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestSubmitHandler_MethodNotAllowed(t *testing.T) {
	handler := NewVerificationHandler(&mockQueue{}, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/verifications", nil)
	rec := httptest.NewRecorder()

	handler.SubmitHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

func TestSubmitBatchHandler_MixedResults(t *testing.T) {
	seen := make(map[string]bool)
	queue := &mockQueue{
		enqueueFunc: func(ctx context.Context, job *models.VerificationJob) (bool, error) {
			if seen[job.RequestID] {
				return false, nil
			}
			seen[job.RequestID] = true
			return true, nil
		},
	}

	handler := NewVerificationHandler(queue, arbor.NewLogger())

	body := `{"requests":[
		{"request_id":"req-a","url":"https://cdn.example.com/a.jpg"},
		{"request_id":"req-b","url":"not a url"},
		{"request_id":"req-a","url":"https://cdn.example.com/a.jpg"}
	]}`
	req := httptest.NewRequest("POST", "/api/verifications/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.SubmitBatchHandler(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var response struct {
		Admitted int                     `json:"admitted"`
		Results  []VerificationAdmission `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Admitted != 1 {
		t.Errorf("Expected 1 admitted, got %d", response.Admitted)
	}
	if len(response.Results) != 3 {
		t.Fatalf("Expected 3 per-item results, got %d", len(response.Results))
	}

	if !response.Results[0].Admitted || response.Results[0].Error != "" {
		t.Errorf("First entry should be admitted cleanly: %+v", response.Results[0])
	}
	if response.Results[1].Error == "" {
		t.Error("Invalid URL entry should carry a validation error")
	}
	if response.Results[2].Admitted || response.Results[2].Error != "" {
		t.Errorf("Duplicate entry should be skipped without error: %+v", response.Results[2])
	}
}

func TestSubmitBatchHandler_EmptyBatch(t *testing.T) {
	handler := NewVerificationHandler(&mockQueue{}, arbor.NewLogger())

	req := httptest.NewRequest("POST", "/api/verifications/batch", strings.NewReader(`{"requests":[]}`))
	rec := httptest.NewRecorder()

	handler.SubmitBatchHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty batch, got %d", rec.Code)
	}
}
