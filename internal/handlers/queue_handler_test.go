package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/metrics"
	"github.com/ternarybob/probo/internal/models"
)

// mockJobStorage implements interfaces.JobStorage for testing
type mockJobStorage struct {
	listFunc  func(ctx context.Context, state models.JobState, limit, offset int) ([]*models.JobRecord, error)
	countFunc func(ctx context.Context, state models.JobState) (int, error)
}

func (m *mockJobStorage) SaveJob(ctx context.Context, record *models.JobRecord) error {
	return nil
}

func (m *mockJobStorage) GetJob(ctx context.Context, requestID string) (*models.JobRecord, error) {
	return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, requestID)
}

func (m *mockJobStorage) ListJobsByState(ctx context.Context, state models.JobState, limit, offset int) ([]*models.JobRecord, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, state, limit, offset)
	}
	return nil, nil
}

func (m *mockJobStorage) CountByState(ctx context.Context, state models.JobState) (int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, state)
	}
	return 0, nil
}

func (m *mockJobStorage) DeleteTerminalJobs(ctx context.Context, state models.JobState, cutoff time.Time, keep int) (int, error) {
	return 0, nil
}

func TestGetStatsHandler(t *testing.T) {
	queue := &mockQueue{
		getStatsFunc: func(ctx context.Context) (*models.QueueStats, error) {
			return &models.QueueStats{Waiting: 2, Active: 1, Completed: 7, Failed: 3}, nil
		},
	}

	registry := metrics.NewRegistry()
	for i := 0; i < 7; i++ {
		registry.Record(models.LinkStatusOK, 10*time.Millisecond)
	}
	for i := 0; i < 3; i++ {
		registry.Record(models.LinkStatusTimeout, 10*time.Millisecond)
	}

	handler := NewQueueHandler(queue, &mockJobStorage{}, registry, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/queue/stats", nil)
	rec := httptest.NewRecorder()

	handler.GetStatsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response QueueStatsUpdate
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Waiting != 2 || response.Active != 1 || response.Completed != 7 || response.Failed != 3 {
		t.Errorf("Unexpected stats: %+v", response)
	}
	if response.ErrorRate != 0.3 {
		t.Errorf("Expected error rate 0.3, got %v", response.ErrorRate)
	}
}

func TestListJobsHandler_Paginates(t *testing.T) {
	var gotState models.JobState
	var gotLimit, gotOffset int

	storage := &mockJobStorage{
		listFunc: func(ctx context.Context, state models.JobState, limit, offset int) ([]*models.JobRecord, error) {
			gotState = state
			gotLimit = limit
			gotOffset = offset
			return []*models.JobRecord{
				{RequestID: "req-1", State: state},
				{RequestID: "req-2", State: state},
			}, nil
		},
		countFunc: func(ctx context.Context, state models.JobState) (int, error) {
			return 2, nil
		},
	}

	handler := NewQueueHandler(&mockQueue{}, storage, metrics.NewRegistry(), arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/queue/jobs?state=waiting&pageSize=50", nil)
	rec := httptest.NewRecorder()

	handler.ListJobsHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if gotState != models.JobStateWaiting || gotLimit != 50 || gotOffset != 0 {
		t.Errorf("Unexpected query: state=%s limit=%d offset=%d", gotState, gotLimit, gotOffset)
	}

	var response struct {
		Jobs       []models.JobRecord `json:"jobs"`
		Pagination PaginationResponse `json:"pagination"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Jobs) != 2 || response.Pagination.TotalItems != 2 {
		t.Errorf("Unexpected response: %d jobs, pagination %+v", len(response.Jobs), response.Pagination)
	}
}

func TestListJobsHandler_RequiresValidState(t *testing.T) {
	handler := NewQueueHandler(&mockQueue{}, &mockJobStorage{}, metrics.NewRegistry(), arbor.NewLogger())

	for _, target := range []string{"/api/queue/jobs", "/api/queue/jobs?state=bogus"} {
		req := httptest.NewRequest("GET", target, nil)
		rec := httptest.NewRecorder()

		handler.ListJobsHandler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", target, rec.Code)
		}
	}
}

func TestCleanHandler(t *testing.T) {
	var gotState models.JobState
	var gotOlderThan time.Duration
	var gotKeep int

	queue := &mockQueue{
		cleanFunc: func(ctx context.Context, state models.JobState, olderThan time.Duration, keep int) (int, error) {
			gotState = state
			gotOlderThan = olderThan
			gotKeep = keep
			return 12, nil
		},
	}

	handler := NewQueueHandler(queue, &mockJobStorage{}, metrics.NewRegistry(), arbor.NewLogger())

	body := `{"state":"completed","older_than":"24h","keep":100}`
	req := httptest.NewRequest("POST", "/api/queue/clean", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.CleanHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if gotState != models.JobStateCompleted || gotOlderThan != 24*time.Hour || gotKeep != 100 {
		t.Errorf("Unexpected clean args: state=%s olderThan=%v keep=%d", gotState, gotOlderThan, gotKeep)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if int(response["removed"].(float64)) != 12 {
		t.Errorf("Expected 12 removed, got %v", response["removed"])
	}
}

func TestCleanHandler_Validation(t *testing.T) {
	handler := NewQueueHandler(&mockQueue{}, &mockJobStorage{}, metrics.NewRegistry(), arbor.NewLogger())

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"state":`},
		{"non-terminal state", `{"state":"waiting","older_than":"24h"}`},
		{"unknown state", `{"state":"bogus","older_than":"24h"}`},
		{"missing duration", `{"state":"completed"}`},
		{"bad duration", `{"state":"completed","older_than":"yesterday"}`},
		{"negative duration", `{"state":"completed","older_than":"-1h"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/queue/clean", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			handler.CleanHandler(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}
}
