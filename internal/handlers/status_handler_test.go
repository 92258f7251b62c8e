package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/metrics"
	"github.com/ternarybob/probo/internal/models"
	"github.com/ternarybob/probo/internal/services/maintenance"
)

func TestGetStatusHandler(t *testing.T) {
	queue := &mockQueue{
		getStatsFunc: func(ctx context.Context) (*models.QueueStats, error) {
			return &models.QueueStats{Waiting: 4, Active: 2, Completed: 10, Failed: 1}, nil
		},
	}

	scheduler := maintenance.NewService(queue, nil, arbor.NewLogger())
	if err := scheduler.RegisterCleanupJob(maintenance.DefaultCleanupPolicy()); err != nil {
		t.Fatalf("Failed to register cleanup job: %v", err)
	}

	handler := NewStatusHandler(queue, metrics.NewRegistry(), scheduler, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()

	handler.GetStatusHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var response AppStatus
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Service != "probo" || response.Status != "ok" {
		t.Errorf("Unexpected service status: %+v", response)
	}
	if response.Queue.Waiting != 4 || response.Queue.Completed != 10 {
		t.Errorf("Queue stats not included: %+v", response.Queue)
	}
	if _, ok := response.MaintenanceJobs["queue-cleanup"]; !ok {
		t.Errorf("Expected queue-cleanup job in status, got %+v", response.MaintenanceJobs)
	}
	if response.Runtime.Goroutines < 1 {
		t.Errorf("Expected at least one live goroutine, got %d", response.Runtime.Goroutines)
	}
}

func TestGetStatusHandler_DegradedWhenQueueUnavailable(t *testing.T) {
	queue := &mockQueue{
		getStatsFunc: func(ctx context.Context) (*models.QueueStats, error) {
			return nil, context.DeadlineExceeded
		},
	}

	handler := NewStatusHandler(queue, metrics.NewRegistry(), nil, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()

	handler.GetStatusHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response AppStatus
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Status != "degraded" {
		t.Errorf("Expected degraded status, got %s", response.Status)
	}
}

func TestHealthHandler(t *testing.T) {
	handler := NewAPIHandler()

	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()

	handler.HealthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected ok, got %+v", response)
	}
}

func TestVersionHandler(t *testing.T) {
	handler := NewAPIHandler()

	req := httptest.NewRequest("GET", "/api/version", nil)
	rec := httptest.NewRecorder()

	handler.VersionHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["version"] == "" {
		t.Error("Expected a version string")
	}
}

func TestNotFoundHandler(t *testing.T) {
	handler := NewAPIHandler()

	req := httptest.NewRequest("GET", "/api/nope", nil)
	rec := httptest.NewRecorder()

	handler.NotFoundHandler(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", rec.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["path"] != "/api/nope" {
		t.Errorf("Expected path echo, got %+v", response)
	}
}
