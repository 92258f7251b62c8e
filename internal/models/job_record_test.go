package models

import (
	"testing"
	"time"
)

func TestJobRecord_Lifecycle(t *testing.T) {
	job := NewVerificationJob("req-1", "https://cdn.example.com/img.jpg", 0)
	record := NewJobRecord(job)

	if record.State != JobStateWaiting {
		t.Errorf("new record state = %s, want %s", record.State, JobStateWaiting)
	}
	if record.AttemptCount != 0 {
		t.Errorf("new record attempt count = %d, want 0", record.AttemptCount)
	}
	if record.StartedAt != nil {
		t.Error("new record should not have StartedAt")
	}

	record.MarkActive()
	if record.State != JobStateActive {
		t.Errorf("state after MarkActive = %s, want %s", record.State, JobStateActive)
	}
	if record.StartedAt == nil {
		t.Fatal("MarkActive should set StartedAt")
	}
	firstStart := *record.StartedAt

	retryAt := time.Now().Add(time.Second)
	record.MarkWaiting(1, LinkStatusTimeout, "request timed out", retryAt)
	if record.State != JobStateWaiting {
		t.Errorf("state after MarkWaiting = %s, want %s", record.State, JobStateWaiting)
	}
	if record.NextRetryAt == nil || !record.NextRetryAt.Equal(retryAt) {
		t.Error("MarkWaiting should record NextRetryAt")
	}
	if record.AttemptCount != 1 {
		t.Errorf("attempt count after MarkWaiting = %d, want 1", record.AttemptCount)
	}

	record.MarkActive()
	if !record.StartedAt.Equal(firstStart) {
		t.Error("StartedAt should not change on subsequent attempts")
	}
	if record.NextRetryAt != nil {
		t.Error("MarkActive should clear NextRetryAt")
	}

	record.MarkCompleted(2, LinkStatusOK)
	if record.State != JobStateCompleted {
		t.Errorf("state after MarkCompleted = %s, want %s", record.State, JobStateCompleted)
	}
	if record.CompletedAt == nil {
		t.Error("MarkCompleted should set CompletedAt")
	}
	if record.LastError != "" {
		t.Errorf("MarkCompleted should clear LastError, got %q", record.LastError)
	}
}

func TestJobRecord_MarkFailed(t *testing.T) {
	record := NewJobRecord(NewVerificationJob("req-2", "https://cdn.example.com/missing.png", 0))
	record.MarkActive()
	record.MarkFailed(1, LinkStatusNotFound, "HTTP 404")

	if record.State != JobStateFailed {
		t.Errorf("state = %s, want %s", record.State, JobStateFailed)
	}
	if record.LastStatus != LinkStatusNotFound {
		t.Errorf("last status = %s, want %s", record.LastStatus, LinkStatusNotFound)
	}
	if record.LastError != "HTTP 404" {
		t.Errorf("last error = %q, want %q", record.LastError, "HTTP 404")
	}
	if record.CompletedAt == nil {
		t.Error("MarkFailed should set CompletedAt")
	}
}

func TestJobState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    JobState
		terminal bool
	}{
		{JobStateWaiting, false},
		{JobStateActive, false},
		{JobStateCompleted, true},
		{JobStateFailed, true},
	}

	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}
