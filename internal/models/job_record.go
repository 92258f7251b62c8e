// -----------------------------------------------------------------------
// Job Record - persisted queue lifecycle state for one request ID
// -----------------------------------------------------------------------

package models

import "time"

// JobState represents where a verification job is in the queue lifecycle.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"   // Admitted but not executing, includes retry backoff
	JobStateActive    JobState = "active"    // A worker is executing an attempt
	JobStateCompleted JobState = "completed" // Finished with link status ok
	JobStateFailed    JobState = "failed"    // Finished with a terminal failure status
)

// IsTerminal reports whether the job has finished executing.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// JobRecord is the persisted lifecycle row for a verification job. It is
// written on every state transition, so a crash leaves stalled waiting or
// active rows visible to operators. The queue never replays stalled rows
// on its own; recovery is a resubmission by the producer.
type JobRecord struct {
	RequestID    string     `json:"request_id"`
	URL          string     `json:"url"`
	Priority     int        `json:"priority,omitempty"`
	State        JobState   `json:"state" badgerhold:"index"`
	AttemptCount int        `json:"attempt_count"`
	LastStatus   LinkStatus `json:"last_status,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"` // Set while parked for retry backoff
}

// NewJobRecord creates the lifecycle row for a freshly admitted job.
func NewJobRecord(job *VerificationJob) *JobRecord {
	return &JobRecord{
		RequestID:    job.RequestID,
		URL:          job.URL,
		Priority:     job.Priority,
		State:        JobStateWaiting,
		AttemptCount: job.AttemptCount,
		CreatedAt:    time.Now(),
	}
}

// MarkActive records the start of an execution attempt. StartedAt is set
// on the first attempt only.
func (r *JobRecord) MarkActive() {
	r.State = JobStateActive
	r.NextRetryAt = nil
	if r.StartedAt == nil {
		now := time.Now()
		r.StartedAt = &now
	}
}

// MarkWaiting parks the job for a retry due at retryAt.
func (r *JobRecord) MarkWaiting(attemptCount int, status LinkStatus, errMsg string, retryAt time.Time) {
	r.State = JobStateWaiting
	r.AttemptCount = attemptCount
	r.LastStatus = status
	r.LastError = errMsg
	r.NextRetryAt = &retryAt
}

// MarkCompleted records a successful terminal outcome.
func (r *JobRecord) MarkCompleted(attemptCount int, status LinkStatus) {
	now := time.Now()
	r.State = JobStateCompleted
	r.AttemptCount = attemptCount
	r.LastStatus = status
	r.LastError = ""
	r.NextRetryAt = nil
	r.CompletedAt = &now
}

// MarkFailed records a terminal failure.
func (r *JobRecord) MarkFailed(attemptCount int, status LinkStatus, errMsg string) {
	now := time.Now()
	r.State = JobStateFailed
	r.AttemptCount = attemptCount
	r.LastStatus = status
	r.LastError = errMsg
	r.NextRetryAt = nil
	r.CompletedAt = &now
}

// QueueStats is a point-in-time snapshot of queue occupancy by state.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
