// -----------------------------------------------------------------------
// Verification - job, attempt result and persisted asset record
// -----------------------------------------------------------------------

package models

import "time"

// VerificationJob is the unit of work submitted to the link health queue.
// RequestID is the external correlation key and the queue's dedup key:
// while a job with the same RequestID is waiting or active, submitting it
// again is a no-op.
type VerificationJob struct {
	RequestID    string `json:"request_id"`
	URL          string `json:"url"`
	AttemptCount int    `json:"attempt_count"`      // Completed executions so far, starts at 0
	Priority     int    `json:"priority,omitempty"` // Higher runs earlier when the queue is backed up
}

// NewVerificationJob creates a job for its first execution.
func NewVerificationJob(requestID, url string, priority int) *VerificationJob {
	return &VerificationJob{
		RequestID: requestID,
		URL:       url,
		Priority:  priority,
	}
}

// VerificationResult is the outcome of a single verification attempt.
// Retryable carries the classifier's verdict so consumers do not have to
// re-derive it from the status (network_error alone is ambiguous: 5xx is
// retryable, other 4xx is not).
type VerificationResult struct {
	RequestID          string            `json:"request_id"`
	URL                string            `json:"url"`
	LinkStatus         LinkStatus        `json:"link_status"`
	Retryable          bool              `json:"retryable"`
	LatencyMs          int64             `json:"latency_ms"`
	ContentType        string            `json:"content_type,omitempty"`
	ContentLengthBytes int64             `json:"content_length_bytes,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"` // Sanitized response header subset
	ErrorMessage       string            `json:"error_message,omitempty"`
}

// AssetRecord is the persisted verification state for one request ID.
// One record per RequestID; every attempt upserts it, nothing deletes it.
type AssetRecord struct {
	RequestID          string            `json:"request_id"`
	URL                string            `json:"url"`
	LinkStatus         LinkStatus        `json:"link_status" badgerhold:"index"`
	Retryable          bool              `json:"retryable"`
	LatencyMs          int64             `json:"latency_ms"`
	ContentType        string            `json:"content_type,omitempty"`
	ContentLengthBytes int64             `json:"content_length_bytes,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	LastCheckedAt      time.Time         `json:"last_checked_at"`
}

// NewAssetRecord builds the stored record from an attempt result.
func NewAssetRecord(result *VerificationResult, checkedAt time.Time) *AssetRecord {
	return &AssetRecord{
		RequestID:          result.RequestID,
		URL:                result.URL,
		LinkStatus:         result.LinkStatus,
		Retryable:          result.Retryable,
		LatencyMs:          result.LatencyMs,
		ContentType:        result.ContentType,
		ContentLengthBytes: result.ContentLengthBytes,
		Headers:            result.Headers,
		ErrorMessage:       result.ErrorMessage,
		LastCheckedAt:      checkedAt,
	}
}
