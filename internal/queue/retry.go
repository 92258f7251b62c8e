package queue

import "time"

// RetryPolicy defines retry behavior with exponential backoff. A job is
// executed at most MaxAttempts times in total; the delay before retry
// number n (counting completed executions, so n starts at 1) is
// InitialDelay doubled n-1 times, capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// NewRetryPolicy creates the default policy: three executions with
// backoffs of 1s then 2s between them.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// ShouldRetry reports whether a job gets another execution.
// attemptCount is the number of executions completed before the one
// that just failed, and retryable is the classifier's verdict for it.
func (p *RetryPolicy) ShouldRetry(attemptCount int, retryable bool) bool {
	if !retryable {
		return false
	}
	return attemptCount+1 < p.MaxAttempts
}

// NextDelay returns the backoff before the next execution for a job
// with attemptCount completed executions prior to the failed one.
// The schedule for the default policy is 1s, 2s, 4s and so on.
func (p *RetryPolicy) NextDelay(attemptCount int) time.Duration {
	delay := p.InitialDelay
	for i := 0; i < attemptCount; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}
