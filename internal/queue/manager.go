// -----------------------------------------------------------------------
// Link Health Queue - admission, concurrency, rate limiting and retry
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/metrics"
	"github.com/ternarybob/probo/internal/models"
)

// Config holds queue tuning.
type Config struct {
	// Concurrency is the number of worker goroutines (default: 10)
	Concurrency int

	// StartsPerSecond gates how fast workers may begin attempts. A free
	// worker slot alone does not start a job; a rate token is also
	// required (default: 50)
	StartsPerSecond float64

	// BufferSize is the admission channel capacity (default: 1024)
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		StartsPerSecond: 50,
		BufferSize:      1024,
	}
}

// Manager is the link health queue. It admits verification jobs keyed
// by request ID, executes them on a bounded worker pool behind a token
// bucket, retries transient failures with exponential backoff and
// persists the outcome of every attempt.
type Manager struct {
	config      Config
	retryPolicy *RetryPolicy
	verifier    interfaces.Verifier
	assetStore  interfaces.AssetStorage
	jobStore    interfaces.JobStorage
	metrics     *metrics.Registry
	events      interfaces.EventService
	logger      arbor.ILogger

	jobs         chan *models.VerificationJob
	priorityJobs chan *models.VerificationJob
	limiter      *rate.Limiter

	mu      sync.Mutex
	pending map[string]struct{} // Request IDs admitted and not yet terminal
	running bool
	closed  bool

	quit    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup // Worker goroutines
	retryWg sync.WaitGroup // Backoff timers
}

// NewManager creates a link health queue. Start must be called before
// jobs are executed; Enqueue works immediately.
func NewManager(config Config, retryPolicy *RetryPolicy, verifier interfaces.Verifier, storage interfaces.StorageManager, metricsRegistry *metrics.Registry, events interfaces.EventService, logger arbor.ILogger) *Manager {
	if config.Concurrency <= 0 {
		config.Concurrency = 10
	}
	if config.StartsPerSecond <= 0 {
		config.StartsPerSecond = 50
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}
	if retryPolicy == nil {
		retryPolicy = NewRetryPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:       config,
		retryPolicy:  retryPolicy,
		verifier:     verifier,
		assetStore:   storage.AssetStorage(),
		jobStore:     storage.JobStorage(),
		metrics:      metricsRegistry,
		events:       events,
		logger:       logger,
		jobs:         make(chan *models.VerificationJob, config.BufferSize),
		priorityJobs: make(chan *models.VerificationJob, config.BufferSize),
		limiter:      rate.NewLimiter(rate.Limit(config.StartsPerSecond), int(config.StartsPerSecond)),
		pending:      make(map[string]struct{}),
		quit:         make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the worker pool.
func (q *Manager) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return fmt.Errorf("queue already started")
	}
	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	q.running = true

	for i := 0; i < q.config.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.logger.Info().
		Int("concurrency", q.config.Concurrency).
		Float64("starts_per_second", q.config.StartsPerSecond).
		Msg("Link health queue started")

	return nil
}

// Enqueue admits a job. Admission is idempotent on request ID: while a
// job with the same ID is waiting or active the call is a no-op and
// returns false. The lifecycle row is persisted before the job becomes
// runnable.
func (q *Manager) Enqueue(ctx context.Context, job *models.VerificationJob) (bool, error) {
	if job == nil || job.RequestID == "" || job.URL == "" {
		return false, fmt.Errorf("job request ID and URL are required")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, fmt.Errorf("queue is closed")
	}
	if _, exists := q.pending[job.RequestID]; exists {
		q.mu.Unlock()
		q.logger.Debug().Str("request_id", job.RequestID).Msg("Duplicate enqueue ignored")
		return false, nil
	}
	q.pending[job.RequestID] = struct{}{}
	q.mu.Unlock()

	record := models.NewJobRecord(job)
	if err := q.jobStore.SaveJob(ctx, record); err != nil {
		q.release(job.RequestID)
		return false, fmt.Errorf("failed to persist job admission: %w", err)
	}

	select {
	case q.channelFor(job) <- job:
	case <-ctx.Done():
		q.release(job.RequestID)
		return false, ctx.Err()
	case <-q.quit:
		q.release(job.RequestID)
		return false, fmt.Errorf("queue is closed")
	}

	q.publishEvent(interfaces.EventVerificationQueued, record)
	return true, nil
}

// GetStats returns queue occupancy by state, counted from the persisted
// lifecycle rows so the numbers survive restarts.
func (q *Manager) GetStats(ctx context.Context) (*models.QueueStats, error) {
	stats := &models.QueueStats{}

	var err error
	if stats.Waiting, err = q.jobStore.CountByState(ctx, models.JobStateWaiting); err != nil {
		return nil, fmt.Errorf("failed to count waiting jobs: %w", err)
	}
	if stats.Active, err = q.jobStore.CountByState(ctx, models.JobStateActive); err != nil {
		return nil, fmt.Errorf("failed to count active jobs: %w", err)
	}
	if stats.Completed, err = q.jobStore.CountByState(ctx, models.JobStateCompleted); err != nil {
		return nil, fmt.Errorf("failed to count completed jobs: %w", err)
	}
	if stats.Failed, err = q.jobStore.CountByState(ctx, models.JobStateFailed); err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}

	q.metrics.SetQueueDepth(stats.Waiting, stats.Active)

	return stats, nil
}

// Clean prunes terminal job history in the given state older than
// olderThan, keeping the newest keep records regardless of age.
func (q *Manager) Clean(ctx context.Context, state models.JobState, olderThan time.Duration, keep int) (int, error) {
	return q.jobStore.DeleteTerminalJobs(ctx, state, time.Now().Add(-olderThan), keep)
}

// Close stops admission, lets active attempts finish, abandons parked
// retries and stops the workers. Abandoned retries keep their waiting
// rows, so they stay visible to operators as stalled.
func (q *Manager) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.quit)
	q.wg.Wait()
	q.cancel()
	q.retryWg.Wait()

	q.logger.Info().Msg("Link health queue closed")
	return nil
}

// worker pulls jobs, preferring the priority lane, and runs attempts
// behind the start rate gate.
func (q *Manager) worker(workerID int) {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().
				Int("worker_id", workerID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Msg("Queue worker panicked")
		}
	}()

	for {
		// Stop pulling new work once shutdown begins. Jobs still
		// buffered in the lanes are abandoned with their waiting rows
		// intact
		select {
		case <-q.quit:
			return
		default:
		}

		var job *models.VerificationJob

		select {
		case job = <-q.priorityJobs:
		default:
			select {
			case job = <-q.priorityJobs:
			case job = <-q.jobs:
			case <-q.quit:
				return
			}
		}

		// A free worker slot alone does not start an attempt; the
		// token bucket gates starts as well
		if err := q.limiter.Wait(q.ctx); err != nil {
			return
		}

		q.processJob(job, workerID)
	}
}

// processJob runs one verification attempt and persists its outcome.
func (q *Manager) processJob(job *models.VerificationJob, workerID int) {
	startTime := time.Now()
	contextLogger := q.logger.WithCorrelationId(job.RequestID)

	defer func() {
		if r := recover(); r != nil {
			contextLogger.Error().
				Str("url", job.URL).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Msg("Verification attempt panicked")
			record := models.NewJobRecord(job)
			record.MarkFailed(job.AttemptCount+1, models.LinkStatusNetworkError, fmt.Sprintf("attempt panicked: %v", r))
			q.saveRecord(record)
			q.release(job.RequestID)
		}
	}()

	record, err := q.jobStore.GetJob(q.ctx, job.RequestID)
	if err != nil {
		record = models.NewJobRecord(job)
	}
	record.MarkActive()
	q.saveRecord(record)

	contextLogger.Info().
		Str("url", job.URL).
		Int("attempt", job.AttemptCount+1).
		Int("worker_id", workerID).
		Msg("Verification started")
	q.publishEvent(interfaces.EventVerificationStarted, record)

	result := q.verifier.Verify(q.ctx, job.RequestID, job.URL)

	// Metrics and the asset upsert happen after every attempt,
	// including ones that will be retried
	q.metrics.Record(result.LinkStatus, time.Duration(result.LatencyMs)*time.Millisecond)

	if err := q.assetStore.Upsert(q.ctx, models.NewAssetRecord(result, time.Now())); err != nil {
		// A result that cannot be persisted fails the job outright
		contextLogger.Error().Err(err).Str("url", job.URL).Msg("Failed to persist verification result")
		record.MarkFailed(job.AttemptCount+1, result.LinkStatus, fmt.Sprintf("failed to persist result: %v", err))
		q.saveRecord(record)
		q.release(job.RequestID)
		q.publishEvent(interfaces.EventVerificationFailed, record)
		return
	}

	if result.LinkStatus == models.LinkStatusOK {
		record.MarkCompleted(job.AttemptCount+1, result.LinkStatus)
		q.saveRecord(record)
		q.release(job.RequestID)
		contextLogger.Info().
			Str("url", job.URL).
			Int("attempt", job.AttemptCount+1).
			Dur("duration", time.Since(startTime)).
			Msg("Verification completed")
		q.publishEvent(interfaces.EventVerificationCompleted, record)
		return
	}

	if q.retryPolicy.ShouldRetry(job.AttemptCount, result.Retryable) {
		delay := q.retryPolicy.NextDelay(job.AttemptCount)
		job.AttemptCount++
		record.MarkWaiting(job.AttemptCount, result.LinkStatus, result.ErrorMessage, time.Now().Add(delay))
		q.saveRecord(record)
		contextLogger.Info().
			Str("url", job.URL).
			Str("status", string(result.LinkStatus)).
			Int("attempt", job.AttemptCount).
			Dur("delay", delay).
			Msg("Verification failed, retry scheduled")
		q.publishEvent(interfaces.EventVerificationRetrying, record)
		q.scheduleRetry(job, delay)
		return
	}

	record.MarkFailed(job.AttemptCount+1, result.LinkStatus, result.ErrorMessage)
	q.saveRecord(record)
	q.release(job.RequestID)
	contextLogger.Warn().
		Str("url", job.URL).
		Str("status", string(result.LinkStatus)).
		Int("attempts", job.AttemptCount+1).
		Str("error", result.ErrorMessage).
		Msg("Verification failed permanently")
	q.publishEvent(interfaces.EventVerificationFailed, record)
}

// scheduleRetry parks the job off-worker until its backoff elapses.
// Backoff waiters never hold a worker slot.
func (q *Manager) scheduleRetry(job *models.VerificationJob, delay time.Duration) {
	q.retryWg.Add(1)
	go func() {
		defer q.retryWg.Done()

		select {
		case <-time.After(delay):
		case <-q.ctx.Done():
			return
		}

		select {
		case q.channelFor(job) <- job:
		case <-q.ctx.Done():
		}
	}()
}

// channelFor routes jobs with a priority onto the preferred lane.
func (q *Manager) channelFor(job *models.VerificationJob) chan *models.VerificationJob {
	if job.Priority > 0 {
		return q.priorityJobs
	}
	return q.jobs
}

// release drops a request ID from the dedup set once its job reaches a
// terminal state.
func (q *Manager) release(requestID string) {
	q.mu.Lock()
	delete(q.pending, requestID)
	q.mu.Unlock()
}

func (q *Manager) saveRecord(record *models.JobRecord) {
	if err := q.jobStore.SaveJob(q.ctx, record); err != nil {
		q.logger.Warn().
			Str("request_id", record.RequestID).
			Err(err).
			Msg("Failed to persist job state")
	}
}

// publishEvent sends a snapshot of the lifecycle row to subscribers.
func (q *Manager) publishEvent(eventType interfaces.EventType, record *models.JobRecord) {
	if q.events == nil {
		return
	}
	snapshot := *record
	if err := q.events.Publish(q.ctx, interfaces.Event{Type: eventType, Payload: &snapshot}); err != nil {
		q.logger.Warn().Err(err).Msg("Failed to publish queue event")
	}
}
