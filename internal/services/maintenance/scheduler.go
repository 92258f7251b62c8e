// -----------------------------------------------------------------------
// Maintenance - cron-driven pruning of verification job history
// -----------------------------------------------------------------------

package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/common"
	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// CleanupPolicy controls how much terminal job history survives.
type CleanupPolicy struct {
	Schedule           string        // Cron expression for the cleanup job
	CompletedOlderThan time.Duration // Age threshold for completed history
	CompletedKeep      int           // Newest completed records kept regardless of age
	FailedOlderThan    time.Duration // Age threshold for failed history
	FailedKeep         int           // Newest failed records kept regardless of age
}

// DefaultCleanupPolicy returns the stock retention windows.
func DefaultCleanupPolicy() CleanupPolicy {
	return CleanupPolicy{
		Schedule:           "*/30 * * * *",
		CompletedOlderThan: 24 * time.Hour,
		CompletedKeep:      1000,
		FailedOlderThan:    7 * 24 * time.Hour,
		FailedKeep:         0,
	}
}

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name        string
	schedule    string
	description string
	handler     func() error
	cronID      cron.EntryID
	lastRun     *time.Time
	isRunning   bool
	lastError   string
}

// JobStatus is a point-in-time view of a registered maintenance job.
type JobStatus struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	IsRunning   bool       `json:"is_running"`
	LastError   string     `json:"last_error,omitempty"`
}

// Service runs scheduled maintenance against the queue.
type Service struct {
	queue  interfaces.Queue
	events interfaces.EventService
	cron   *cron.Cron
	logger arbor.ILogger

	jobMu    sync.Mutex // Protects jobs map
	globalMu sync.Mutex // Prevents concurrent job execution
	jobs     map[string]*jobEntry
	running  bool
}

// NewService creates a maintenance service
func NewService(queue interfaces.Queue, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		queue:  queue,
		events: events,
		cron:   cron.New(),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
	}
}

// RegisterCleanupJob registers the queue history pruning job under the
// policy's schedule.
func (s *Service) RegisterCleanupJob(policy CleanupPolicy) error {
	handler := func() error {
		ctx := context.Background()

		completed, err := s.queue.Clean(ctx, models.JobStateCompleted, policy.CompletedOlderThan, policy.CompletedKeep)
		if err != nil {
			return fmt.Errorf("failed to clean completed history: %w", err)
		}

		failed, err := s.queue.Clean(ctx, models.JobStateFailed, policy.FailedOlderThan, policy.FailedKeep)
		if err != nil {
			return fmt.Errorf("failed to clean failed history: %w", err)
		}

		s.logger.Info().
			Int("completed_pruned", completed).
			Int("failed_pruned", failed).
			Msg("Queue history pruned")

		if s.events != nil && (completed > 0 || failed > 0) {
			stats, err := s.queue.GetStats(ctx)
			if err == nil {
				_ = s.events.Publish(ctx, interfaces.Event{
					Type:    interfaces.EventQueueStatsUpdated,
					Payload: stats,
				})
			}
		}

		return nil
	}

	return s.RegisterJob("queue-cleanup", policy.Schedule, "Prunes terminal verification job history", handler)
}

// RegisterJob registers a new job with the scheduler
func (s *Service) RegisterJob(name string, schedule string, description string, handler func() error) error {
	// Validate schedule before attempting to register
	if err := common.ValidateJobSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{
		name:        name,
		schedule:    schedule,
		description: description,
		handler:     handler,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}

	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// Start begins the scheduler
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Msg("Maintenance scheduler started")
	return nil
}

// Stop halts the scheduler
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	s.cron.Stop()
	s.running = false

	s.logger.Info().Msg("Maintenance scheduler stopped")
	return nil
}

// IsRunning returns true if scheduler is active
func (s *Service) IsRunning() bool {
	return s.running
}

// TriggerJob manually triggers a specific job to run immediately
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}

	if entry.isRunning {
		s.jobMu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	s.jobMu.Unlock()

	s.logger.Info().
		Str("job_name", name).
		Msg("Manually triggering job execution")

	go s.executeJob(name)

	return nil
}

// GetJobStatus returns the status of a specific job
func (s *Service) GetJobStatus(name string) (*JobStatus, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}

	var nextRun *time.Time
	for _, cronEntry := range s.cron.Entries() {
		if cronEntry.ID == entry.cronID {
			next := cronEntry.Next
			nextRun = &next
			break
		}
	}

	return &JobStatus{
		Name:        entry.name,
		Schedule:    entry.schedule,
		Description: entry.description,
		LastRun:     entry.lastRun,
		NextRun:     nextRun,
		IsRunning:   entry.isRunning,
		LastError:   entry.lastError,
	}, nil
}

// GetAllJobStatuses returns all job statuses
func (s *Service) GetAllJobStatuses() map[string]*JobStatus {
	s.jobMu.Lock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.jobMu.Unlock()

	statuses := make(map[string]*JobStatus)
	for _, name := range names {
		status, err := s.GetJobStatus(name)
		if err == nil {
			statuses[name] = status
		}
	}

	return statuses
}

// executeJob wraps job execution with mutex, panic recovery, and status tracking
func (s *Service) executeJob(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in job execution")

			s.jobMu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.isRunning = false
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.jobMu.Unlock()
		}
	}()

	// Maintenance jobs never run concurrently with each other
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	s.logger.Info().
		Str("job_name", name).
		Msg("🚀 Job execution started")

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().
			Str("job_name", name).
			Msg("Job not found")
		return
	}

	entry.isRunning = true
	now := time.Now()
	handler := entry.handler
	s.jobMu.Unlock()

	err := handler()

	completionTime := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completionTime
	if err != nil {
		entry.lastError = err.Error()
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(now)).
			Msg("❌ Job execution failed")
	} else {
		entry.lastError = ""
		s.logger.Info().
			Str("job_name", name).
			Dur("duration", time.Since(now)).
			Msg("✅ Job execution completed successfully")
	}
	s.jobMu.Unlock()
}
