package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/models"
)

type cleanCall struct {
	state     models.JobState
	olderThan time.Duration
	keep      int
}

// fakeQueue records Clean invocations.
type fakeQueue struct {
	mu    sync.Mutex
	calls []cleanCall
}

func (f *fakeQueue) Enqueue(ctx context.Context, job *models.VerificationJob) (bool, error) {
	return true, nil
}

func (f *fakeQueue) GetStats(ctx context.Context) (*models.QueueStats, error) {
	return &models.QueueStats{Completed: 5}, nil
}

func (f *fakeQueue) Clean(ctx context.Context, state models.JobState, olderThan time.Duration, keep int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cleanCall{state: state, olderThan: olderThan, keep: keep})
	return 2, nil
}

func (f *fakeQueue) Close() error { return nil }

func (f *fakeQueue) cleanCalls() []cleanCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]cleanCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestRegisterCleanupJob_RunsBothRetentions(t *testing.T) {
	queue := &fakeQueue{}
	svc := NewService(queue, nil, arbor.NewLogger())

	policy := CleanupPolicy{
		Schedule:           "*/30 * * * *",
		CompletedOlderThan: 24 * time.Hour,
		CompletedKeep:      1000,
		FailedOlderThan:    7 * 24 * time.Hour,
		FailedKeep:         0,
	}
	require.NoError(t, svc.RegisterCleanupJob(policy))
	require.NoError(t, svc.TriggerJob("queue-cleanup"))

	require.Eventually(t, func() bool {
		return len(queue.cleanCalls()) == 2
	}, 2*time.Second, 10*time.Millisecond, "cleanup never ran")

	calls := queue.cleanCalls()
	assert.Equal(t, cleanCall{state: models.JobStateCompleted, olderThan: 24 * time.Hour, keep: 1000}, calls[0])
	assert.Equal(t, cleanCall{state: models.JobStateFailed, olderThan: 7 * 24 * time.Hour, keep: 0}, calls[1])

	require.Eventually(t, func() bool {
		status, err := svc.GetJobStatus("queue-cleanup")
		return err == nil && status.LastRun != nil && !status.IsRunning
	}, 2*time.Second, 10*time.Millisecond, "job status never settled")

	status, err := svc.GetJobStatus("queue-cleanup")
	require.NoError(t, err)
	assert.Empty(t, status.LastError)
}

func TestRegisterJob_RejectsInvalidSchedule(t *testing.T) {
	svc := NewService(&fakeQueue{}, nil, arbor.NewLogger())

	err := svc.RegisterJob("bad", "not a cron expr", "broken", func() error { return nil })
	assert.Error(t, err)

	// Sub-five-minute intervals are rejected
	err = svc.RegisterJob("too-fast", "* * * * *", "every minute", func() error { return nil })
	assert.Error(t, err)
}

func TestRegisterJob_RejectsDuplicate(t *testing.T) {
	svc := NewService(&fakeQueue{}, nil, arbor.NewLogger())

	require.NoError(t, svc.RegisterJob("once", "*/30 * * * *", "first", func() error { return nil }))
	err := svc.RegisterJob("once", "*/30 * * * *", "second", func() error { return nil })
	assert.Error(t, err)
}

func TestTriggerJob_TracksFailure(t *testing.T) {
	svc := NewService(&fakeQueue{}, nil, arbor.NewLogger())

	require.NoError(t, svc.RegisterJob("failing", "*/30 * * * *", "always fails", func() error {
		return assert.AnError
	}))
	require.NoError(t, svc.TriggerJob("failing"))

	require.Eventually(t, func() bool {
		status, err := svc.GetJobStatus("failing")
		return err == nil && status.LastError != ""
	}, 2*time.Second, 10*time.Millisecond, "failure never recorded")
}

func TestStartStop(t *testing.T) {
	svc := NewService(&fakeQueue{}, nil, arbor.NewLogger())

	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())
	assert.Error(t, svc.Start(), "second start should fail")

	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())
	require.NoError(t, svc.Stop(), "stopping twice should be a no-op")
}
