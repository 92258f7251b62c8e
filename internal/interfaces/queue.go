package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/probo/internal/models"
)

// Queue admits verification jobs and reports queue state.
type Queue interface {
	// Enqueue admits a job for verification. Admission is idempotent on
	// request ID: while a job with the same ID is waiting or active the
	// call is a no-op and returns false.
	Enqueue(ctx context.Context, job *models.VerificationJob) (bool, error)

	// GetStats returns current queue occupancy by state
	GetStats(ctx context.Context) (*models.QueueStats, error)

	// Clean prunes terminal job history in the given state older than
	// olderThan, keeping the newest keep records. Returns the number removed.
	Clean(ctx context.Context, state models.JobState, olderThan time.Duration, keep int) (int, error)

	// Close stops admission and waits for in-flight work to finish
	Close() error
}
