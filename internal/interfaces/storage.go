package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/probo/internal/models"
)

// AssetStorage - interface for verification asset persistence
type AssetStorage interface {
	// Upsert atomically stores the latest verification state for the
	// record's request ID. One row per request ID, create or replace.
	Upsert(ctx context.Context, record *models.AssetRecord) error

	// GetByRequestID returns the stored record for a request ID
	GetByRequestID(ctx context.Context, requestID string) (*models.AssetRecord, error)

	// ListByStatus returns records with the given link status, most
	// recently checked first
	ListByStatus(ctx context.Context, status models.LinkStatus, limit, offset int) ([]*models.AssetRecord, error)

	// CountByStatus returns the number of records with the given status
	CountByStatus(ctx context.Context, status models.LinkStatus) (int, error)

	// Count returns the total number of asset records
	Count(ctx context.Context) (int, error)
}

// JobStorage - interface for queue lifecycle record persistence
type JobStorage interface {
	// SaveJob upserts a lifecycle record keyed by request ID
	SaveJob(ctx context.Context, record *models.JobRecord) error

	// GetJob returns the lifecycle record for a request ID
	GetJob(ctx context.Context, requestID string) (*models.JobRecord, error)

	// ListJobsByState returns records in the given state, newest first
	ListJobsByState(ctx context.Context, state models.JobState, limit, offset int) ([]*models.JobRecord, error)

	// CountByState returns the number of records in the given state
	CountByState(ctx context.Context, state models.JobState) (int, error)

	// DeleteTerminalJobs removes records in the given terminal state that
	// finished before cutoff, always keeping the newest keep records.
	// keep <= 0 disables the count cap. Returns the number deleted.
	DeleteTerminalJobs(ctx context.Context, state models.JobState, cutoff time.Time, keep int) (int, error)
}

// StorageManager provides access to all storage implementations
type StorageManager interface {
	AssetStorage() AssetStorage
	JobStorage() JobStorage
	Close() error
}
