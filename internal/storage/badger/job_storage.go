// -----------------------------------------------------------------------
// Job Storage - queue lifecycle records keyed by request ID
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// JobStorage implements queue lifecycle persistence using Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new job storage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// SaveJob upserts a lifecycle record keyed by request ID
func (s *JobStorage) SaveJob(ctx context.Context, record *models.JobRecord) error {
	if record == nil || record.RequestID == "" {
		return fmt.Errorf("job record request ID is required")
	}

	if err := s.db.Store().Upsert(record.RequestID, record); err != nil {
		return fmt.Errorf("failed to save job record: %w", err)
	}

	return nil
}

// GetJob returns the lifecycle record for a request ID
func (s *JobStorage) GetJob(ctx context.Context, requestID string) (*models.JobRecord, error) {
	var record models.JobRecord
	err := s.db.Store().Get(requestID, &record)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job record: %w", err)
	}
	return &record, nil
}

// ListJobsByState returns records in the given state, newest first
func (s *JobStorage) ListJobsByState(ctx context.Context, state models.JobState, limit, offset int) ([]*models.JobRecord, error) {
	query := badgerhold.Where("State").Eq(state).SortBy("CreatedAt").Reverse()
	if offset > 0 {
		query = query.Skip(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []*models.JobRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}
	return records, nil
}

// CountByState returns the number of records in the given state
func (s *JobStorage) CountByState(ctx context.Context, state models.JobState) (int, error) {
	count, err := s.db.Store().Count(&models.JobRecord{}, badgerhold.Where("State").Eq(state))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// DeleteTerminalJobs removes records in the given terminal state that
// finished before cutoff. The newest keep records are retained regardless
// of age; keep <= 0 makes pruning purely age based. Returns the number
// deleted.
func (s *JobStorage) DeleteTerminalJobs(ctx context.Context, state models.JobState, cutoff time.Time, keep int) (int, error) {
	if !state.IsTerminal() {
		return 0, fmt.Errorf("cannot clean non-terminal state: %s", state)
	}

	// Fetch and order in memory; CompletedAt is a pointer field, which
	// badgerhold cannot sort on. Terminal history is bounded by the
	// cleanup schedule, so the full fetch stays small.
	var records []*models.JobRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("State").Eq(state)); err != nil {
		return 0, fmt.Errorf("failed to list %s job records: %w", state, err)
	}

	sort.Slice(records, func(i, j int) bool {
		left, right := records[i].CompletedAt, records[j].CompletedAt
		if left == nil {
			return false
		}
		if right == nil {
			return true
		}
		return left.After(*right)
	})

	deleted := 0
	for i, record := range records {
		if keep > 0 && i < keep {
			continue
		}
		if record.CompletedAt != nil && record.CompletedAt.After(cutoff) {
			continue
		}

		if err := s.db.Store().Delete(record.RequestID, &models.JobRecord{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return deleted, fmt.Errorf("failed to delete job record: %w", err)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().
			Str("state", string(state)).
			Int("deleted", deleted).
			Msg("Pruned job history")
	}

	return deleted, nil
}
