// -----------------------------------------------------------------------
// Asset Storage - persisted verification state per request ID
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// AssetStorage implements asset persistence using Badger
type AssetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAssetStorage creates a new asset storage instance
func NewAssetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AssetStorage {
	return &AssetStorage{
		db:     db,
		logger: logger,
	}
}

// Upsert stores the latest verification state for the record's request
// ID. Badger transactions make the create-or-replace atomic, so readers
// never observe a partially written record.
func (s *AssetStorage) Upsert(ctx context.Context, record *models.AssetRecord) error {
	if record == nil || record.RequestID == "" {
		return fmt.Errorf("asset record request ID is required")
	}

	if err := s.db.Store().Upsert(record.RequestID, record); err != nil {
		return fmt.Errorf("failed to upsert asset record: %w", err)
	}

	return nil
}

// GetByRequestID returns the stored record for a request ID
func (s *AssetStorage) GetByRequestID(ctx context.Context, requestID string) (*models.AssetRecord, error) {
	var record models.AssetRecord
	err := s.db.Store().Get(requestID, &record)
	if err == badgerhold.ErrNotFound {
		return nil, fmt.Errorf("%w: %s", models.ErrAssetNotFound, requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset record: %w", err)
	}
	return &record, nil
}

// ListByStatus returns records with the given link status, most recently
// checked first
func (s *AssetStorage) ListByStatus(ctx context.Context, status models.LinkStatus, limit, offset int) ([]*models.AssetRecord, error) {
	query := badgerhold.Where("LinkStatus").Eq(status).SortBy("LastCheckedAt").Reverse()
	if offset > 0 {
		query = query.Skip(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []*models.AssetRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list asset records: %w", err)
	}
	return records, nil
}

// CountByStatus returns the number of records with the given status
func (s *AssetStorage) CountByStatus(ctx context.Context, status models.LinkStatus) (int, error) {
	count, err := s.db.Store().Count(&models.AssetRecord{}, badgerhold.Where("LinkStatus").Eq(status))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Count returns the total number of asset records
func (s *AssetStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.AssetRecord{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
