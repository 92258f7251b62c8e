package badger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/probo/internal/common"
)

// Value log GC runs on this interval for the life of the connection.
// Badger never reclaims value log space on its own; without the loop a
// long-running verifier grows the data directory unbounded.
const gcInterval = 5 * time.Minute

// BadgerDB manages the Badger database connection
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
	quit   chan struct{}
	wg     sync.WaitGroup
}

// NewBadgerDB creates a new Badger database connection
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	// If reset_on_startup is enabled, delete the existing database
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("Deleting existing database (reset_on_startup=true)")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Failed to delete database directory")
			}
		}
	}

	// Ensure the directory exists
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Opening Badger database connection")

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // Disable default badger logger to use arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger database initialized")

	db := &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
		quit:   make(chan struct{}),
	}
	db.wg.Add(1)
	go db.runGC()

	return db, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// runGC reclaims value log space periodically. Each tick keeps collecting
// until a pass rewrites nothing.
func (b *BadgerDB) runGC() {
	defer b.wg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.quit:
			return
		case <-ticker.C:
			passes := 0
			for {
				err := b.store.Badger().RunValueLogGC(0.5)
				if err != nil {
					// ErrNoRewrite means nothing left to reclaim
					if err != badgerdb.ErrNoRewrite && err != badgerdb.ErrRejected {
						b.logger.Warn().Err(err).Msg("Badger value log GC failed")
					}
					break
				}
				passes++
			}
			if passes > 0 {
				b.logger.Debug().Int("passes", passes).Msg("Badger value log GC reclaimed space")
			}
		}
	}
}

// Close stops the GC loop and closes the database connection
func (b *BadgerDB) Close() error {
	close(b.quit)
	b.wg.Wait()

	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
