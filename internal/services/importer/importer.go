// -----------------------------------------------------------------------
// Importer - seeds verification jobs from YAML files on disk
// -----------------------------------------------------------------------

package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// SeedEntry is one asset reference in a seed file.
type SeedEntry struct {
	RequestID string `yaml:"request_id" validate:"required"`
	URL       string `yaml:"url" validate:"required,url"`
	Priority  int    `yaml:"priority" validate:"gte=0"`
}

// Validate validates the entry using go-playground/validator.
func (e *SeedEntry) Validate() error {
	validate := validator.New()
	return validate.Struct(e)
}

// SeedFile is the on-disk format for seeding the queue.
type SeedFile struct {
	Assets []SeedEntry `yaml:"assets"`
}

// Service loads seed files and admits their entries to the queue.
type Service struct {
	queue  interfaces.Queue
	logger arbor.ILogger
}

// NewService creates an importer backed by the given queue.
func NewService(queue interfaces.Queue, logger arbor.ILogger) *Service {
	return &Service{
		queue:  queue,
		logger: logger,
	}
}

// ImportDir loads every YAML seed file in the directory and returns the
// number of jobs admitted. A missing directory is not an error.
func (s *Service) ImportDir(ctx context.Context, dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		s.logger.Debug().Str("dir", dir).Msg("Seed directory does not exist, skipping")
		return 0, nil
	}

	s.logger.Info().Str("dir", dir).Msg("Loading seed files")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed directory: %w", err)
	}

	admitted := 0
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		count, err := s.ImportFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to import seed file")
			continue
		}
		admitted += count
	}

	if admitted > 0 {
		s.logger.Info().Int("count", admitted).Msg("Seed jobs admitted")
	} else {
		s.logger.Debug().Msg("No seed jobs admitted")
	}

	return admitted, nil
}

// ImportFile loads one seed file. Invalid entries and duplicates are
// skipped with a log line; they do not fail the file.
func (s *Service) ImportFile(ctx context.Context, path string) (int, error) {
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seedFile SeedFile
	if err := yaml.Unmarshal(yamlBytes, &seedFile); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	fileName := filepath.Base(path)
	admitted := 0

	for _, entry := range seedFile.Assets {
		if err := entry.Validate(); err != nil {
			s.logger.Warn().
				Err(err).
				Str("file", fileName).
				Str("request_id", entry.RequestID).
				Msg("Invalid seed entry skipped")
			continue
		}

		ok, err := s.queue.Enqueue(ctx, models.NewVerificationJob(entry.RequestID, entry.URL, entry.Priority))
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("file", fileName).
				Str("request_id", entry.RequestID).
				Msg("Failed to admit seed entry")
			continue
		}
		if !ok {
			s.logger.Debug().
				Str("file", fileName).
				Str("request_id", entry.RequestID).
				Msg("Seed entry already queued, skipping")
			continue
		}

		admitted++
	}

	s.logger.Info().
		Str("file", fileName).
		Int("entries", len(seedFile.Assets)).
		Int("admitted", admitted).
		Msg("Seed file imported")

	return admitted, nil
}
