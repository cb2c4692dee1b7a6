package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"weatherbar/internal/models"
	"weatherbar/pkg/filestore"
	"weatherbar/pkg/logging"
	"weatherbar/pkg/metrics"
)

// IndexStore persists the rotation position as a plain decimal integer.
type IndexStore struct {
	store   *filestore.Store
	path    string
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewIndexStore creates a new index store
func NewIndexStore(store *filestore.Store, path string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IndexStore {
	return &IndexStore{
		store:   store,
		path:    path,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Read returns the stored index. It never fails: a missing file, unparsable
// content or a value outside [0, count) yields index 0 with Source Recovered.
func (s *IndexStore) Read(ctx context.Context, count int) models.IndexResult {
	data, err := s.store.ReadFile(ctx, s.path)
	if err != nil {
		return s.recovered(ctx, "unreadable", err.Error())
	}

	idx, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return s.recovered(ctx, "unparsable", err.Error())
	}

	if idx < 0 || idx >= count {
		return s.recovered(ctx, "out_of_range", fmt.Sprintf("index %d not in [0, %d)", idx, count))
	}

	return models.IndexResult{Index: idx, Source: models.Loaded}
}

// Write overwrites the stored index.
func (s *IndexStore) Write(ctx context.Context, idx int) error {
	if err := s.store.WriteFile(ctx, s.path, []byte(strconv.Itoa(idx))); err != nil {
		return fmt.Errorf("failed to persist city index: %w", err)
	}
	return nil
}

func (s *IndexStore) recovered(ctx context.Context, reason, detail string) models.IndexResult {
	s.metrics.RecordRecovery("index")
	s.logger.Info(ctx, "[INDEX_RECOVERED] Using default city index", logging.Fields{
		"path":   s.path,
		"reason": reason,
		"detail": detail,
	})
	return models.IndexResult{Index: 0, Source: models.Recovered}
}
