package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"weatherbar/pkg/logging"
	"weatherbar/pkg/metrics"
)

// Store wraps an afero filesystem with logging and metrics. Every piece of
// state this program keeps between runs goes through it.
type Store struct {
	fs      afero.Fs
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// New creates a store over fsys. Production code passes afero.NewOsFs(); tests
// pass afero.NewMemMapFs().
func New(fsys afero.Fs, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Store {
	return &Store{
		fs:      fsys,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IsNotExist reports whether err means the file was missing.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// ReadFile reads the whole file at path.
func (s *Store) ReadFile(ctx context.Context, path string) ([]byte, error) {
	defer s.observe(ctx, "read", path)()

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		// a missing file is the normal first-run state, not a fault
		if !IsNotExist(err) {
			s.metrics.RecordFileError("read")
			s.logger.Warn(ctx, "[FILE_READ_ERROR] Read failed", logging.Fields{
				"path":  path,
				"error": err.Error(),
			})
		}
		return nil, err
	}

	return data, nil
}

// WriteFile replaces the content of path, creating parent directories as needed.
func (s *Store) WriteFile(ctx context.Context, path string, data []byte) error {
	defer s.observe(ctx, "write", path)()

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.metrics.RecordFileError("write")
		s.logger.Error(ctx, "[FILE_WRITE_ERROR] Failed to create directory", logging.Fields{
			"path": path,
		}, err)
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		s.metrics.RecordFileError("write")
		s.logger.Error(ctx, "[FILE_WRITE_ERROR] Write failed", logging.Fields{
			"path": path,
		}, err)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// AppendLine appends line plus a newline to path. Existing content is kept.
func (s *Store) AppendLine(ctx context.Context, path, line string) error {
	defer s.observe(ctx, "append", path)()

	f, err := s.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.metrics.RecordFileError("append")
		s.logger.Error(ctx, "[FILE_APPEND_ERROR] Open failed", logging.Fields{
			"path": path,
		}, err)
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		s.metrics.RecordFileError("append")
		s.logger.Error(ctx, "[FILE_APPEND_ERROR] Append failed", logging.Fields{
			"path": path,
		}, err)
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		s.metrics.RecordFileError("append")
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	return nil
}

func (s *Store) observe(ctx context.Context, operation, path string) func() {
	start := time.Now()
	return func() {
		duration := time.Since(start)
		s.metrics.FileOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())

		s.logger.Debug(ctx, "[FILE_OP] Operation finished", logging.Fields{
			"operation":   operation,
			"path":        path,
			"duration_us": duration.Microseconds(),
		})
	}
}
