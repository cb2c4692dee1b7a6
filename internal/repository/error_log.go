package repository

import (
	"context"
	"fmt"
	"time"

	"weatherbar/pkg/filestore"
)

// ErrorLogLayout matches the timestamp prefix of each error log line.
const ErrorLogLayout = "2006-01-02 15:04:05.000000"

// ErrorLog is an append-only text file with one "timestamp: message" line per
// failed fetch. Nothing in this program truncates it.
type ErrorLog struct {
	store *filestore.Store
	path  string
	now   func() time.Time
}

// NewErrorLog creates an error log at path. now is the clock; nil means time.Now.
func NewErrorLog(store *filestore.Store, path string, now func() time.Time) *ErrorLog {
	if now == nil {
		now = time.Now
	}
	return &ErrorLog{store: store, path: path, now: now}
}

// Append writes one line for message.
func (l *ErrorLog) Append(ctx context.Context, message string) error {
	line := fmt.Sprintf("%s: %s", l.now().Local().Format(ErrorLogLayout), message)
	if err := l.store.AppendLine(ctx, l.path, line); err != nil {
		return fmt.Errorf("failed to append error log: %w", err)
	}
	return nil
}
