package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	busyRetries   = 3
	busyBaseDelay = 100 * time.Millisecond
)

// isConflictError reports SQLITE_BUSY and "database is locked" errors.
func isConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs op, retrying with exponential backoff (100ms, 200ms)
// while SQLite reports a locked database.
func withBusyRetry(ctx context.Context, name string, op func() error) error {
	var err error
	for i := 0; i < busyRetries; i++ {
		err = op()
		if err == nil || !isConflictError(err) {
			return err
		}
		if i == busyRetries-1 {
			break
		}
		delay := busyBaseDelay * time.Duration(1<<i)
		slog.Debug("SQLite busy, retrying", "op", name, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
