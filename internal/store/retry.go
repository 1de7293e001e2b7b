package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/jobchat/internal/shared"
)

const (
	maxWriteRetries = 3
	baseRetryDelay  = 50 * time.Millisecond
)

// withRetry runs fn, retrying with exponential backoff while SQLite reports
// the database as busy or locked.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < maxWriteRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteContention(err) {
			return err
		}
		if i == maxWriteRetries-1 {
			break
		}

		delay := baseRetryDelay * time.Duration(1<<i) // 50ms, 100ms, 200ms
		slog.Debug("Database busy, retrying", "op", op, "attempt", i+1, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
