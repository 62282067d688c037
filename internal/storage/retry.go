package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"modernc.org/sqlite"
)

// isRetriable returns true for SQLite error codes that indicate a transient
// writer conflict, the SQLite analogue of Postgres's serialization_failure /
// deadlock_detected that the teacher retries on.
func isRetriable(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite.SQLITE_BUSY, sqlite.SQLITE_LOCKED:
			return true
		}
	}
	// Busy/locked conditions surfaced through a wrapped driver error still
	// carry this substring even when the typed error doesn't survive wrapping.
	return strings.Contains(err.Error(), "database is locked")
}

// WithRetry executes fn, retrying up to maxRetries times on SQLITE_BUSY/SQLITE_LOCKED.
// Retries use jittered exponential backoff starting at baseDelay.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := range maxRetries + 1 {
		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(baseDelay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseDelay + jitter):
		}
		baseDelay *= 2
	}
	return err
}
