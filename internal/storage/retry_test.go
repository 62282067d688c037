package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/storage"
)

func TestWithRetry_SucceedsImmediately(t *testing.T) {
	ctx := context.Background()
	callCount := 0

	err := storage.WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		callCount++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, callCount, "should only call fn once when it succeeds immediately")
}

func TestWithRetry_NonRetriableError(t *testing.T) {
	ctx := context.Background()
	callCount := 0
	permanent := fmt.Errorf("permanent error")

	err := storage.WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		callCount++
		return permanent
	})
	require.Error(t, err)
	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, callCount, "non-retriable error should not trigger retry")
}

func TestWithRetry_RetriesOnDatabaseLocked(t *testing.T) {
	ctx := context.Background()
	callCount := 0
	locked := errors.New("database is locked")

	err := storage.WithRetry(ctx, 3, time.Millisecond, func() error {
		callCount++
		if callCount < 3 {
			return locked
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, callCount, "should retry until the locked condition clears")
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	callCount := 0
	locked := errors.New("database is locked")

	err := storage.WithRetry(ctx, 2, time.Millisecond, func() error {
		callCount++
		return locked
	})
	require.Error(t, err)
	assert.Equal(t, locked, err)
	assert.Equal(t, 3, callCount, "1 initial attempt + 2 retries")
}

func TestWithRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	callCount := 0
	err := storage.WithRetry(ctx, 3, 10*time.Millisecond, func() error {
		callCount++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
}
