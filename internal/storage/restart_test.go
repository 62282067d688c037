package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/model"
)

func TestInsertAndListRestartMetrics(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertRestartMetric(ctx, model.RestartMetric{
		Timestamp: 100, SessionID: "s1", Status: model.RestartSuccess,
		LatencyMs: 50, Mode: model.ModeFull, NarrativeCount: 3, LinkCount: 2,
	}))

	reason := model.FailureNoCheckpoint
	require.NoError(t, db.InsertRestartMetric(ctx, model.RestartMetric{
		Timestamp: 200, SessionID: "s2", Status: model.RestartFailure,
		FailureReason: &reason, LatencyMs: 5, Mode: model.ModeSummary,
	}))

	metrics, err := db.ListRestartMetricsSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, model.RestartSuccess, metrics[0].Status)
	assert.Equal(t, model.RestartFailure, metrics[1].Status)
	require.NotNil(t, metrics[1].FailureReason)
	assert.Equal(t, model.FailureNoCheckpoint, *metrics[1].FailureReason)

	recent, err := db.ListRestartMetricsSince(ctx, 150)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "s2", recent[0].SessionID)
}
