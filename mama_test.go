package mama_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama"
	"github.com/mama-core/mama/internal/model"
)

// newTestEngine opens an Engine against a private in-memory database,
// giving each test an isolated schema without a file on disk.
func newTestEngine(t *testing.T, opts ...mama.Option) *mama.Engine {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	allOpts := append([]mama.Option{
		mama.WithLogger(logger),
		mama.WithDBPath(""),
		mama.WithMetricsWriter(nil),
	}, opts...)

	eng, err := mama.Open(ctx, allOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(ctx) })
	return eng
}

func TestSaveAndSearch(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	saved, err := eng.Save(ctx, mama.SaveInput{
		Type:      "decision",
		Topic:     "pick a database",
		Content:   "use sqlite with WAL mode",
		Reasoning: "single-writer workload, no network hop needed",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.True(t, saved.HasEmbedding)

	// The default hash provider scores this two-word query at about 0.24
	// against the saved text (2 shared features of 3 and 23), below the 0.7
	// default threshold, so the search passes a lower one.
	results, err := eng.Search(ctx, mama.SearchInput{QueryText: "sqlite WAL", K: 5, Threshold: 0.1})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, saved.ID, results[0].Entity.ID)
}

func TestSaveThenSearchByTopic(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	saved, err := eng.Save(ctx, mama.SaveInput{
		Type:    "insight",
		Topic:   "retry budget",
		Content: "cap retries at 3 attempts with jittered backoff",
	})
	require.NoError(t, err)

	found, err := eng.SearchByTopic(ctx, "retry budget")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, saved.ID, found[0].ID)
}

func TestUpdateOutcome(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	saved, err := eng.Save(ctx, mama.SaveInput{
		Type:      "decision",
		Topic:     "retry strategy",
		Content:   "exponential backoff",
		Reasoning: "avoids overwhelming a recovering downstream",
	})
	require.NoError(t, err)

	updated, err := eng.Update(ctx, mama.UpdateOutcomeInput{
		ID:            saved.ID,
		Outcome:       model.OutcomeFailed,
		FailureReason: "caused thundering herd under load",
	})
	require.NoError(t, err)
	assert.Equal(t, "FAILED", updated.Outcome)
	assert.Equal(t, "caused thundering herd under load", updated.FailureReason)
}

func TestV1_1SurfaceDisabledReturnsValidationError(t *testing.T) {
	t.Setenv("MAMA_ENABLE_V1_1", "false")
	eng := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.LoadCheckpoint(ctx, mama.LoadCheckpointInput{})
	require.Error(t, err)
	assert.ErrorIs(t, err, mama.ErrValidation)
	assert.Equal(t, mama.ExitValidationFailure, mama.ExitCodeFor(err))
}

func TestLinkGovernanceRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	from, err := eng.Save(ctx, mama.SaveInput{Type: "decision", Topic: "a", Content: "decision a", Reasoning: "reason a"})
	require.NoError(t, err)
	to, err := eng.Save(ctx, mama.SaveInput{Type: "decision", Topic: "b", Content: "decision b", Reasoning: "reason b"})
	require.NoError(t, err)

	_, err = eng.ProposeLink(ctx, from.ID, to.ID, "relates_to", "both touch the same module", "")
	require.NoError(t, err)

	pending, err := eng.GetPendingLinks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, eng.ApproveLink(ctx, from.ID, to.ID, "relates_to"))

	pending, err = eng.GetPendingLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, mama.ExitSuccess, mama.ExitCodeFor(nil))
	assert.Equal(t, mama.ExitValidationFailure, mama.ExitCodeFor(mama.ErrValidation))
	assert.Equal(t, mama.ExitStorageError, mama.ExitCodeFor(mama.ErrStorageError))
}
