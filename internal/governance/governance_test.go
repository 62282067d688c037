package governance_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/governance"
	"github.com/mama-core/mama/internal/mamaerr"
	"github.com/mama-core/mama/internal/model"
	"github.com/mama-core/mama/internal/storage"
	"github.com/mama-core/mama/migrations"
)

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := storage.New(ctx, "", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.RunMigrations(ctx, migrations.FS))
	return db
}

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) Invalidate(node string) {
	f.invalidated = append(f.invalidated, node)
}

func newFixture(t *testing.T) (*governance.Service, *storage.DB, *fakeInvalidator, string, string) {
	t.Helper()
	db := newTestDB(t)
	ctx := context.Background()

	a, err := db.InsertEntity(ctx, model.Entity{Type: model.EntityTypeInsight, Content: "a"})
	require.NoError(t, err)
	b, err := db.InsertEntity(ctx, model.Entity{Type: model.EntityTypeInsight, Content: "b"})
	require.NoError(t, err)

	inv := &fakeInvalidator{}
	svc := governance.New(db, inv, nil)
	return svc, db, inv, a.ID, b.ID
}

func TestProposeLink_UnapprovedUntilApproved(t *testing.T) {
	svc, db, _, a, b := newFixture(t)
	ctx := context.Background()

	link, err := svc.ProposeLink(ctx, a, b, "refines", "because", "")
	require.NoError(t, err)
	assert.False(t, link.ApprovedByUser)

	approved, err := db.ListApprovedFrom(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, approved, "a proposed link must not be traversable until approved")

	pending, err := svc.GetPendingLinks(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a, pending[0].FromID)
}

func TestProposeLink_RejectsUnknownEndpoint(t *testing.T) {
	svc, _, _, a, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.ProposeLink(ctx, a, "ghost", "refines", "because", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, mamaerr.ErrNotFound)
}

func TestApproveLink_MakesTraversableAndInvalidatesCache(t *testing.T) {
	svc, db, inv, a, b := newFixture(t)
	ctx := context.Background()

	_, err := svc.ProposeLink(ctx, a, b, "refines", "because", "")
	require.NoError(t, err)

	require.NoError(t, svc.ApproveLink(ctx, a, b, "refines"))

	approved, err := db.ListApprovedFrom(ctx, a)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	// Propose and approve each invalidate both endpoints.
	assert.ElementsMatch(t, []string{a, b, a, b}, inv.invalidated)
}

func TestRejectLink_DeletesAndAudits(t *testing.T) {
	svc, db, _, a, b := newFixture(t)
	ctx := context.Background()

	_, err := svc.ProposeLink(ctx, a, b, "refines", "because", "")
	require.NoError(t, err)

	require.NoError(t, svc.RejectLink(ctx, a, b, "refines", "not relevant"))

	_, err = db.GetLink(ctx, a, b, "refines")
	assert.ErrorIs(t, err, mamaerr.ErrNotFound)

	audits, err := db.ListAuditSince(ctx, 0)
	require.NoError(t, err)
	var sawRejected bool
	for _, e := range audits {
		if e.Action == model.ActionRejected {
			sawRejected = true
			assert.Equal(t, "not relevant", e.Reason)
		}
	}
	assert.True(t, sawRejected)
}
