package storage_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/model"
	"github.com/mama-core/mama/internal/storage"
)

func TestInsertAuditTx_AppendsEntry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a, b := insertTwoEntities(t, db, ctx)

	require.NoError(t, db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := storage.InsertLinkTx(ctx, tx, model.Link{
			FromID: a, ToID: b, Relationship: "refines", Reason: "r", CreatedBy: model.CreatedByLLM, CreatedAt: 1,
		}); err != nil {
			return err
		}
		return storage.InsertAuditTx(ctx, tx, model.AuditEntry{
			Action: model.ActionProposed, Actor: model.ActorLLM,
			FromID: a, ToID: b, Relationship: "refines", CreatedAt: 1,
		})
	}))

	n, err := db.CountAuditByAction(ctx, model.ActionProposed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err := db.ListAuditSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActorLLM, entries[0].Actor)
	assert.NotEmpty(t, entries[0].ID)
}

func TestListAuditSince_FiltersByTimestamp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a, b := insertTwoEntities(t, db, ctx)

	require.NoError(t, db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return storage.InsertAuditTx(ctx, tx, model.AuditEntry{
			Action: model.ActionApproved, Actor: model.ActorUser,
			FromID: a, ToID: b, Relationship: "refines", CreatedAt: 100,
		})
	}))
	require.NoError(t, db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return storage.InsertAuditTx(ctx, tx, model.AuditEntry{
			Action: model.ActionRejected, Actor: model.ActorUser,
			FromID: a, ToID: b, Relationship: "refines", CreatedAt: 200,
		})
	}))

	entries, err := db.ListAuditSince(ctx, 150)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionRejected, entries[0].Action)
}
