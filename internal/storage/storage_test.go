package storage_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/storage"
	"github.com/mama-core/mama/migrations"
)

// newTestDB opens a private in-memory SQLite database and runs migrations,
// giving each test an isolated schema without a container dependency.
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
