package governance_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-core/mama/internal/governance"
	"github.com/mama-core/mama/internal/mamaerr"
	"github.com/mama-core/mama/internal/model"
	"github.com/mama-core/mama/internal/storage"
)

func insertLegacyAutoLink(t *testing.T, db *storage.DB, from, to string) {
	t.Helper()
	require.NoError(t, db.Writer(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return storage.InsertLinkTx(ctx, tx, model.Link{
			FromID: from, ToID: to, Relationship: "relates_to",
			Reason: "legacy auto link", CreatedBy: model.CreatedByUser, CreatedAt: 1,
		})
	}))
}

func TestScanAutoLinks_ExcludesProtectedLinks(t *testing.T) {
	svc, db, _, a, b := newFixture(t)
	ctx := context.Background()

	insertLegacyAutoLink(t, db, a, b)
	_, err := svc.ProposeLink(ctx, b, a, "refines", "because", "")
	require.NoError(t, err)

	scan, err := svc.ScanAutoLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, scan.AutoCount)
	assert.Equal(t, 0, scan.ProtectedCount, "an llm-created link is protected but is not itself a legacy-auto candidate")
	require.Len(t, scan.Targets, 1)
	assert.Equal(t, a, scan.Targets[0].FromID)
}

func TestGenerateReport_ClassifiesRiskByDeletionRatio(t *testing.T) {
	svc, db, _, a, b := newFixture(t)
	ctx := context.Background()
	insertLegacyAutoLink(t, db, a, b)

	report, err := svc.GenerateReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, governance.RiskHigh, report.Risk, "1 of 1 links deleted is a 100% ratio")
	assert.Equal(t, 1, report.TargetCount)
}

func TestCreateBackupAndExecuteCleanup_DryRunMakesNoChanges(t *testing.T) {
	svc, db, _, a, b := newFixture(t)
	ctx := context.Background()
	insertLegacyAutoLink(t, db, a, b)

	scan, err := svc.ScanAutoLinks(ctx)
	require.NoError(t, err)

	manifest, err := svc.CreateBackup(ctx, t.TempDir(), scan.Targets)
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.Count)
	assert.NotEmpty(t, manifest.Checksum)

	result, err := svc.ExecuteCleanup(ctx, manifest, 24*time.Hour, 100, true)
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.WouldDelete)

	n, err := db.CountLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "dry run must not delete anything")
}

func TestCreateBackup_WritesSpecCompliantFilesAndEnvelope(t *testing.T) {
	svc, db, _, a, b := newFixture(t)
	ctx := context.Background()
	insertLegacyAutoLink(t, db, a, b)

	scan, err := svc.ScanAutoLinks(ctx)
	require.NoError(t, err)

	dir := t.TempDir()
	manifest, err := svc.CreateBackup(ctx, dir, scan.Targets)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var backupFound, manifestFound, reportFound bool
	for _, e := range entries {
		switch {
		case strings.HasPrefix(e.Name(), "links-backup-") && strings.HasSuffix(e.Name(), ".json"):
			backupFound = true
		case strings.HasPrefix(e.Name(), "backup-manifest-") && strings.HasSuffix(e.Name(), ".json"):
			manifestFound = true
		case strings.HasPrefix(e.Name(), "pre-cleanup-report-") && strings.HasSuffix(e.Name(), ".md"):
			reportFound = true
		}
	}
	assert.True(t, backupFound, "expected a links-backup-<ISO>.json file")
	assert.True(t, manifestFound, "expected a backup-manifest-<ISO>.json file")
	assert.True(t, reportFound, "expected a pre-cleanup-report-<ISO>.md file")

	raw, err := os.ReadFile(manifest.File)
	require.NoError(t, err)
	var envelope map[string]any
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "1", envelope["version"])
	assert.Equal(t, float64(1), envelope["link_count"])
	require.Contains(t, envelope, "created_at")

	links, ok := envelope["links"].([]any)
	require.True(t, ok)
	require.Len(t, links, 1)
	link, ok := links[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, a, link["from_id"], "link fields must use the spec's snake_case names")
	assert.Equal(t, b, link["to_id"])
	assert.Contains(t, link, "relationship")
	assert.Contains(t, link, "created_by")
	assert.Contains(t, link, "approved_by_user")
}

func TestExecuteCleanup_RefusesWithoutRecentBackup(t *testing.T) {
	svc, db, _, a, b := newFixture(t)
	ctx := context.Background()
	insertLegacyAutoLink(t, db, a, b)

	_, err := svc.ExecuteCleanup(ctx, governance.BackupManifest{}, 24*time.Hour, 100, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, mamaerr.ErrNoRecentBackup)

	stale := governance.BackupManifest{File: "/does/not/matter", Timestamp: time.Now().Add(-48 * time.Hour), Checksum: "x"}
	_, err = svc.ExecuteCleanup(ctx, stale, 24*time.Hour, 100, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, mamaerr.ErrNoRecentBackup)
}

func TestExecuteCleanup_DeletesAndValidateCleanupReportsSuccess(t *testing.T) {
	svc, db, _, a, b := newFixture(t)
	ctx := context.Background()
	insertLegacyAutoLink(t, db, a, b)

	scan, err := svc.ScanAutoLinks(ctx)
	require.NoError(t, err)
	manifest, err := svc.CreateBackup(ctx, t.TempDir(), scan.Targets)
	require.NoError(t, err)

	result, err := svc.ExecuteCleanup(ctx, manifest, 24*time.Hour, 100, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1.0, result.SuccessRate)

	n, err := db.CountLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	validation, err := svc.ValidateCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, governance.ValidationSuccess, validation.Status)
}

func TestRestoreBackup_RejectsTamperedBackup(t *testing.T) {
	svc, db, _, a, b := newFixture(t)
	ctx := context.Background()
	insertLegacyAutoLink(t, db, a, b)

	scan, err := svc.ScanAutoLinks(ctx)
	require.NoError(t, err)
	manifest, err := svc.CreateBackup(ctx, t.TempDir(), scan.Targets)
	require.NoError(t, err)

	_, err = svc.ExecuteCleanup(ctx, manifest, 24*time.Hour, 100, false)
	require.NoError(t, err)

	manifest.Checksum = "tampered"
	_, err = svc.RestoreBackup(ctx, manifest)
	require.Error(t, err)
	assert.ErrorIs(t, err, mamaerr.ErrChecksumMismatch)

	n, err := db.CountLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a failed restore must not partially reinsert links")
}

func TestRestoreBackup_ReinsertsVerbatim(t *testing.T) {
	svc, db, _, a, b := newFixture(t)
	ctx := context.Background()
	insertLegacyAutoLink(t, db, a, b)

	scan, err := svc.ScanAutoLinks(ctx)
	require.NoError(t, err)
	manifest, err := svc.CreateBackup(ctx, t.TempDir(), scan.Targets)
	require.NoError(t, err)

	_, err = svc.ExecuteCleanup(ctx, manifest, 24*time.Hour, 100, false)
	require.NoError(t, err)

	restore, err := svc.RestoreBackup(ctx, manifest)
	require.NoError(t, err)
	assert.Equal(t, 1, restore.Restored)
	assert.Equal(t, 0, restore.Failed)

	n, err := db.CountLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
