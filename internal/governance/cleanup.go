package governance

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mama-core/mama/internal/mamaerr"
	"github.com/mama-core/mama/internal/model"
	"github.com/mama-core/mama/internal/storage"
)

// backupFormatVersion is the "version" field of the backup envelope (spec §6).
const backupFormatVersion = "1"

// ScanResult is the output of ScanAutoLinks: a count of candidate links
// alongside those protected from deletion.
type ScanResult struct {
	Total          int
	AutoCount      int
	ProtectedCount int
	Targets        []model.Link
}

// ScanAutoLinks identifies legacy auto-links (created_by='user' with no
// originating decision) eligible for deprecation, after excluding any link
// IsProtected reports true for.
func (s *Service) ScanAutoLinks(ctx context.Context) (ScanResult, error) {
	legacy, err := s.db.ListLegacyAuto(ctx)
	if err != nil {
		return ScanResult{}, err
	}
	total, err := s.db.CountLinks(ctx)
	if err != nil {
		return ScanResult{}, err
	}

	var targets []model.Link
	protected := 0
	for _, l := range legacy {
		if l.IsProtected() {
			protected++
			continue
		}
		targets = append(targets, l)
	}

	return ScanResult{
		Total:          total,
		AutoCount:      len(legacy),
		ProtectedCount: protected,
		Targets:        targets,
	}, nil
}

// BackupManifest records where a link backup was written, how many links
// it holds, its integrity checksum, and when it was created.
type BackupManifest struct {
	File      string    `json:"file"`
	Count     int       `json:"count"`
	Checksum  string    `json:"checksum"`
	Timestamp time.Time `json:"timestamp"`
}

// backupFile is the on-disk JSON envelope (spec §6): a version tag, the
// creation timestamp, a redundant link count, and the links themselves.
type backupFile struct {
	Version   string       `json:"version"`
	CreatedAt int64        `json:"created_at"`
	LinkCount int          `json:"link_count"`
	Links     []model.Link `json:"links"`
}

// CreateBackup serializes targets to a JSON file under the configured
// backup directory, writes the accompanying manifest and pre-cleanup risk
// report alongside it under a shared ISO timestamp, and returns the
// manifest so ExecuteCleanup can later verify the backup hasn't been
// tampered with.
func (s *Service) CreateBackup(ctx context.Context, dir string, targets []model.Link) (BackupManifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return BackupManifest{}, fmt.Errorf("governance: create backup dir: %w", err)
	}

	now := time.Now()
	bf := backupFile{
		Version:   backupFormatVersion,
		CreatedAt: now.UnixMilli(),
		LinkCount: len(targets),
		Links:     targets,
	}
	checksum, err := backupChecksum(bf)
	if err != nil {
		return BackupManifest{}, fmt.Errorf("governance: checksum backup: %w", err)
	}
	payload, err := json.Marshal(bf)
	if err != nil {
		return BackupManifest{}, fmt.Errorf("governance: marshal backup: %w", err)
	}

	stamp := isoStamp(now)
	path := filepath.Join(dir, fmt.Sprintf("links-backup-%s.json", stamp))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return BackupManifest{}, fmt.Errorf("governance: write backup: %w", err)
	}

	manifest := BackupManifest{
		File:      path,
		Count:     len(targets),
		Checksum:  checksum,
		Timestamp: now,
	}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return BackupManifest{}, fmt.Errorf("governance: marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(dir, fmt.Sprintf("backup-manifest-%s.json", stamp))
	if err := os.WriteFile(manifestPath, manifestBytes, 0o644); err != nil {
		return BackupManifest{}, fmt.Errorf("governance: write manifest: %w", err)
	}

	report, err := s.GenerateReport(ctx)
	if err != nil {
		return BackupManifest{}, fmt.Errorf("governance: generate pre-cleanup report: %w", err)
	}
	reportPath := filepath.Join(dir, fmt.Sprintf("pre-cleanup-report-%s.md", stamp))
	if err := os.WriteFile(reportPath, []byte(renderReportMarkdown(report, now)), 0o644); err != nil {
		return BackupManifest{}, fmt.Errorf("governance: write pre-cleanup report: %w", err)
	}

	return manifest, nil
}

// isoStamp renders t as a filesystem-safe ISO-8601 timestamp: RFC 3339
// with the colons stripped, since ':' is invalid in Windows file names.
func isoStamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format(time.RFC3339), ":", "")
}

// backupChecksum hashes bf's canonical JSON encoding: object keys sorted,
// no extraneous whitespace (spec §6), by round-tripping through an
// untyped value so encoding/json's alphabetical map-key ordering yields a
// stable byte sequence regardless of struct field order.
func backupChecksum(bf backupFile) (string, error) {
	raw, err := json.Marshal(bf)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// renderReportMarkdown renders a risk-classification report as the
// pre-cleanup-report-<ISO>.md artifact (spec §6 persisted state layout).
func renderReportMarkdown(r Report, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Pre-Cleanup Risk Report\n\n_generated %s_\n\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Risk: %s\n", r.Risk)
	fmt.Fprintf(&b, "- Deletion ratio: %.1f%%\n", r.DeletionRatio*100)
	fmt.Fprintf(&b, "- Total links: %d\n", r.TotalLinks)
	fmt.Fprintf(&b, "- Target count: %d\n\n", r.TargetCount)

	fmt.Fprintf(&b, "## Sample\n\n")
	if len(r.Sample) == 0 {
		b.WriteString("- none\n")
	} else {
		for _, l := range r.Sample {
			fmt.Fprintf(&b, "- %s -> %s (%s): %s\n", l.FromID, l.ToID, l.Relationship, l.Reason)
		}
	}
	return b.String()
}

// RiskLevel classifies how much of the link graph a cleanup would remove.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Report is the output of GenerateReport.
type Report struct {
	Risk          RiskLevel
	DeletionRatio float64
	TotalLinks    int
	TargetCount   int
	Sample        []model.Link
}

const reportSampleSize = 10

// GenerateReport classifies the risk of a would-be auto-link cleanup by
// the fraction of the link graph it would delete.
func (s *Service) GenerateReport(ctx context.Context) (Report, error) {
	scan, err := s.ScanAutoLinks(ctx)
	if err != nil {
		return Report{}, err
	}

	var ratio float64
	if scan.Total > 0 {
		ratio = float64(len(scan.Targets)) / float64(scan.Total)
	}

	risk := RiskLow
	switch {
	case ratio > 0.5:
		risk = RiskHigh
	case ratio >= 0.3:
		risk = RiskMedium
	}

	sample := scan.Targets
	if len(sample) > reportSampleSize {
		sample = sample[:reportSampleSize]
	}

	return Report{
		Risk:          risk,
		DeletionRatio: ratio,
		TotalLinks:    scan.Total,
		TargetCount:   len(scan.Targets),
		Sample:        sample,
	}, nil
}

// CleanupResult is the outcome of ExecuteCleanup.
type CleanupResult struct {
	WouldDelete          int
	Deleted              int
	Failed               int
	SuccessRate          float64
	Batches              int
	BatchesProcessed     int
	LargeDeletionWarning bool
	DryRun               bool
}

const largeDeletionThreshold = 1000

// ExecuteCleanup deletes the current ScanAutoLinks targets in batches of
// batchSize (a batchSize <= 0 is treated as 1), refusing to run unless a
// backup no older than maxAge and matching its recorded checksum exists.
// dryRun returns the plan without mutating anything.
func (s *Service) ExecuteCleanup(ctx context.Context, manifest BackupManifest, maxAge time.Duration, batchSize int, dryRun bool) (CleanupResult, error) {
	if err := s.verifyBackup(manifest, maxAge); err != nil {
		return CleanupResult{}, err
	}

	scan, err := s.ScanAutoLinks(ctx)
	if err != nil {
		return CleanupResult{}, err
	}
	targets := scan.Targets

	if batchSize <= 0 {
		batchSize = 1
	}
	batches := batchCount(len(targets), batchSize)
	if dryRun {
		return CleanupResult{
			WouldDelete:          len(targets),
			Batches:              batches,
			LargeDeletionWarning: len(targets) > largeDeletionThreshold,
			DryRun:               true,
		}, nil
	}

	deleted, failed, processed := 0, 0, 0
	now := time.Now().UnixMilli()
	for start := 0; start < len(targets); start += batchSize {
		end := start + batchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]
		processed++

		for _, l := range batch {
			err := s.db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
				if err := storage.DeleteLinkTx(ctx, tx, l.FromID, l.ToID, l.Relationship); err != nil {
					return err
				}
				return storage.InsertAuditTx(ctx, tx, model.AuditEntry{
					Action: model.ActionDeprecated, Actor: model.ActorSystem,
					FromID: l.FromID, ToID: l.ToID, Relationship: l.Relationship,
					Reason: "auto-link cleanup", CreatedAt: now,
				})
			})
			if err != nil {
				failed++
				s.logger.Warn("governance: cleanup delete failed", "from", l.FromID, "to", l.ToID, "error", err)
				continue
			}
			deleted++
			s.invalidate(l.FromID, l.ToID)
		}
	}

	successRate := 1.0
	if deleted+failed > 0 {
		successRate = float64(deleted) / float64(deleted+failed)
	}

	return CleanupResult{
		Deleted:          deleted,
		Failed:           failed,
		SuccessRate:      successRate,
		Batches:          batches,
		BatchesProcessed: processed,
	}, nil
}

func (s *Service) verifyBackup(manifest BackupManifest, maxAge time.Duration) error {
	if manifest.File == "" || time.Since(manifest.Timestamp) > maxAge {
		return fmt.Errorf("%w: no backup within %s", mamaerr.ErrNoRecentBackup, maxAge)
	}

	raw, err := os.ReadFile(manifest.File)
	if err != nil {
		return fmt.Errorf("%w: read backup: %v", mamaerr.ErrNoRecentBackup, err)
	}
	var bf backupFile
	if err := json.Unmarshal(raw, &bf); err != nil {
		return fmt.Errorf("%w: decode backup: %v", mamaerr.ErrChecksumMismatch, err)
	}
	checksum, err := backupChecksum(bf)
	if err != nil {
		return fmt.Errorf("%w: recompute checksum: %v", mamaerr.ErrChecksumMismatch, err)
	}
	if checksum != manifest.Checksum {
		return fmt.Errorf("%w: backup %s checksum no longer matches manifest", mamaerr.ErrChecksumMismatch, manifest.File)
	}
	return nil
}

func batchCount(total, batchSize int) int {
	if batchSize <= 0 {
		batchSize = 1
	}
	n := total / batchSize
	if total%batchSize != 0 {
		n++
	}
	return n
}

// ValidationStatus summarizes whether a cleanup reduced auto-links enough.
type ValidationStatus string

const (
	ValidationSuccess ValidationStatus = "SUCCESS"
	ValidationPartial ValidationStatus = "PARTIAL"
	ValidationFailed  ValidationStatus = "FAILED"
)

// ValidationResult is the output of ValidateCleanup.
type ValidationResult struct {
	Status         ValidationStatus
	RemainingRatio float64
	RemainingCount int
	TotalLinks     int
	RollbackAdvice string
}

// ValidateCleanup reports how much of the link graph is still legacy
// auto-links after a cleanup run, classifying the result against the 5%
// and 10% thresholds from spec.
func (s *Service) ValidateCleanup(ctx context.Context) (ValidationResult, error) {
	legacy, err := s.db.ListLegacyAuto(ctx)
	if err != nil {
		return ValidationResult{}, err
	}
	total, err := s.db.CountLinks(ctx)
	if err != nil {
		return ValidationResult{}, err
	}

	var ratio float64
	if total > 0 {
		ratio = float64(len(legacy)) / float64(total)
	}

	status := ValidationSuccess
	advice := ""
	switch {
	case ratio > 0.10:
		status = ValidationFailed
		advice = "remaining auto-link ratio exceeds 10%: restore the pre-cleanup backup via RestoreBackup and re-run ScanAutoLinks before retrying"
	case ratio >= 0.05:
		status = ValidationPartial
	}

	return ValidationResult{
		Status:         status,
		RemainingRatio: ratio,
		RemainingCount: len(legacy),
		TotalLinks:     total,
		RollbackAdvice: advice,
	}, nil
}

// RestoreResult is the output of RestoreBackup.
type RestoreResult struct {
	Total    int
	Restored int
	Failed   int
}

// RestoreBackup verifies the backup file's checksum against manifest and
// reinserts every link verbatim, continuing past individual insert
// failures (e.g. an endpoint deleted since the backup was taken).
func (s *Service) RestoreBackup(ctx context.Context, manifest BackupManifest) (RestoreResult, error) {
	raw, err := os.ReadFile(manifest.File)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("governance: read backup: %w", err)
	}
	var bf backupFile
	if err := json.Unmarshal(raw, &bf); err != nil {
		return RestoreResult{}, fmt.Errorf("%w: decode backup: %v", mamaerr.ErrChecksumMismatch, err)
	}
	checksum, err := backupChecksum(bf)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("%w: recompute checksum: %v", mamaerr.ErrChecksumMismatch, err)
	}
	if checksum != manifest.Checksum {
		return RestoreResult{}, fmt.Errorf("%w: backup %s failed checksum verification", mamaerr.ErrChecksumMismatch, manifest.File)
	}

	restored, failed := 0, 0
	now := time.Now().UnixMilli()
	for _, l := range bf.Links {
		err := s.db.Writer(ctx, func(ctx context.Context, tx *sql.Tx) error {
			if err := storage.InsertLinkTx(ctx, tx, l); err != nil {
				return err
			}
			return storage.InsertAuditTx(ctx, tx, model.AuditEntry{
				Action: model.ActionProposed, Actor: model.ActorSystem,
				FromID: l.FromID, ToID: l.ToID, Relationship: l.Relationship,
				Reason: "restored from backup " + manifest.File, CreatedAt: now,
			})
		})
		if err != nil {
			failed++
			s.logger.Warn("governance: restore insert failed", "from", l.FromID, "to", l.ToID, "error", err)
			continue
		}
		restored++
		s.invalidate(l.FromID, l.ToID)
	}

	return RestoreResult{Total: len(bf.Links), Restored: restored, Failed: failed}, nil
}
