package mama

import (
	"time"

	"github.com/mama-core/mama/internal/checkpoint"
	"github.com/mama-core/mama/internal/governance"
	"github.com/mama-core/mama/internal/model"
	"github.com/mama-core/mama/internal/quality"
	"github.com/mama-core/mama/internal/search"
)

// Entity is the public, curated view of internal/model.Entity. No
// internal package imports are required to use it — a consumer of this
// module never needs to see model.Entity directly.
type Entity struct {
	ID   string
	Type string

	Topic   string
	Content string

	Reasoning    string
	Evidence     []string
	Alternatives []string
	Risks        string
	NextSteps    string
	OpenFiles    []string
	Confidence   *float64

	Outcome       string
	FailureReason string
	Limitation    string

	HasEmbedding bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func toPublicEntity(e model.Entity) Entity {
	pub := Entity{
		ID: e.ID, Type: string(e.Type), Topic: e.Topic, Content: e.Content,
		Reasoning: e.Reasoning, Evidence: e.Evidence, Alternatives: e.Alternatives,
		Risks: e.Risks, NextSteps: e.NextSteps, OpenFiles: e.OpenFiles, Confidence: e.Confidence,
		FailureReason: e.FailureReason, Limitation: e.Limitation,
		HasEmbedding: e.Embedding != nil,
		CreatedAt:    time.UnixMilli(e.CreatedAt),
		UpdatedAt:    time.UnixMilli(e.UpdatedAt),
	}
	if e.Outcome != nil {
		pub.Outcome = string(*e.Outcome)
	}
	return pub
}

func toPublicEntities(es []model.Entity) []Entity {
	out := make([]Entity, len(es))
	for i, e := range es {
		out[i] = toPublicEntity(e)
	}
	return out
}

// Link is the public, curated view of internal/model.Link.
type Link struct {
	FromID       string
	ToID         string
	Relationship string
	Category     string

	Reason   string
	Evidence string

	CreatedBy      string
	ApprovedByUser bool
	ApprovedAt     *time.Time

	DecisionID *string
	CreatedAt  time.Time
}

func toPublicLink(l model.Link) Link {
	pub := Link{
		FromID: l.FromID, ToID: l.ToID, Relationship: l.Relationship,
		Category: string(l.Category()), Reason: l.Reason, Evidence: l.Evidence,
		CreatedBy: string(l.CreatedBy), ApprovedByUser: l.ApprovedByUser,
		DecisionID: l.DecisionID, CreatedAt: time.UnixMilli(l.CreatedAt),
	}
	if l.ApprovedAt != nil {
		t := time.UnixMilli(*l.ApprovedAt)
		pub.ApprovedAt = &t
	}
	return pub
}

func toPublicLinks(ls []model.Link) []Link {
	out := make([]Link, len(ls))
	for i, l := range ls {
		out[i] = toPublicLink(l)
	}
	return out
}

// SaveInput is the `save` operation request (spec §6): a decision or
// checkpoint entity. Type selects which; omitted narrative fields are
// simply absent from the stored entity.
type SaveInput struct {
	Type model.EntityType

	Topic   string
	Content string

	Reasoning    string
	Evidence     []string
	Alternatives []string
	Risks        string
	NextSteps    string
	OpenFiles    []string
	Confidence   *float64
}

// SearchInput is the `search` operation request for the semantic path.
type SearchInput struct {
	QueryText     string
	K             int
	Threshold     float64
	TypeFilter    *model.EntityType
	RecencyWeight float64
	ContextType   *model.EntityType
}

// SearchResult is one semantic search hit.
type SearchResult struct {
	Entity     Entity
	Score      float64
	Similarity float64
}

func toPublicSearchResults(rs []search.Result) []SearchResult {
	out := make([]SearchResult, len(rs))
	for i, r := range rs {
		out[i] = SearchResult{Entity: toPublicEntity(r.Entity), Score: r.Score, Similarity: r.Similarity}
	}
	return out
}

// UpdateOutcomeInput is the `update` operation request.
type UpdateOutcomeInput struct {
	ID            string
	Outcome       model.Outcome
	FailureReason string
	Limitation    string
}

// LoadCheckpointInput is the `load_checkpoint` operation request.
type LoadCheckpointInput struct {
	IncludeNarrative bool
	IncludeLinks     bool
	LinkDepth        int
}

// NextSteps is the synthesized follow-up guidance attached to a loaded
// checkpoint.
type NextSteps struct {
	Unfinished      []string
	Recommendations []string
	Risks           []string
}

// LoadCheckpointResult is the `load_checkpoint` operation result.
type LoadCheckpointResult struct {
	Empty      bool
	Checkpoint Entity
	Narrative  []Entity
	Linked     []Entity
	NextSteps  NextSteps
	Mode       string
	LatencyMs  int64
}

func toPublicCheckpointResult(r checkpoint.Result) LoadCheckpointResult {
	return LoadCheckpointResult{
		Empty: r.Empty, Checkpoint: toPublicEntity(r.Checkpoint),
		Narrative: toPublicEntities(r.Narrative), Linked: toPublicEntities(r.Linked),
		NextSteps: NextSteps(r.NextSteps), Mode: string(r.Mode), LatencyMs: r.LatencyMs,
	}
}

// ScanAutoLinksResult is the `scan_auto_links` operation result.
type ScanAutoLinksResult struct {
	Total          int
	AutoCount      int
	ProtectedCount int
	Targets        []Link
}

func toPublicScanResult(r governance.ScanResult) ScanAutoLinksResult {
	return ScanAutoLinksResult{
		Total: r.Total, AutoCount: r.AutoCount, ProtectedCount: r.ProtectedCount,
		Targets: toPublicLinks(r.Targets),
	}
}

// BackupManifest is the `create_link_backup` operation result, and the
// input accepted back by execute_link_cleanup/restore_link_backup.
type BackupManifest struct {
	File      string
	Count     int
	Checksum  string
	Timestamp time.Time
}

func toPublicManifest(m governance.BackupManifest) BackupManifest {
	return BackupManifest(m)
}

func toInternalManifest(m BackupManifest) governance.BackupManifest {
	return governance.BackupManifest(m)
}

// CleanupReport is the `generate_cleanup_report` operation result.
type CleanupReport struct {
	Risk          string
	DeletionRatio float64
	TotalLinks    int
	TargetCount   int
	Sample        []Link
}

func toPublicReport(r governance.Report) CleanupReport {
	return CleanupReport{
		Risk: string(r.Risk), DeletionRatio: r.DeletionRatio,
		TotalLinks: r.TotalLinks, TargetCount: r.TargetCount, Sample: toPublicLinks(r.Sample),
	}
}

// ExecuteCleanupInput is the `execute_link_cleanup` operation request.
type ExecuteCleanupInput struct {
	Manifest  BackupManifest
	MaxAge    time.Duration
	BatchSize int
	DryRun    bool
}

// CleanupResult is the `execute_link_cleanup` operation result.
type CleanupResult struct {
	WouldDelete, Deleted, Failed int
	Batches, BatchesProcessed    int
	SuccessRate                  float64
	LargeDeletionWarning         bool
	DryRun                       bool
}

func toPublicCleanupResult(r governance.CleanupResult) CleanupResult {
	return CleanupResult{
		WouldDelete: r.WouldDelete, Deleted: r.Deleted, Failed: r.Failed,
		Batches: r.Batches, BatchesProcessed: r.BatchesProcessed,
		SuccessRate: r.SuccessRate, LargeDeletionWarning: r.LargeDeletionWarning, DryRun: r.DryRun,
	}
}

// ValidationResult is the `validate_cleanup_result` operation result.
type ValidationResult struct {
	Status         string
	RemainingRatio float64
	RemainingCount int
	TotalLinks     int
	RollbackAdvice string
}

func toPublicValidation(r governance.ValidationResult) ValidationResult {
	return ValidationResult{
		Status: string(r.Status), RemainingRatio: r.RemainingRatio,
		RemainingCount: r.RemainingCount, TotalLinks: r.TotalLinks, RollbackAdvice: r.RollbackAdvice,
	}
}

// RestoreResult is the `restore_link_backup` operation result.
type RestoreResult struct {
	Total, Restored, Failed int
}

func toPublicRestoreResult(r governance.RestoreResult) RestoreResult {
	return RestoreResult(r)
}

// QualityReportInput is the `generate_quality_report` operation request.
type QualityReportInput struct {
	Markdown bool          // false renders JSON
	Period   time.Duration // restart window; defaults to 24h
}

// RestartMetricsSummary is the `get_restart_metrics` operation result.
type RestartMetricsSummary struct {
	SuccessRate  float64
	AttemptCount int
	FullP50      int64
	FullP95      int64
	FullP99      int64
	SummaryP50   int64
	SummaryP95   int64
	SummaryP99   int64
}

func toPublicRestartSummary(r quality.Restart) RestartMetricsSummary {
	return RestartMetricsSummary(r)
}
