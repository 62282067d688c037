// Package mama is the embeddable memory core: a local-first store for an
// AI agent's decisions, checkpoints, insights, and context, with semantic
// search, link governance, and restart quality reporting.
//
// Open an Engine, call its operation methods, Close it when done:
//
//	eng, err := mama.Open(ctx, mama.WithDBPath("agent.db"))
//	if err != nil { ... }
//	defer eng.Close(ctx)
//	entity, err := eng.Save(ctx, mama.SaveInput{...})
//
// internal/* packages implement each component (C1-C9); this file is the
// only one that wires them together and converts between their types and
// this package's public DTOs, so no internal package type ever needs to
// appear in an external caller's code. internal/* must never import this
// package — the dependency runs one way.
package mama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/metric"

	"github.com/mama-core/mama/internal/checkpoint"
	"github.com/mama-core/mama/internal/config"
	"github.com/mama-core/mama/internal/embedding"
	"github.com/mama-core/mama/internal/governance"
	"github.com/mama-core/mama/internal/graph"
	"github.com/mama-core/mama/internal/model"
	"github.com/mama-core/mama/internal/quality"
	"github.com/mama-core/mama/internal/search"
	"github.com/mama-core/mama/internal/storage"
	"github.com/mama-core/mama/internal/telemetry"
	"github.com/mama-core/mama/internal/vectorindex"
	"github.com/mama-core/mama/migrations"
)

// Engine is the open, ready-to-use memory core: every component wired
// together over one storage handle. The zero value is not usable — build
// one with Open.
type Engine struct {
	cfg          config.Config
	db           *storage.DB
	index        *vectorindex.Index
	embedder     embedding.Provider
	searchEngine *search.Engine
	expander     *graph.Expander

	governance *governance.Service // nil unless cfg.EnableV1_1
	checkpoint *checkpoint.Service // nil unless cfg.EnableV1_1
	quality    *quality.Service    // nil unless cfg.EnableV1_1

	logger       *slog.Logger
	version      string
	otelShutdown telemetry.Shutdown

	embedDuration  metric.Float64Histogram
	searchDuration metric.Float64Histogram
}

// Open loads configuration, opens storage, runs migrations, rebuilds the
// vector index, and wires every component. Callers must Close the
// returned Engine.
func Open(ctx context.Context, opts ...Option) (*Engine, error) {
	var o resolvedOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("mama: load config: %w", err)
	}
	if o.dbPath != nil {
		cfg.DBPath = *o.dbPath
	}

	logger.Info("mama: opening", "version", version, "db_path", cfg.DBPath, "v1.1", cfg.EnableV1_1)

	metricsWriter := o.metricsWriter
	if !o.metricsWriterSet && cfg.MetricsEnabled {
		metricsWriter = os.Stdout
	}
	otelShutdown, err := telemetry.Init(ctx, metricsWriter, cfg.ServiceName, version)
	if err != nil {
		return nil, fmt.Errorf("mama: telemetry: %w", err)
	}

	db, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("mama: open storage: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		_ = db.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("mama: run migrations: %w", err)
	}

	embedder := o.embeddingProvider
	if embedder == nil {
		embedder, err = embedding.New(embedding.Options{
			Kind: cfg.EmbeddingProvider, Dimensions: cfg.EmbeddingDimensions,
			OpenAIAPIKey: cfg.OpenAIAPIKey, Model: cfg.EmbeddingModel,
			OllamaURL: cfg.OllamaURL, OllamaModel: cfg.OllamaModel,
		})
		if err != nil {
			_ = db.Close()
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("mama: embedding provider: %w", err)
		}
	}

	index := vectorindex.New()
	entities, err := db.ListAll(ctx)
	if err != nil {
		_ = db.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("mama: rebuild vector index: %w", err)
	}
	var entries []vectorindex.Entry
	for _, e := range entities {
		if e.Embedding != nil {
			entries = append(entries, vectorindex.Entry{ID: e.ID, Vector: e.Embedding})
		}
	}
	index.Load(entries)
	logger.Info("mama: vector index rebuilt", "vectors", index.Len(), "entities", len(entities))

	searchEngine := search.New(embedder, index, db)
	expander := graph.New(db)

	meter := telemetry.Meter("mama/engine")
	embedDur, _ := meter.Float64Histogram("mama.embedding.duration",
		metric.WithDescription("Time to embed text for storage or search (ms)"), metric.WithUnit("ms"))
	searchDur, _ := meter.Float64Histogram("mama.search.duration",
		metric.WithDescription("Time to answer a semantic search (ms)"), metric.WithUnit("ms"))

	eng := &Engine{
		cfg: cfg, db: db, index: index, embedder: embedder, searchEngine: searchEngine, expander: expander,
		logger: logger, version: version, otelShutdown: otelShutdown,
		embedDuration: embedDur, searchDuration: searchDur,
	}

	if cfg.EnableV1_1 {
		eng.governance = governance.New(db, expander, logger)
		eng.checkpoint = checkpoint.New(db, expander, logger)
		eng.quality = quality.New(db)
	} else {
		logger.Info("mama: v1.1 surface disabled", "reason", "MAMA_ENABLE_V1_1=false")
	}

	return eng, nil
}

// Close closes storage and flushes telemetry. Safe to call once; the
// Engine must not be used afterward.
func (e *Engine) Close(ctx context.Context) error {
	e.logger.Info("mama: closing")
	dbErr := e.db.Close()
	otelErr := e.otelShutdown(ctx)
	if dbErr != nil {
		return fmt.Errorf("mama: close storage: %w", dbErr)
	}
	if otelErr != nil {
		return fmt.Errorf("mama: shutdown telemetry: %w", otelErr)
	}
	return nil
}

const errV1_1Disabled = "mama: this operation requires MAMA_ENABLE_V1_1=true"

func (e *Engine) requireV1_1() error {
	if e.governance == nil {
		return fmt.Errorf("%w: %s", ErrValidation, errV1_1Disabled)
	}
	return nil
}

// Save inserts a decision or checkpoint entity (C2), embedding its
// searchable text (C1) and indexing the result (C4) when one is produced.
func (e *Engine) Save(ctx context.Context, in SaveInput) (Entity, error) {
	entity := model.Entity{
		Type: in.Type, Topic: in.Topic, Content: in.Content, Reasoning: in.Reasoning,
		Evidence: in.Evidence, Alternatives: in.Alternatives, Risks: in.Risks,
		NextSteps: in.NextSteps, OpenFiles: in.OpenFiles, Confidence: in.Confidence,
	}
	if entity.HasNarrativeText() {
		start := time.Now()
		text := entity.Content
		if entity.Reasoning != "" {
			text = text + "\n" + entity.Reasoning
		}
		vec, err := e.embedder.Embed(ctx, text)
		e.embedDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
		if err != nil {
			if !errors.Is(err, ErrEmbedUnavailable) {
				return Entity{}, fmt.Errorf("mama: save: embed: %w", err)
			}
			e.logger.Warn("mama: save: embedding unavailable, storing without a vector", "error", err)
		} else {
			entity.Embedding = vec
		}
	}

	stored, err := e.db.InsertEntity(ctx, entity)
	if err != nil {
		return Entity{}, err
	}
	if stored.Embedding != nil {
		e.index.Insert(stored.ID, stored.Embedding)
	}
	return toPublicEntity(stored), nil
}

// Search answers a semantic query (C5).
func (e *Engine) Search(ctx context.Context, in SearchInput) ([]SearchResult, error) {
	start := time.Now()
	results, err := e.searchEngine.Search(ctx, in.QueryText, search.Options{
		K: in.K, Threshold: in.Threshold, TypeFilter: in.TypeFilter,
		RecencyWeight: in.RecencyWeight, ContextType: in.ContextType,
	})
	e.searchDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, err
	}
	return toPublicSearchResults(results), nil
}

// SearchByTopic returns every entity with an exact topic match (C5).
func (e *Engine) SearchByTopic(ctx context.Context, topic string) ([]Entity, error) {
	entities, err := search.SearchByTopic(ctx, e.db, topic)
	if err != nil {
		return nil, err
	}
	return toPublicEntities(entities), nil
}

// SearchRecent lists the most recently created entities, optionally
// filtered by type (C2's list_recent).
func (e *Engine) SearchRecent(ctx context.Context, entityType *model.EntityType, limit int) ([]Entity, error) {
	entities, err := e.db.ListRecent(ctx, entityType, limit)
	if err != nil {
		return nil, err
	}
	return toPublicEntities(entities), nil
}

// Update sets an entity's outcome (C2's update_outcome). It never
// regenerates the embedding.
func (e *Engine) Update(ctx context.Context, in UpdateOutcomeInput) (Entity, error) {
	updated, err := e.db.UpdateOutcome(ctx, in.ID, in.Outcome, in.FailureReason, in.Limitation)
	if err != nil {
		return Entity{}, err
	}
	return toPublicEntity(updated), nil
}

// LoadCheckpoint resumes from the most recent checkpoint (C8).
func (e *Engine) LoadCheckpoint(ctx context.Context, in LoadCheckpointInput) (LoadCheckpointResult, error) {
	if err := e.requireV1_1(); err != nil {
		return LoadCheckpointResult{}, err
	}
	result, err := e.checkpoint.LoadCheckpoint(ctx, checkpoint.LoadOptions{
		IncludeNarrative: in.IncludeNarrative, IncludeLinks: in.IncludeLinks, LinkDepth: in.LinkDepth,
	})
	if err != nil {
		return LoadCheckpointResult{}, err
	}
	return toPublicCheckpointResult(result), nil
}

// ProposeLink proposes an llm-created link awaiting user approval (C7).
func (e *Engine) ProposeLink(ctx context.Context, fromID, toID, relationship, reason, evidence string) (Link, error) {
	if err := e.requireV1_1(); err != nil {
		return Link{}, err
	}
	link, err := e.governance.ProposeLink(ctx, fromID, toID, relationship, reason, evidence)
	if err != nil {
		return Link{}, err
	}
	return toPublicLink(link), nil
}

// ApproveLink approves a pending link, making it traversable (C7).
func (e *Engine) ApproveLink(ctx context.Context, fromID, toID, relationship string) error {
	if err := e.requireV1_1(); err != nil {
		return err
	}
	return e.governance.ApproveLink(ctx, fromID, toID, relationship)
}

// RejectLink deletes a pending link with a recorded reason (C7).
func (e *Engine) RejectLink(ctx context.Context, fromID, toID, relationship, reason string) error {
	if err := e.requireV1_1(); err != nil {
		return err
	}
	return e.governance.RejectLink(ctx, fromID, toID, relationship, reason)
}

// GetPendingLinks lists links awaiting approval (C7).
func (e *Engine) GetPendingLinks(ctx context.Context) ([]Link, error) {
	if err := e.requireV1_1(); err != nil {
		return nil, err
	}
	links, err := e.governance.GetPendingLinks(ctx)
	if err != nil {
		return nil, err
	}
	return toPublicLinks(links), nil
}

// ScanAutoLinks finds legacy auto-created links eligible for cleanup (C7).
func (e *Engine) ScanAutoLinks(ctx context.Context) (ScanAutoLinksResult, error) {
	if err := e.requireV1_1(); err != nil {
		return ScanAutoLinksResult{}, err
	}
	result, err := e.governance.ScanAutoLinks(ctx)
	if err != nil {
		return ScanAutoLinksResult{}, err
	}
	return toPublicScanResult(result), nil
}

// CreateLinkBackup writes a checksummed backup of targets to dir. An
// empty dir defaults to the configured backup directory (MAMA_BACKUP_DIR).
func (e *Engine) CreateLinkBackup(ctx context.Context, dir string, targets []Link) (BackupManifest, error) {
	if err := e.requireV1_1(); err != nil {
		return BackupManifest{}, err
	}
	if dir == "" {
		dir = e.cfg.BackupDir
	}
	internalTargets := make([]model.Link, len(targets))
	for i, t := range targets {
		l := model.Link{
			FromID: t.FromID, ToID: t.ToID, Relationship: t.Relationship, Reason: t.Reason,
			Evidence: t.Evidence, CreatedBy: model.LinkCreatedBy(t.CreatedBy),
			ApprovedByUser: t.ApprovedByUser, DecisionID: t.DecisionID, CreatedAt: t.CreatedAt.UnixMilli(),
		}
		if t.ApprovedAt != nil {
			ms := t.ApprovedAt.UnixMilli()
			l.ApprovedAt = &ms
		}
		internalTargets[i] = l
	}
	manifest, err := e.governance.CreateBackup(ctx, dir, internalTargets)
	if err != nil {
		return BackupManifest{}, err
	}
	return toPublicManifest(manifest), nil
}

// GenerateCleanupReport classifies the risk of deleting the currently
// scanned auto-links (C7).
func (e *Engine) GenerateCleanupReport(ctx context.Context) (CleanupReport, error) {
	if err := e.requireV1_1(); err != nil {
		return CleanupReport{}, err
	}
	report, err := e.governance.GenerateReport(ctx)
	if err != nil {
		return CleanupReport{}, err
	}
	return toPublicReport(report), nil
}

// ExecuteLinkCleanup deletes the backed-up links, refusing to run without
// a recent, checksum-valid backup (C7). A zero MaxAge defaults to the
// configured backup staleness window (MAMA_BACKUP_MAX_AGE).
func (e *Engine) ExecuteLinkCleanup(ctx context.Context, in ExecuteCleanupInput) (CleanupResult, error) {
	if err := e.requireV1_1(); err != nil {
		return CleanupResult{}, err
	}
	maxAge := in.MaxAge
	if maxAge <= 0 {
		maxAge = e.cfg.BackupMaxAge
	}
	result, err := e.governance.ExecuteCleanup(ctx, toInternalManifest(in.Manifest), maxAge, in.BatchSize, in.DryRun)
	if err != nil {
		return CleanupResult{}, err
	}
	return toPublicCleanupResult(result), nil
}

// ValidateCleanupResult checks how many legacy auto-links remain after a
// cleanup run (C7).
func (e *Engine) ValidateCleanupResult(ctx context.Context) (ValidationResult, error) {
	if err := e.requireV1_1(); err != nil {
		return ValidationResult{}, err
	}
	result, err := e.governance.ValidateCleanup(ctx)
	if err != nil {
		return ValidationResult{}, err
	}
	return toPublicValidation(result), nil
}

// RestoreLinkBackup reinserts every link from a backup manifest (C7).
func (e *Engine) RestoreLinkBackup(ctx context.Context, manifest BackupManifest) (RestoreResult, error) {
	if err := e.requireV1_1(); err != nil {
		return RestoreResult{}, err
	}
	result, err := e.governance.RestoreBackup(ctx, toInternalManifest(manifest))
	if err != nil {
		return RestoreResult{}, err
	}
	return toPublicRestoreResult(result), nil
}

// GenerateQualityReport renders the C9 coverage/quality/restart report as
// JSON or Markdown.
func (e *Engine) GenerateQualityReport(ctx context.Context, in QualityReportInput) (string, error) {
	if err := e.requireV1_1(); err != nil {
		return "", err
	}
	format := quality.FormatJSON
	if in.Markdown {
		format = quality.FormatMarkdown
	}
	return e.quality.GenerateReport(ctx, quality.ReportInput{Format: format, Period: in.Period})
}

// GetRestartMetrics summarizes restart success rate and latency
// percentiles over the trailing period (C9).
func (e *Engine) GetRestartMetrics(ctx context.Context, period time.Duration) (RestartMetricsSummary, error) {
	if err := e.requireV1_1(); err != nil {
		return RestartMetricsSummary{}, err
	}
	restart, err := e.quality.Restart(ctx, period)
	if err != nil {
		return RestartMetricsSummary{}, err
	}
	return toPublicRestartSummary(restart), nil
}
