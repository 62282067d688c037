// Package checkpoint implements the C8 Checkpoint Service: saving a
// point-in-time snapshot of ongoing work and resuming from it with a
// bounded narrative window and link-graph expansion.
package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mama-core/mama/internal/graph"
	"github.com/mama-core/mama/internal/model"
	"github.com/mama-core/mama/internal/storage"
	"github.com/mama-core/mama/internal/telemetry"
)

// narrativeWindow is the fixed lookback for "recent decisions" at load
// time, per spec §4.8.
const narrativeWindow = time.Hour

// maxLinkDepth is the hard cap load_checkpoint applies to a caller's
// requested link_depth.
const maxLinkDepth = 2

// Latency targets (p95) per mode; exceeding either logs a warning rather
// than failing the load.
const (
	fullLatencyBudget    = 2500 * time.Millisecond
	summaryLatencyBudget = 1000 * time.Millisecond
)

// Expander is the C6 dependency used to pull in linked entities.
type Expander interface {
	Expand(ctx context.Context, startIDs []string, depth int, approvedOnly bool, categories []model.LinkCategory) ([]graph.Visit, error)
}

// Service implements save_checkpoint / load_checkpoint.
type Service struct {
	db       *storage.DB
	expander Expander
	logger   *slog.Logger

	loadDuration metric.Float64Histogram
}

// New builds a Service. expander may be nil to disable include_links
// (every LoadCheckpoint call then behaves as if IncludeLinks were false).
func New(db *storage.DB, expander Expander, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	meter := telemetry.Meter("mama/checkpoint")
	loadDur, _ := meter.Float64Histogram("mama.checkpoint.load.duration",
		metric.WithDescription("Time to load a checkpoint (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{db: db, expander: expander, logger: logger, loadDuration: loadDur}
}

// SaveInput is the payload for SaveCheckpoint.
type SaveInput struct {
	Summary   string
	OpenFiles []string
	NextSteps string
}

// SaveCheckpoint creates a type='checkpoint' entity capturing the current
// state of work.
func (s *Service) SaveCheckpoint(ctx context.Context, in SaveInput) (model.Entity, error) {
	e := model.Entity{
		Type:      model.EntityTypeCheckpoint,
		Content:   in.Summary,
		OpenFiles: in.OpenFiles,
		NextSteps: in.NextSteps,
	}
	return s.db.InsertEntity(ctx, e)
}

// LoadOptions configures LoadCheckpoint.
type LoadOptions struct {
	IncludeNarrative bool
	IncludeLinks     bool
	LinkDepth        int
}

// DefaultLoadOptions matches the spec's defaults: narrative and links
// both included, link_depth=1.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{IncludeNarrative: true, IncludeLinks: true, LinkDepth: 1}
}

// NextSteps is the synthesized continuation guidance from spec §4.8.
type NextSteps struct {
	Unfinished      []string
	Recommendations []string
	Risks           []string
}

// Result is the output of LoadCheckpoint.
type Result struct {
	Empty      bool // true iff no checkpoint exists yet
	Checkpoint model.Entity
	Narrative  []model.Entity
	Linked     []model.Entity
	NextSteps  NextSteps
	Mode       model.RestartMode
	LatencyMs  int64
}

// LoadCheckpoint retrieves the most recent checkpoint and assembles its
// narrative window, linked entities, and synthesized next steps. A
// missing checkpoint is reported as Result{Empty: true}, not an error.
func (s *Service) LoadCheckpoint(ctx context.Context, opts LoadOptions) (Result, error) {
	start := time.Now()
	sessionID := fmt.Sprintf("load_%d", start.UnixNano())

	checkpointType := model.EntityTypeCheckpoint
	recent, err := s.db.ListRecent(ctx, &checkpointType, 1)
	if err != nil {
		return Result{}, err
	}
	if len(recent) == 0 {
		reason := model.FailureNoCheckpoint
		s.recordMetric(ctx, sessionID, model.RestartFailure, &reason, time.Since(start), model.ModeSummary, 0, 0)
		return Result{Empty: true}, nil
	}

	cp := recent[0]
	mode := model.ModeFull
	if !opts.IncludeNarrative || !opts.IncludeLinks {
		mode = model.ModeSummary
	}

	var narrative []model.Entity
	if opts.IncludeNarrative {
		narrative, err = s.db.ListByTypeInWindow(ctx, model.EntityTypeDecision, cp.CreatedAt-narrativeWindow.Milliseconds(), cp.CreatedAt)
		if err != nil {
			return Result{}, err
		}
	}

	var linked []model.Entity
	if opts.IncludeLinks && s.expander != nil {
		depth := opts.LinkDepth
		if depth > maxLinkDepth {
			depth = maxLinkDepth
		}
		visits, err := s.expander.Expand(ctx, []string{cp.ID}, depth, true, nil)
		if err != nil {
			return Result{}, err
		}
		for _, v := range visits {
			if v.ID == cp.ID {
				continue
			}
			e, err := s.db.GetEntity(ctx, v.ID)
			if err != nil {
				continue
			}
			linked = append(linked, e)
		}
	}

	next := synthesizeNextSteps(cp, narrative)

	latency := time.Since(start)
	status := model.RestartSuccess
	s.recordMetric(ctx, sessionID, status, nil, latency, mode, len(narrative), len(linked))
	s.warnIfOverBudget(mode, latency)

	return Result{
		Checkpoint: cp,
		Narrative:  narrative,
		Linked:     linked,
		NextSteps:  next,
		Mode:       mode,
		LatencyMs:  latency.Milliseconds(),
	}, nil
}

// synthesizeNextSteps builds next_steps = { unfinished: parse(checkpoint.next_steps),
// recommendations, risks: collect(decisions.risks) } per spec §4.8.
func synthesizeNextSteps(cp model.Entity, narrative []model.Entity) NextSteps {
	unfinished := parseLines(cp.NextSteps)

	var risks []string
	missingOutcome := 0
	for _, d := range narrative {
		if d.Risks != "" {
			risks = append(risks, d.Risks)
		}
		if d.Outcome == nil {
			missingOutcome++
		}
	}

	var recommendations []string
	if missingOutcome > 0 {
		recommendations = append(recommendations, fmt.Sprintf("%d decision(s) in the narrative window have no recorded outcome yet", missingOutcome))
	}
	if len(unfinished) > 0 {
		recommendations = append(recommendations, fmt.Sprintf("%d unfinished item(s) carried over from the last checkpoint", len(unfinished)))
	}

	return NextSteps{Unfinished: unfinished, Recommendations: recommendations, Risks: risks}
}

// parseLines splits a free-form next_steps block into discrete items,
// one per non-empty line.
func parseLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (s *Service) recordMetric(ctx context.Context, sessionID string, status model.RestartStatus, failureReason *model.RestartFailureReason, latency time.Duration, mode model.RestartMode, narrativeCount, linkCount int) {
	m := model.RestartMetric{
		Timestamp:      time.Now().UnixMilli(),
		SessionID:      sessionID,
		Status:         status,
		FailureReason:  failureReason,
		LatencyMs:      latency.Milliseconds(),
		Mode:           mode,
		NarrativeCount: narrativeCount,
		LinkCount:      linkCount,
	}
	if err := s.db.InsertRestartMetric(ctx, m); err != nil {
		s.logger.Warn("checkpoint: failed to record restart metric", "error", err)
	}
	if s.loadDuration != nil {
		s.loadDuration.Record(ctx, float64(latency.Milliseconds()), metric.WithAttributes(attribute.String("mode", string(mode))))
	}
}

func (s *Service) warnIfOverBudget(mode model.RestartMode, latency time.Duration) {
	budget := fullLatencyBudget
	if mode == model.ModeSummary {
		budget = summaryLatencyBudget
	}
	if latency > budget {
		s.logger.Warn("checkpoint: load exceeded latency budget", "mode", mode, "latency_ms", latency.Milliseconds(), "budget_ms", budget.Milliseconds())
	}
}
