// Package quality computes the C9 coverage, link-quality, and restart
// metrics used by generateQualityReport, and renders the resulting
// report as JSON or Markdown.
package quality

import (
	"context"
	"time"

	"github.com/mama-core/mama/internal/model"
	"github.com/mama-core/mama/internal/storage"
)

// richReasonMinLen is the length threshold above which a link's reason
// counts toward richReasonRatio (spec §4.9).
const richReasonMinLen = 50

// Thresholds are the minimum acceptable values for each metric; a report
// recommendation is only emitted for a metric that falls below its
// threshold.
type Thresholds struct {
	NarrativeCoverage float64
	LinkCoverage      float64
	LinkQuality       float64
	RestartSuccess    float64
	LatencyFull       time.Duration
	LatencySummary    time.Duration
}

// DefaultThresholds matches spec §4.9's stated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NarrativeCoverage: 0.8,
		LinkCoverage:      0.7,
		LinkQuality:       0.7,
		RestartSuccess:    0.95,
		LatencyFull:       2500 * time.Millisecond,
		LatencySummary:    1000 * time.Millisecond,
	}
}

// Coverage holds the §4.9 coverage ratios.
type Coverage struct {
	NarrativeCoverage float64
	LinkCoverage      float64
	DecisionCount     int
}

// Quality holds the §4.9 link/field quality ratios.
type Quality struct {
	EvidenceRatio     float64
	AlternativesRatio float64
	RisksRatio        float64
	RichReasonRatio   float64
	ApprovedRatio     float64
	LinkCount         int
}

// Restart holds the §4.9 restart success-rate and latency percentiles.
type Restart struct {
	SuccessRate  float64
	AttemptCount int
	FullP50      int64
	FullP95      int64
	FullP99      int64
	SummaryP50   int64
	SummaryP95   int64
	SummaryP99   int64
}

// Service computes coverage/quality/restart metrics from storage.
type Service struct {
	db *storage.DB
}

// New builds a Service.
func New(db *storage.DB) *Service {
	return &Service{db: db}
}

// Coverage computes narrativeCoverage and linkCoverage over every
// decision entity currently stored.
func (s *Service) Coverage(ctx context.Context) (Coverage, error) {
	decisions, err := s.db.ListByType(ctx, model.EntityTypeDecision)
	if err != nil {
		return Coverage{}, err
	}
	if len(decisions) == 0 {
		return Coverage{}, nil
	}

	complete := 0
	linked := 0
	for _, d := range decisions {
		if d.IsComplete() {
			complete++
		}
		approved, err := s.db.ListApprovedFrom(ctx, d.ID)
		if err != nil {
			return Coverage{}, err
		}
		if len(approved) > 0 {
			linked++
		}
	}

	return Coverage{
		NarrativeCoverage: ratio(complete, len(decisions)),
		LinkCoverage:      ratio(linked, len(decisions)),
		DecisionCount:     len(decisions),
	}, nil
}

// Quality computes per-field presence ratios and link health ratios
// over every link currently stored.
func (s *Service) Quality(ctx context.Context) (Quality, error) {
	links, err := s.db.ListAllLinks(ctx)
	if err != nil {
		return Quality{}, err
	}
	decisions, err := s.db.ListByType(ctx, model.EntityTypeDecision)
	if err != nil {
		return Quality{}, err
	}

	evidence, alternatives, risks := 0, 0, 0
	for _, d := range decisions {
		if len(d.Evidence) > 0 {
			evidence++
		}
		if len(d.Alternatives) > 0 {
			alternatives++
		}
		if d.Risks != "" {
			risks++
		}
	}

	richReason, approved := 0, 0
	for _, l := range links {
		if len(l.Reason) > richReasonMinLen {
			richReason++
		}
		if l.ApprovedByUser {
			approved++
		}
	}

	return Quality{
		EvidenceRatio:     ratio(evidence, len(decisions)),
		AlternativesRatio: ratio(alternatives, len(decisions)),
		RisksRatio:        ratio(risks, len(decisions)),
		RichReasonRatio:   ratio(richReason, len(links)),
		ApprovedRatio:     ratio(approved, len(links)),
		LinkCount:         len(links),
	}, nil
}

// Restart computes the restart success rate and per-mode latency
// percentiles over the trailing period.
func (s *Service) Restart(ctx context.Context, period time.Duration) (Restart, error) {
	since := time.Now().Add(-period).UnixMilli()
	metrics, err := s.db.ListRestartMetricsSince(ctx, since)
	if err != nil {
		return Restart{}, err
	}
	if len(metrics) == 0 {
		return Restart{}, nil
	}

	succeeded := 0
	var fullLatencies, summaryLatencies []int64
	for _, m := range metrics {
		if m.Status != model.RestartSuccess {
			continue
		}
		succeeded++
		switch m.Mode {
		case model.ModeFull:
			fullLatencies = append(fullLatencies, m.LatencyMs)
		case model.ModeSummary:
			summaryLatencies = append(summaryLatencies, m.LatencyMs)
		}
	}

	return Restart{
		SuccessRate:  ratio(succeeded, len(metrics)),
		AttemptCount: len(metrics),
		FullP50:      percentile(fullLatencies, 50),
		FullP95:      percentile(fullLatencies, 95),
		FullP99:      percentile(fullLatencies, 99),
		SummaryP50:   percentile(summaryLatencies, 50),
		SummaryP95:   percentile(summaryLatencies, 95),
		SummaryP99:   percentile(summaryLatencies, 99),
	}, nil
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
