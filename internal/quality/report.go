package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format selects the rendering of GenerateReport's output.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ReportInput configures GenerateReport.
type ReportInput struct {
	Format     Format
	Period     time.Duration // restart window; defaults to 24h
	Thresholds Thresholds    // defaults to DefaultThresholds()
}

// Report is the assembled quality report: the three metric blocks plus
// recommendations for any metric below its threshold.
type Report struct {
	Coverage        Coverage   `json:"coverage"`
	Quality         Quality    `json:"quality"`
	Restart         Restart    `json:"restart"`
	Thresholds      Thresholds `json:"thresholds"`
	Recommendations []string   `json:"recommendations"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

// GenerateReport computes Coverage, Quality, and Restart and renders
// them per in.Format, emitting a recommendation for every metric that
// falls below its threshold.
func (s *Service) GenerateReport(ctx context.Context, in ReportInput) (string, error) {
	if in.Period <= 0 {
		in.Period = 24 * time.Hour
	}
	thresholds := in.Thresholds
	if thresholds == (Thresholds{}) {
		thresholds = DefaultThresholds()
	}

	coverage, err := s.Coverage(ctx)
	if err != nil {
		return "", err
	}
	qual, err := s.Quality(ctx)
	if err != nil {
		return "", err
	}
	restart, err := s.Restart(ctx, in.Period)
	if err != nil {
		return "", err
	}

	report := Report{
		Coverage:        coverage,
		Quality:         qual,
		Restart:         restart,
		Thresholds:      thresholds,
		Recommendations: recommendations(coverage, qual, restart, thresholds),
		GeneratedAt:     time.Now(),
	}

	switch in.Format {
	case FormatMarkdown:
		return renderMarkdown(report), nil
	case FormatJSON, "":
		payload, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", fmt.Errorf("quality: marshal report: %w", err)
		}
		return string(payload), nil
	default:
		return "", fmt.Errorf("quality: unknown report format %q", in.Format)
	}
}

func recommendations(c Coverage, q Quality, r Restart, t Thresholds) []string {
	var recs []string
	if c.NarrativeCoverage < t.NarrativeCoverage {
		recs = append(recs, fmt.Sprintf("narrative coverage %.0f%% is below the %.0f%% target: decisions are missing reasoning, evidence, alternatives, or risks", c.NarrativeCoverage*100, t.NarrativeCoverage*100))
	}
	if c.LinkCoverage < t.LinkCoverage {
		recs = append(recs, fmt.Sprintf("link coverage %.0f%% is below the %.0f%% target: more decisions need at least one approved link", c.LinkCoverage*100, t.LinkCoverage*100))
	}
	if q.RichReasonRatio < t.LinkQuality {
		recs = append(recs, fmt.Sprintf("rich-reason ratio %.0f%% is below the %.0f%% target: link reasons should explain the relationship in more than a sentence fragment", q.RichReasonRatio*100, t.LinkQuality*100))
	}
	if q.ApprovedRatio < t.LinkQuality {
		recs = append(recs, fmt.Sprintf("approved-link ratio %.0f%% is below the %.0f%% target: review the pending-link queue", q.ApprovedRatio*100, t.LinkQuality*100))
	}
	if r.AttemptCount > 0 && r.SuccessRate < t.RestartSuccess {
		recs = append(recs, fmt.Sprintf("restart success rate %.0f%% is below the %.0f%% target", r.SuccessRate*100, t.RestartSuccess*100))
	}
	if r.FullP95 > t.LatencyFull.Milliseconds() {
		recs = append(recs, fmt.Sprintf("full restart p95 latency %dms exceeds the %dms budget", r.FullP95, t.LatencyFull.Milliseconds()))
	}
	if r.SummaryP95 > t.LatencySummary.Milliseconds() {
		recs = append(recs, fmt.Sprintf("summary restart p95 latency %dms exceeds the %dms budget", r.SummaryP95, t.LatencySummary.Milliseconds()))
	}
	return recs
}

func renderMarkdown(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Memory Core Quality Report\n\n_generated %s_\n\n", r.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(&b, "## Coverage\n\n")
	fmt.Fprintf(&b, "- Narrative coverage: %.1f%%\n", r.Coverage.NarrativeCoverage*100)
	fmt.Fprintf(&b, "- Link coverage: %.1f%%\n", r.Coverage.LinkCoverage*100)
	fmt.Fprintf(&b, "- Decisions evaluated: %d\n\n", r.Coverage.DecisionCount)

	fmt.Fprintf(&b, "## Quality\n\n")
	fmt.Fprintf(&b, "- Evidence ratio: %.1f%%\n", r.Quality.EvidenceRatio*100)
	fmt.Fprintf(&b, "- Alternatives ratio: %.1f%%\n", r.Quality.AlternativesRatio*100)
	fmt.Fprintf(&b, "- Risks ratio: %.1f%%\n", r.Quality.RisksRatio*100)
	fmt.Fprintf(&b, "- Rich-reason ratio: %.1f%%\n", r.Quality.RichReasonRatio*100)
	fmt.Fprintf(&b, "- Approved-link ratio: %.1f%%\n", r.Quality.ApprovedRatio*100)
	fmt.Fprintf(&b, "- Links evaluated: %d\n\n", r.Quality.LinkCount)

	fmt.Fprintf(&b, "## Restart\n\n")
	fmt.Fprintf(&b, "- Success rate: %.1f%% (%d attempts)\n", r.Restart.SuccessRate*100, r.Restart.AttemptCount)
	fmt.Fprintf(&b, "- Full mode latency p50/p95/p99: %d/%d/%dms\n", r.Restart.FullP50, r.Restart.FullP95, r.Restart.FullP99)
	fmt.Fprintf(&b, "- Summary mode latency p50/p95/p99: %d/%d/%dms\n\n", r.Restart.SummaryP50, r.Restart.SummaryP95, r.Restart.SummaryP99)

	fmt.Fprintf(&b, "## Recommendations\n\n")
	if len(r.Recommendations) == 0 {
		b.WriteString("- none: every metric meets its threshold\n")
	} else {
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}

	return b.String()
}
