package mama

import (
	"io"
	"log/slog"

	"github.com/mama-core/mama/internal/embedding"
)

// Option configures an Engine at Open time.
type Option func(*resolvedOptions)

// resolvedOptions holds every extension point after defaults and config
// have been applied. Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger            *slog.Logger
	version           string
	dbPath            *string
	metricsWriter     io.Writer
	metricsWriterSet  bool
	embeddingProvider embedding.Provider
}

// WithLogger sets the structured logger for the Engine. Defaults to
// slog.Default() if not set.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in telemetry resource
// attributes.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithDBPath overrides the storage path from config (MAMA_DB_PATH). Pass
// "" to select an in-memory database.
func WithDBPath(path string) Option {
	return func(o *resolvedOptions) { o.dbPath = &path }
}

// WithMetricsWriter overrides where periodic OTel metrics are rendered.
// Defaults to os.Stdout; pass nil to disable metrics entirely regardless
// of MAMA_METRICS_ENABLED.
func WithMetricsWriter(w io.Writer) Option {
	return func(o *resolvedOptions) { o.metricsWriter = w; o.metricsWriterSet = true }
}

// WithEmbeddingProvider replaces the auto-detected embedding provider
// (hash/openai/ollama/noop, selected by MAMA_EMBEDDING_PROVIDER).
func WithEmbeddingProvider(p embedding.Provider) Option {
	return func(o *resolvedOptions) { o.embeddingProvider = p }
}
