// Package embedding generates unit-normalized vector embeddings from
// narrative text for the memory core's semantic search and vector index.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/mama-core/mama/internal/mamaerr"
)

// Provider generates vector embeddings from text. Implementations must
// return mamaerr.ErrEmbedUnavailable (not a zero vector) when embedding
// fails, so callers skip storing the vector rather than persisting
// phantom zero-vector noise.
type Provider interface {
	// Embed generates a single, L2-normalized embedding vector from text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates normalized embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// Options selects and configures a Provider, translated from
// config.Config by the root package so this package stays decoupled from
// environment parsing.
type Options struct {
	Kind       string // "hash", "openai", "ollama", or "noop"
	Dimensions int

	OpenAIAPIKey string
	Model        string

	OllamaURL   string
	OllamaModel string
}

// New builds the Provider selected by opts.Kind.
func New(opts Options) (Provider, error) {
	switch opts.Kind {
	case "openai":
		return NewOpenAIProvider(opts.OpenAIAPIKey, opts.Model, opts.Dimensions)
	case "ollama":
		return NewOllamaProvider(opts.OllamaURL, opts.OllamaModel, opts.Dimensions), nil
	case "noop":
		return NewNoopProvider(opts.Dimensions), nil
	case "hash", "":
		return NewHashProvider(opts.Dimensions), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider kind %q", opts.Kind)
	}
}

// normalizeVector L2-normalizes v in place and returns it. A zero vector
// is left unchanged (there is no direction to normalize to); callers that
// cannot produce a meaningful embedding should return
// mamaerr.ErrEmbedUnavailable instead of relying on this case.
func normalizeVector(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// NoopProvider never produces an embedding; used when the operator
// explicitly disables embedding generation (MAMA_EMBEDDING_PROVIDER=noop).
type NoopProvider struct {
	dims int
}

// NewNoopProvider creates a provider that always reports unavailable.
func NewNoopProvider(dims int) *NoopProvider {
	return &NoopProvider{dims: dims}
}

// Dimensions returns the configured (unused) vector size.
func (p *NoopProvider) Dimensions() int {
	return p.dims
}

// Embed always returns ErrEmbedUnavailable.
func (p *NoopProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("%w: embedding provider disabled", mamaerr.ErrEmbedUnavailable)
}

// EmbedBatch always returns ErrEmbedUnavailable.
func (p *NoopProvider) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: embedding provider disabled", mamaerr.ErrEmbedUnavailable)
}
