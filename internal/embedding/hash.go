package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const defaultHashDimensions = 256

// HashProvider is a dependency-free, deterministic fallback for offline use
// when no embedding provider is configured: it feature-hashes whitespace
// and punctuation tokens (plus 2-gram shingles, for short-text
// discrimination where word overlap alone doesn't separate topics) into a
// fixed-width signed accumulator, then L2-normalizes the result. It never
// fails and never calls out to a network.
type HashProvider struct {
	dims int
}

// NewHashProvider builds a provider producing dims-wide vectors, defaulting
// to 256.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = defaultHashDimensions
	}
	return &HashProvider{dims: dims}
}

// Dimensions returns the configured vector size.
func (p *HashProvider) Dimensions() int {
	return p.dims
}

// Embed always succeeds.
func (p *HashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return p.embed(text), nil
}

// EmbedBatch always succeeds.
func (p *HashProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.embed(t)
	}
	return out, nil
}

func (p *HashProvider) embed(text string) []float32 {
	tokens := tokenize(text)
	v := make([]float32, p.dims)

	add := func(feature string) {
		h := xxhash.Sum64String(feature)
		bucket := h % uint64(p.dims)
		// The top bit of the hash, which the bucket index does not use,
		// decides sign, so opposing features partially cancel instead of
		// only ever accumulating.
		if (h>>63)&1 == 0 {
			v[bucket]++
		} else {
			v[bucket]--
		}
	}

	for _, tok := range tokens {
		add(tok)
	}
	for i := 0; i+1 < len(tokens); i++ {
		add(tokens[i] + "_" + tokens[i+1])
	}

	return normalizeVector(v)
}

// tokenize lowercases text and splits on runs of non-alphanumeric
// characters, dropping empty tokens.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
