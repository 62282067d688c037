package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mama-core/mama/internal/mamaerr"
)

const (
	defaultMaxInputChars = 2000
	ollamaMaxConcurrency = 4
)

// OllamaProvider calls a local Ollama server's embedding endpoint.
type OllamaProvider struct {
	baseURL       string
	model         string
	dimensions    int
	maxInputChars int
	httpClient    *http.Client
}

// NewOllamaProvider builds a provider against baseURL, defaulting to
// http://localhost:11434 when unset.
func NewOllamaProvider(baseURL, model string, dimensions int) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaProvider{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		model:         model,
		dimensions:    dimensions,
		maxInputChars: defaultMaxInputChars,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Dimensions returns the configured embedding size, or 0 when none was
// configured; it is not inferred from the server's responses.
func (p *OllamaProvider) Dimensions() int {
	return p.dimensions
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates a single normalized embedding, truncating text that
// exceeds maxInputChars.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := p.post(ctx, []string{truncateText(text, p.maxInputChars)})
	if err != nil {
		return nil, err
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: ollama returned no embeddings", mamaerr.ErrEmbedUnavailable)
	}
	return normalizeVector(result.Embeddings[0]), nil
}

// EmbedBatch generates normalized embeddings for multiple texts, first
// trying a single native batch request and falling back to concurrent
// per-text requests if the server rejects the batch shape (older Ollama
// builds only accept one input per /api/embed call).
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 1 {
		v, err := p.Embed(ctx, texts[0])
		if err != nil {
			return nil, err
		}
		return [][]float32{v}, nil
	}

	out, err := p.embedBatchNative(ctx, texts)
	if err != nil {
		slog.Debug("ollama native batch embed failed, falling back to concurrent", "error", err)
		return p.embedBatchConcurrent(ctx, texts)
	}
	return out, nil
}

func (p *OllamaProvider) embedBatchNative(ctx context.Context, texts []string) ([][]float32, error) {
	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = truncateText(t, p.maxInputChars)
	}
	result, err := p.post(ctx, truncated)
	if err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: ollama returned %d embeddings for %d inputs",
			mamaerr.ErrEmbedUnavailable, len(result.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		out[i] = normalizeVector(e)
	}
	return out, nil
}

func (p *OllamaProvider) embedBatchConcurrent(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	sem := make(chan struct{}, ollamaMaxConcurrency)
	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			v, err := p.Embed(ctx, text)
			out[i] = v
			errs[i] = err
		}(i, text)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("%w: embedding input %d: %v", mamaerr.ErrEmbedUnavailable, i, err)
		}
	}
	return out, nil
}

func (p *OllamaProvider) post(ctx context.Context, inputs []string) (*ollamaEmbedResponse, error) {
	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal ollama request: %v", mamaerr.ErrEmbedUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: build ollama request: %v", mamaerr.ErrEmbedUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama request failed: %v", mamaerr.ErrEmbedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read ollama response: %v", mamaerr.ErrEmbedUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", mamaerr.ErrEmbedUnavailable, resp.StatusCode, body)
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode ollama response: %v", mamaerr.ErrEmbedUnavailable, err)
	}
	return &parsed, nil
}

// truncateText shortens text to at most limit runes, preferring to cut at
// the last word boundary so embeddings aren't fed a word sheared in half.
// It falls back to a hard cut at limit runes when text has no space to
// break on. text at or under limit is returned unchanged.
func truncateText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		return cut[:i]
	}
	return cut
}
