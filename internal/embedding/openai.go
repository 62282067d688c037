package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mama-core/mama/internal/mamaerr"
)

const maxResponseBody = 10 * 1024 * 1024 // 10MB cap on the embeddings response body

// OpenAIProvider calls the OpenAI embeddings API.
type OpenAIProvider struct {
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
}

// NewOpenAIProvider builds a provider for model, defaulting dimensions to
// 1536 (text-embedding-3-small's native size) when unset.
func NewOpenAIProvider(apiKey, model string, dimensions int) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai provider requires an api key", mamaerr.ErrValidation)
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Dimensions returns the configured embedding size.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

type openAIRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates a single normalized embedding.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates normalized embeddings for multiple texts in one
// request, reordering the response by its Index field since the API does
// not guarantee response order matches request order.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(openAIRequest{
		Model:      p.model,
		Input:      texts,
		Dimensions: p.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal openai request: %v", mamaerr.ErrEmbedUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api.openai.com/v1/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: build openai request: %v", mamaerr.ErrEmbedUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai request failed: %v", mamaerr.ErrEmbedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read openai response: %v", mamaerr.ErrEmbedUnavailable, err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode openai response: %v", mamaerr.ErrEmbedUnavailable, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: openai: %s", mamaerr.ErrEmbedUnavailable, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: openai returned status %d", mamaerr.ErrEmbedUnavailable, resp.StatusCode)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai returned %d embeddings for %d inputs",
			mamaerr.ErrEmbedUnavailable, len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: openai response index %d out of range", mamaerr.ErrEmbedUnavailable, d.Index)
		}
		out[d.Index] = normalizeVector(d.Embedding)
	}
	return out, nil
}
