package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider("", "model", 8); err == nil {
		t.Error("expected error for missing api key, got nil")
	}
}

func TestOpenAIProvider_DefaultsModelAndDimensions(t *testing.T) {
	p, err := NewOpenAIProvider("key", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if p.model != "text-embedding-3-small" {
		t.Errorf("expected default model, got %q", p.model)
	}
	if p.Dimensions() != 1536 {
		t.Errorf("expected default dimensions 1536, got %d", p.Dimensions())
	}
}

func TestOpenAIProvider_EmbedBatchReordersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		resp := openAIResponse{}
		// Return results in reverse order to prove Embed/EmbedBatch
		// reorders by the Index field rather than trusting array order.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{float32(i + 1), 1}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p, err := NewOpenAIProvider("key", "test-model", 2)
	if err != nil {
		t.Fatal(err)
	}
	// Route requests to the mock server via a custom transport since the
	// provider always posts to the production OpenAI URL.
	p.httpClient = server.Client()
	p.httpClient.Transport = rewriteHostTransport{target: server.URL}

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	// Input i was answered with [i+1, 1], whose normalized first element
	// grows with i, so request order shows as a strictly increasing one.
	if !(vecs[0][0] > 0 && vecs[0][0] < vecs[1][0] && vecs[1][0] < vecs[2][0]) {
		t.Errorf("expected vectors in request order (increasing first element), got %v", vecs)
	}
}

// rewriteHostTransport redirects every request to target, so tests can
// point the OpenAI provider's hardcoded production URL at an httptest
// server without changing production code.
type rewriteHostTransport struct {
	target string
}

func (rt rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := http.NewRequest(req.Method, rt.target+req.URL.Path, req.Body)
	if err != nil {
		return nil, err
	}
	target.Header = req.Header
	return http.DefaultTransport.RoundTrip(target)
}
