package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OFFIS-RIT/litgraph/pkg/ai"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GraphOllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewGraphOllamaClient(NewGraphOllamaClientParams{
		ExtractionModel:       "llama3",
		EmbeddingModel:        "nomic-embed-text",
		EmbeddingDim:          4,
		BaseURL:               srv.URL,
		MaxConcurrentRequests: 1,
	})
	if err != nil {
		t.Fatalf("NewGraphOllamaClient() error = %v", err)
	}
	return c
}

func TestGenerateCompletionWithFormat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["format"] == nil {
			t.Errorf("request without format schema")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3",
			"message":           map[string]any{"role": "assistant", "content": `{"relation":"extends","improvement_kind":"","confidence":0.6,"rationale":"adds"}`},
			"done":              true,
			"prompt_eval_count": 12,
			"eval_count":        8,
		})
	})

	var res ai.ClassificationResponse
	if err := client.GenerateCompletionWithFormat(context.Background(), "concept_relation", "d", "prompt", &res); err != nil {
		t.Fatalf("GenerateCompletionWithFormat() error = %v", err)
	}
	if res.Relation != ai.RelationExtends {
		t.Fatalf("relation = %q", res.Relation)
	}
	if m := client.GetMetrics(); m.TotalTokens != 20 || m.Requests != 1 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestGenerateCompletion_ServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"model is loading"}`))
	})

	_, err := client.GenerateCompletion(context.Background(), "prompt")
	if !ai.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestGenerateEmbedding_FitsDimension(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      "nomic-embed-text",
			"embeddings": [][]float32{{0.1, 0.2}},
		})
	})

	vec, err := client.GenerateEmbedding(context.Background(), []byte("transformer"))
	if err != nil {
		t.Fatalf("GenerateEmbedding() error = %v", err)
	}
	if len(vec) != 4 || vec[0] != 0.1 || vec[3] != 0 {
		t.Fatalf("vec = %v", vec)
	}

	blank, err := client.GenerateEmbedding(context.Background(), []byte("   "))
	if err != nil || len(blank) != 4 {
		t.Fatalf("blank input: %v %v", blank, err)
	}
}
