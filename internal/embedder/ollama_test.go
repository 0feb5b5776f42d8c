package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDimensionResolvedFromModel(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"nomic-embed-text", 768},
		{"mxbai-embed-large", 1024},
		{"all-minilm", 384},
		{"some-unknown-model", 768},
		{"", 768},
	}
	for _, tt := range tests {
		e := NewOllamaEmbedder(OllamaConfig{Model: tt.model})
		if got := e.Dimension(); got != tt.want {
			t.Errorf("model %q: Dimension() = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestDimensionOverride(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{Model: "mxbai-embed-large", Dimension: 512})
	if got := e.Dimension(); got != 512 {
		t.Errorf("Dimension() = %d, want explicit override 512", got)
	}
}

func TestEmbed(t *testing.T) {
	var gotReq embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, Model: "nomic-embed-text"})
	vector, err := e.Embed(context.Background(), "annual leave policy")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vector) != 3 {
		t.Fatalf("got %d components, want 3", len(vector))
	}
	if gotReq.Model != "nomic-embed-text" || gotReq.Prompt != "annual leave policy" {
		t.Errorf("unexpected request %+v", gotReq)
	}
}

func TestEmbedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL})
	if _, err := e.Embed(context.Background(), "text"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("5xx: got %v, want ErrUnavailable", err)
	}

	// Connection refused wraps the same sentinel.
	down := NewOllamaEmbedder(OllamaConfig{BaseURL: "http://127.0.0.1:1"})
	if _, err := down.Embed(context.Background(), "text"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("dial failure: got %v, want ErrUnavailable", err)
	}
}

func TestEmbedBatchOrderAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		// Encode the input length so order can be checked.
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{float64(len(req.Prompt))}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL, BatchConcurrency: 2})
	vectors, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	for i, want := range []float32{1, 2, 3} {
		if vectors[i][0] != want {
			t.Errorf("vectors[%d] = %v, want %v", i, vectors[i][0], want)
		}
	}

	empty, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty batch: got %v, %v", empty, err)
	}
}
