package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayudante-ai/ayudante/internal/log"
)

func TestEmbedSendsModelAndInputType(t *testing.T) {
	var got embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s, want /embeddings", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		resp := map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2}, "index": 0},
				{"embedding": []float32{0.3, 0.4}, "index": 1},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewEmbedder("test-key", "voyage-2", log.NewNop(), WithBaseURL(srv.URL))
	embeddings, err := e.Embed(context.Background(), []string{"uno", "dos"}, InputTypeDocument)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if got.Model != "voyage-2" || got.InputType != "document" {
		t.Errorf("request = %+v, want model voyage-2 input_type document", got)
	}
	if len(embeddings) != 2 || embeddings[1][0] != 0.3 {
		t.Errorf("embeddings = %v", embeddings)
	}
}

func TestEmbedOutOfOrderIndices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{2}, "index": 1},
				{"embedding": []float32{1}, "index": 0},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewEmbedder("k", "voyage-2", log.NewNop(), WithBaseURL(srv.URL))
	embeddings, err := e.Embed(context.Background(), []string{"a", "b"}, InputTypeQuery)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if embeddings[0][0] != 1 || embeddings[1][0] != 2 {
		t.Errorf("embeddings not reordered by index: %v", embeddings)
	}
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := NewEmbedder("bad", "voyage-2", log.NewNop(), WithBaseURL(srv.URL))
	_, err := e.Embed(context.Background(), []string{"x"}, InputTypeQuery)
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("Embed() = %v, want ErrEmbedding", err)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"data": []map[string]any{{"embedding": []float32{1}, "index": 0}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewEmbedder("k", "voyage-2", log.NewNop(), WithBaseURL(srv.URL))
	_, err := e.Embed(context.Background(), []string{"a", "b"}, InputTypeDocument)
	if !errors.Is(err, ErrEmbedding) {
		t.Fatalf("Embed() = %v, want ErrEmbedding", err)
	}
}

func TestEmbedNoInput(t *testing.T) {
	e := NewEmbedder("k", "voyage-2", log.NewNop())
	if _, err := e.Embed(context.Background(), nil, InputTypeQuery); !errors.Is(err, ErrEmbedding) {
		t.Fatalf("Embed(nil) = %v, want ErrEmbedding", err)
	}
}
