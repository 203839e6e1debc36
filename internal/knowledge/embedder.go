// Package knowledge manages the document retrieval subsystem: Voyage AI
// embeddings plus vector similarity search in PostgreSQL + pgvector.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ayudante-ai/ayudante/internal/log"
)

// ErrEmbedding indicates the embedding service failed.
var ErrEmbedding = errors.New("embedding failed")

const (
	defaultVoyageBaseURL = "https://api.voyageai.com/v1"
	embedTimeout         = 30 * time.Second

	// InputTypeDocument marks texts embedded for storage.
	InputTypeDocument = "document"

	// InputTypeQuery marks texts embedded for search.
	InputTypeQuery = "query"
)

// Embedder generates embeddings through the Voyage AI HTTP API.
// Safe for concurrent use.
type Embedder struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     log.Logger
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithBaseURL overrides the Voyage API base URL. Tests point this at an
// httptest server.
func WithBaseURL(u string) EmbedderOption {
	return func(e *Embedder) { e.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) EmbedderOption {
	return func(e *Embedder) { e.httpClient = c }
}

// NewEmbedder creates an Embedder for the given model.
func NewEmbedder(apiKey, model string, logger log.Logger, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultVoyageBaseURL,
		httpClient: &http.Client{Timeout: embedTimeout},
		logger:     logger.With("component", "embedder"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embedRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed embeds texts with the given input type (InputTypeDocument or
// InputTypeQuery). Returns one embedding per input text, in order.
func (e *Embedder) Embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no input texts", ErrEmbedding)
	}

	body, err := json.Marshal(embedRequest{Input: texts, Model: e.model, InputType: inputType})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbedding, resp.StatusCode, snippet)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbedding, err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbedding, len(parsed.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrEmbedding, d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for text %d", ErrEmbedding, i)
		}
	}

	return embeddings, nil
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{query}, InputTypeQuery)
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}
