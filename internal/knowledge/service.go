package knowledge

import (
	"context"
	"fmt"

	"github.com/ayudante-ai/ayudante/internal/log"
)

// Service combines the embedder and the vector store behind the
// retrieval API the rest of the application consumes.
type Service struct {
	embedder  *Embedder
	store     *Store
	topK      int
	threshold float64
	logger    log.Logger
}

// NewService creates a retrieval service. topK and threshold bound every
// search.
func NewService(embedder *Embedder, store *Store, topK int, threshold float64, logger log.Logger) *Service {
	return &Service{
		embedder:  embedder,
		store:     store,
		topK:      topK,
		threshold: threshold,
		logger:    logger.With("component", "retrieval"),
	}
}

// Search embeds the query and returns the most similar documents.
func (s *Service) Search(ctx context.Context, query string) ([]Match, error) {
	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := s.store.Search(ctx, embedding, s.topK, s.threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	s.logger.Debug("search completed", "query_length", len(query), "matches", len(matches))
	return matches, nil
}

// Document is one input to Index.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Index embeds and stores documents in batches.
func (s *Service) Index(ctx context.Context, docs []Document) error {
	const batchSize = 32

	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}

		embeddings, err := s.embedder.Embed(ctx, texts, InputTypeDocument)
		if err != nil {
			return fmt.Errorf("embedding batch at %d: %w", start, err)
		}

		for i, d := range batch {
			if err := s.store.Add(ctx, d.Content, d.Metadata, embeddings[i]); err != nil {
				return fmt.Errorf("storing document at %d: %w", start+i, err)
			}
		}
	}

	s.logger.Info("indexing completed", "documents", len(docs))
	return nil
}
