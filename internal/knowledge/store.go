package knowledge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/ayudante-ai/ayudante/internal/log"
)

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Match is one document returned by a similarity search.
type Match struct {
	Content    string
	Metadata   map[string]any
	Similarity float64
}

// Store persists document embeddings and runs cosine similarity search.
// Safe for concurrent use.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a Store backed by db, normally a *pgxpool.Pool.
func NewStore(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger.With("component", "knowledge")}
}

// Add inserts a document with its embedding.
func (s *Store) Add(ctx context.Context, content string, metadata map[string]any, embedding []float32) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	var id string
	err = s.db.QueryRow(ctx,
		`INSERT INTO document_embeddings (content, metadata, embedding)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		content, meta, pgvector.NewVector(embedding),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	s.logger.Debug("indexed document", "id", id, "content_length", len(content))
	return nil
}

// Search returns up to topK documents whose cosine similarity to the
// query embedding is at least threshold, most similar first.
// Similarity is 1 minus the cosine distance.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, threshold float64) ([]Match, error) {
	rows, err := s.db.Query(ctx,
		`SELECT content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM document_embeddings
		 WHERE 1 - (embedding <=> $1) >= $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding), threshold, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var meta []byte
		if err := rows.Scan(&m.Content, &meta, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			s.logger.Warn("unparseable document metadata", "error", err)
			m.Metadata = map[string]any{}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}
	return matches, nil
}
