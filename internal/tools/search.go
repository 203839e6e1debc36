package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ayudante-ai/ayudante/internal/knowledge"
	"github.com/ayudante-ai/ayudante/internal/log"
)

// Searcher is the retrieval capability the search tool consumes.
// knowledge.Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]knowledge.Match, error)
}

// SearchArgs are the arguments of the searchDocuments tool.
type SearchArgs struct {
	Query string `json:"query"`
}

// Document content is truncated in tool results to keep the
// continuation context small.
const maxSnippetLen = 500

// NewSearchTool builds the document retrieval tool.
func NewSearchTool(searcher Searcher, logger log.Logger) (*Tool, error) {
	schema, resolved, err := schemaFor[SearchArgs]()
	if err != nil {
		return nil, err
	}
	logger = logger.With("tool", "searchDocuments")

	handler := func(ctx context.Context, args map[string]any, userID uuid.UUID) Result {
		typed, err := decodeArgs[SearchArgs](args)
		if err != nil {
			return Result{
				Success: false,
				Message: "No pude interpretar la consulta de búsqueda",
				Error:   "Error al buscar documentos",
				Details: err.Error(),
			}
		}

		matches, err := searcher.Search(ctx, typed.Query)
		if err != nil {
			logger.Warn("retrieval failed", "error", err)
			return Result{
				Success: false,
				Message: "No pude completar la búsqueda de documentos",
				Error:   "Error al buscar documentos",
				Details: err.Error(),
			}
		}

		if len(matches) == 0 {
			return Result{
				Success: true,
				Message: "No encontré documentos relevantes para tu consulta",
				Payload: []any{},
			}
		}

		results := make([]map[string]any, 0, len(matches))
		for _, m := range matches {
			content := m.Content
			if runes := []rune(content); len(runes) > maxSnippetLen {
				content = string(runes[:maxSnippetLen])
			}
			results = append(results, map[string]any{
				"content":    content,
				"metadata":   m.Metadata,
				"relevancia": fmt.Sprintf("%.0f%%", m.Similarity*100),
			})
		}

		return Result{
			Success: true,
			Message: fmt.Sprintf("Encontré %d documentos relevantes", len(matches)),
			Payload: results,
		}
	}

	return &Tool{
		Name:        "searchDocuments",
		Description: "Busca documentos relevantes en la base de conocimiento.",
		Schema:      schema,
		Handler:     handler,
		resolved:    resolved,
	}, nil
}
