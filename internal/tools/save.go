package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/ayudante-ai/ayudante/internal/log"
	"github.com/ayudante-ai/ayudante/internal/store"
)

// Saver is the persistence capability the save tool consumes.
// store.Store satisfies it.
type Saver interface {
	InsertSavedData(ctx context.Context, userID uuid.UUID, dataType, content string) (*store.SavedData, error)
}

// SaveArgs are the arguments of the saveData tool.
type SaveArgs struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// NewSaveTool builds the structured-data persistence tool.
func NewSaveTool(saver Saver, logger log.Logger) (*Tool, error) {
	schema, resolved, err := schemaFor[SaveArgs]()
	if err != nil {
		return nil, err
	}
	logger = logger.With("tool", "saveData")

	handler := func(ctx context.Context, args map[string]any, userID uuid.UUID) Result {
		typed, err := decodeArgs[SaveArgs](args)
		if err != nil {
			return Result{
				Success: false,
				Message: "No pude interpretar los datos a guardar",
				Error:   "Error al guardar los datos",
				Details: err.Error(),
			}
		}

		saved, err := saver.InsertSavedData(ctx, userID, typed.Type, typed.Data)
		if err != nil {
			logger.Warn("persistence failed", "error", err)
			return Result{
				Success: false,
				Message: "No pude guardar los datos",
				Error:   "Error al guardar los datos",
				Details: err.Error(),
			}
		}

		return Result{
			Success: true,
			Message: "He guardado la información correctamente",
			Payload: map[string]any{
				"id":   saved.ID.String(),
				"type": saved.DataType,
			},
		}
	}

	return &Tool{
		Name:        "saveData",
		Description: "Guarda información estructurada del usuario (notas, recordatorios, datos personales).",
		Schema:      schema,
		Handler:     handler,
		resolved:    resolved,
	}, nil
}
