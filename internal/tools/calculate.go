package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/ayudante-ai/ayudante/internal/log"
)

// CalculateArgs are the arguments of the calculate tool.
type CalculateArgs struct {
	Expression string `json:"expression"`
}

// NewCalculateTool builds the arithmetic evaluation tool. It normalizes
// Spanish numeric phrasing and evaluates with a restricted parser.
func NewCalculateTool(logger log.Logger) (*Tool, error) {
	schema, resolved, err := schemaFor[CalculateArgs]()
	if err != nil {
		return nil, err
	}
	logger = logger.With("tool", "calculate")

	handler := func(ctx context.Context, args map[string]any, userID uuid.UUID) Result {
		typed, err := decodeArgs[CalculateArgs](args)
		if err != nil {
			return Result{
				Success: false,
				Message: "No pude interpretar la expresión",
				Error:   "Expresión matemática inválida",
				Details: err.Error(),
			}
		}

		canonical := normalizeExpression(typed.Expression)
		value, err := evaluate(canonical)
		if err != nil {
			logger.Debug("expression rejected", "expression", typed.Expression, "error", err)
			return Result{
				Success: false,
				Message: fmt.Sprintf("No pude calcular %q", typed.Expression),
				Error:   "Expresión matemática inválida",
				Details: err.Error(),
			}
		}

		return Result{
			Success: true,
			Message: fmt.Sprintf("El resultado de %s es %s", canonical, formatNumber(value)),
			Payload: map[string]any{
				"expression": canonical,
				"result":     value,
			},
		}
	}

	return &Tool{
		Name:        "calculate",
		Description: "Evalúa una expresión matemática. Soporta operaciones básicas, porcentajes y raíces cuadradas.",
		Schema:      schema,
		Handler:     handler,
		resolved:    resolved,
	}, nil
}

// formatNumber renders integers without a decimal part.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
