package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ayudante-ai/ayudante/internal/log"
)

// Executor dispatches resolved tool calls against the registry and
// normalizes every outcome into a Result. A handler fault can never
// escape Execute.
type Executor struct {
	registry *Registry
	logger   log.Logger
	tracer   trace.Tracer
}

// NewExecutor creates an Executor over the registry.
func NewExecutor(registry *Registry, logger log.Logger) *Executor {
	return &Executor{
		registry: registry,
		logger:   logger.With("component", "executor"),
		tracer:   otel.Tracer("ayudante/tools"),
	}
}

// Execute runs one tool call. Unknown names and schema mismatches are
// call-isolated failures reported through the Result envelope.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, userID uuid.UUID) (result Result) {
	ctx, span := e.tracer.Start(ctx, "tools.execute",
		trace.WithAttributes(attribute.String("tool.name", name)))
	defer func() {
		if !result.Success {
			span.SetStatus(codes.Error, result.Error)
		}
		span.End()
	}()

	// A panicking handler fails its call, not the turn.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool handler panicked", "tool", name, "panic", r)
			result = Result{
				Success: false,
				Message: "La herramienta falló de forma inesperada",
				Error:   "error interno de la herramienta",
				Details: fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	tool, ok := e.registry.Lookup(name)
	if !ok {
		e.logger.Warn("unknown tool requested", "tool", name)
		return Result{
			Success: false,
			Message: fmt.Sprintf("La herramienta %q no existe", name),
			Error:   "herramienta desconocida",
			Details: ErrUnknownTool.Error(),
		}
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := tool.resolved.Validate(args); err != nil {
		e.logger.Warn("tool arguments failed validation", "tool", name, "error", err)
		return Result{
			Success: false,
			Message: fmt.Sprintf("Los argumentos para %q no son válidos", name),
			Error:   "argumentos inválidos",
			Details: err.Error(),
		}
	}

	result = tool.Handler(ctx, args, userID)
	e.logger.Debug("tool executed", "tool", name, "success", result.Success)
	return result
}
