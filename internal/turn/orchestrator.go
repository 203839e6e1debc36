package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ayudante-ai/ayudante/internal/log"
	"github.com/ayudante-ai/ayudante/internal/model"
	"github.com/ayudante-ai/ayudante/internal/store"
	"github.com/ayudante-ai/ayudante/internal/tools"
)

// User-facing status messages.
const (
	statusAnalyzing = "🤔 Analizando tu consulta..."
	statusExecuting = "🔧 Ejecutando: %s..."

	errGeneration = "Lo siento, ocurrió un error al generar la respuesta."
)

// Persister stores the completed assistant message. store.Store
// satisfies it.
type Persister interface {
	InsertMessage(ctx context.Context, conversationID uuid.UUID, role, content string, toolsUsed []string) (*store.Message, error)
}

// Turn is the input to one orchestrated conversational turn. It is
// owned exclusively by the Run invocation that received it.
type Turn struct {
	Messages       []model.Message
	UserID         uuid.UUID
	ConversationID uuid.UUID
}

// Config bounds generation for the orchestrator.
type Config struct {
	Temperature   float32
	MaxTokens     int
	HistoryBudget int
}

// Orchestrator drives conversational turns. Stateless across turns and
// safe for concurrent use; all per-turn state lives in Run.
type Orchestrator struct {
	provider  model.Provider
	registry  *tools.Registry
	executor  *tools.Executor
	persister Persister
	cfg       Config
	logger    log.Logger
	tracer    trace.Tracer
}

// New creates an Orchestrator.
func New(provider model.Provider, registry *tools.Registry, executor *tools.Executor, persister Persister, cfg Config, logger log.Logger) *Orchestrator {
	return &Orchestrator{
		provider:  provider,
		registry:  registry,
		executor:  executor,
		persister: persister,
		cfg:       cfg,
		logger:    logger.With("component", "orchestrator"),
		tracer:    otel.Tracer("ayudante/turn"),
	}
}

// Run executes one turn and yields its ordered event stream. Exactly
// one yielded event carries Finished=true and it is always the last.
//
// Cancellation of ctx abandons the turn silently: iteration simply
// ends, with no terminal event and no persistence. Any other fault in
// a generation pass produces one terminal Error event.
func (o *Orchestrator) Run(ctx context.Context, t Turn) iter.Seq[StreamEvent] {
	return func(yield func(StreamEvent) bool) {
		ctx, span := o.tracer.Start(ctx, "turn.run",
			trace.WithAttributes(attribute.String("conversation.id", t.ConversationID.String())))
		defer span.End()

		if !yield(StreamEvent{Type: EventStatus, Content: statusAnalyzing}) {
			return
		}

		messages := trimMessages(t.Messages, o.cfg.HistoryBudget)

		// Pass 1: stream with tools attached, accumulating any calls.
		var pass1Text strings.Builder
		acc := newAccumulator(o.logger)
		var resolved []ResolvedCall
		seenCalls := make(map[string]bool)

		req := model.Request{
			System:      systemPrompt,
			Messages:    messages,
			Tools:       o.declarations(),
			Temperature: o.cfg.Temperature,
			MaxTokens:   o.cfg.MaxTokens,
		}

		ok, aborted := o.streamPass(ctx, req, yield, &pass1Text, func(ev model.Event) bool {
			switch ev.Kind {
			case model.EventToolCallStart:
				acc.Open(ev.ToolCallID, ev.ToolName)
				return yield(StreamEvent{Type: EventStatus, Content: fmt.Sprintf(statusExecuting, ev.ToolName)})
			case model.EventToolCallFragment:
				acc.Feed(ev.Text)
			case model.EventToolCallStop:
				if call, closed := acc.Close(); closed {
					// Each call identifier resolves at most once per turn.
					if seenCalls[call.ID] {
						o.logger.Warn("duplicate tool call id, dropping", "call_id", call.ID)
						return true
					}
					seenCalls[call.ID] = true
					resolved = append(resolved, call)
				}
			}
			return true
		})
		if !ok {
			return
		}
		if aborted {
			acc.Abandon()
			return
		}

		span.SetAttributes(attribute.Int("turn.tool_calls", len(resolved)))

		// No tool calls: finalize with pass-1 text only.
		if len(resolved) == 0 {
			o.finalize(ctx, t, pass1Text.String(), nil, yield)
			return
		}

		// Execute resolved calls sequentially, in resolution order.
		// Failures are call-isolated; the loop never halts early. The
		// slice is consumed exactly once and never revisited.
		toolResults := make([]model.ToolResult, 0, len(resolved))
		toolCalls := make([]model.ToolCall, 0, len(resolved))
		toolsUsed := make([]string, 0, len(resolved))
		for _, call := range resolved {
			if ctx.Err() != nil {
				return
			}
			result := o.executor.Execute(ctx, call.Name, call.Args, t.UserID)
			if !yield(StreamEvent{
				Type:     EventToolCall,
				Content:  result.Message,
				ToolCall: &ToolCallRecord{Name: call.Name, Args: call.Args, Result: &result},
			}) {
				return
			}
			toolCalls = append(toolCalls, model.ToolCall{ID: call.ID, Name: call.Name, Args: call.Args})
			toolResults = append(toolResults, model.ToolResult{
				CallID:  call.ID,
				Content: encodeResult(result),
				IsError: !result.Success,
			})
			toolsUsed = append(toolsUsed, call.Name)
		}

		// Pass 2: continuation context with tool results, tools
		// disabled so calls cannot nest.
		continuation := make([]model.Message, 0, len(messages)+2)
		continuation = append(continuation, messages...)
		continuation = append(continuation, model.Message{
			Role:      model.RoleAssistant,
			Content:   pass1Text.String(),
			ToolCalls: toolCalls,
		})
		continuation = append(continuation, model.Message{
			Role:        model.RoleUser,
			ToolResults: toolResults,
		})

		var pass2Text strings.Builder
		ok, aborted = o.streamPass(ctx, model.Request{
			System:      systemPrompt,
			Messages:    continuation,
			Temperature: o.cfg.Temperature,
			MaxTokens:   o.cfg.MaxTokens,
		}, yield, &pass2Text, nil)
		if !ok || aborted {
			return
		}

		o.finalize(ctx, t, pass1Text.String()+pass2Text.String(), toolsUsed, yield)
	}
}

// streamPass consumes one generation pass. Text deltas are forwarded as
// content events and appended to text; other events go to onEvent when
// provided. Returns ok=false when the consumer stopped iteration, and
// aborted=true when the turn must end without further events (silent
// cancellation, or a fault already reported as a terminal Error event).
func (o *Orchestrator) streamPass(ctx context.Context, req model.Request, yield func(StreamEvent) bool, text *strings.Builder, onEvent func(model.Event) bool) (ok, aborted bool) {
	for ev, err := range o.provider.Stream(ctx, req) {
		if err != nil {
			// Client disconnect is a silent abandonment, not an error.
			if ctx.Err() != nil {
				return true, true
			}
			o.logger.Error("generation failed", "error", err)
			yield(StreamEvent{Type: EventError, Content: errGeneration, Finished: true})
			return true, true
		}

		switch ev.Kind {
		case model.EventTextDelta:
			text.WriteString(ev.Text)
			if !yield(StreamEvent{Type: EventContent, Content: ev.Text}) {
				return false, false
			}
		case model.EventDone:
			return true, false
		default:
			if onEvent != nil && !onEvent(ev) {
				return false, false
			}
		}
	}
	// Sequence ended without Done or error; treat as completed.
	return true, false
}

// finalize persists the assistant message and emits the terminal event.
// A persistence fault is logged but never suppresses the terminal
// event: the stream always completes.
func (o *Orchestrator) finalize(ctx context.Context, t Turn, text string, toolsUsed []string, yield func(StreamEvent) bool) {
	if ctx.Err() != nil {
		return
	}

	if _, err := o.persister.InsertMessage(ctx, t.ConversationID, "assistant", text, toolsUsed); err != nil {
		o.logger.Error("persisting assistant message failed",
			"conversation_id", t.ConversationID, "error", err)
	}

	yield(StreamEvent{Type: EventContent, Content: "", Finished: true})
}

func (o *Orchestrator) declarations() []model.ToolDecl {
	decls := o.registry.Declarations()
	out := make([]model.ToolDecl, 0, len(decls))
	for _, d := range decls {
		out = append(out, model.ToolDecl{Name: d.Name, Description: d.Description, Schema: d.Schema})
	}
	return out
}

func encodeResult(r tools.Result) string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":%t,"message":%q}`, r.Success, r.Message)
	}
	return string(data)
}
