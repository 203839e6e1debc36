package model

import (
	"context"
	"fmt"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ayudante-ai/ayudante/internal/log"
)

// Anthropic implements Provider on top of the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
	logger log.Logger
}

// NewAnthropic creates a provider for the given model.
func NewAnthropic(apiKey, model string, logger log.Logger) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logger.With("component", "anthropic"),
	}
}

// Stream runs one generation pass, translating the wire protocol into
// provider events. Tool-call argument fragments are passed through raw;
// reassembly belongs to the caller.
func (a *Anthropic) Stream(ctx context.Context, req Request) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(a.model),
			MaxTokens:   int64(req.MaxTokens),
			Temperature: anthropic.Float(float64(req.Temperature)),
			Messages:    buildMessages(req.Messages),
			Tools:       buildTools(req.Tools),
		}
		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}

		stream := a.client.Messages.NewStreaming(ctx, params)

		// Index of the content block whose tool-call is currently open,
		// or -1. The API opens at most one block at a time.
		openToolBlock := int64(-1)

		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if variant.ContentBlock.Type != "tool_use" {
					continue
				}
				openToolBlock = variant.Index
				if !yield(Event{
					Kind:       EventToolCallStart,
					ToolCallID: variant.ContentBlock.ID,
					ToolName:   variant.ContentBlock.Name,
				}, nil) {
					return
				}

			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text == "" {
						continue
					}
					if !yield(Event{Kind: EventTextDelta, Text: delta.Text}, nil) {
						return
					}
				case anthropic.InputJSONDelta:
					if variant.Index != openToolBlock || delta.PartialJSON == "" {
						continue
					}
					if !yield(Event{Kind: EventToolCallFragment, Text: delta.PartialJSON}, nil) {
						return
					}
				}

			case anthropic.ContentBlockStopEvent:
				if variant.Index != openToolBlock {
					continue
				}
				openToolBlock = -1
				if !yield(Event{Kind: EventToolCallStop}, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(Event{}, fmt.Errorf("anthropic stream: %w", err))
			return
		}

		yield(Event{Kind: EventDone}, nil)
	}
}

var _ Provider = (*Anthropic)(nil)

func buildTools(decls []ToolDecl) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(decls))
	for _, d := range decls {
		param := anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: d.Schema["properties"],
			},
		}
		if required := requiredFields(d.Schema["required"]); len(required) > 0 {
			param.InputSchema.Required = required
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &param})
	}
	return tools
}

// requiredFields normalizes a schema's required list. Schemas built via
// a JSON round-trip carry it as []any, not []string; the advertised
// schema must keep it either way so the model sees the same contract
// the executor enforces.
func requiredFields(v any) []string {
	switch required := v.(type) {
	case []string:
		return required
	case []any:
		out := make([]string, 0, len(required))
		for _, f := range required {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func buildMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var blocks []anthropic.ContentBlockParamUnion

		for _, res := range msg.ToolResults {
			blocks = append(blocks, anthropic.NewToolResultBlock(res.CallID, res.Content, res.IsError))
		}
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, call := range msg.ToolCalls {
			args := call.Args
			if args == nil {
				args = map[string]any{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, args, call.Name))
		}
		if len(blocks) == 0 {
			continue
		}

		if msg.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}
