// Package turn drives one full conversational turn: first generation
// pass, tool-call accumulation, sequential tool execution, second
// generation pass, and emission of a single ordered event stream with
// exactly one terminal event.
package turn

import "github.com/ayudante-ai/ayudante/internal/tools"

// EventType discriminates stream events on the wire.
type EventType string

const (
	// EventStatus is user-facing progress feedback.
	EventStatus EventType = "status"

	// EventContent is an incremental chunk of assistant text.
	EventContent EventType = "content"

	// EventToolCall reports one executed tool call with its result.
	EventToolCall EventType = "tool_call"

	// EventError reports a turn-fatal fault.
	EventError EventType = "error"
)

// ToolCallRecord is the wire representation of one executed tool call.
type ToolCallRecord struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Result *tools.Result  `json:"result,omitempty"`
}

// StreamEvent is one event in a turn's output stream. Immutable once
// constructed. Exactly one event per turn carries Finished=true and it
// is always the last.
type StreamEvent struct {
	Type     EventType       `json:"type"`
	Content  string          `json:"content"`
	ToolCall *ToolCallRecord `json:"toolCall,omitempty"`
	Finished bool            `json:"finished"`
}
