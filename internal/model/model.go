// Package model defines the generation provider abstraction and its
// Anthropic implementation.
//
// The provider surfaces the raw streaming protocol (text deltas plus
// tool-call start/fragment/stop events) so the turn orchestrator can
// reconstruct tool invocations from partial JSON itself.
package model

import (
	"context"
	"iter"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is a fully resolved tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the outcome of one tool call, sent back to the model in
// the second generation pass.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// Message is one conversation message. Assistant messages may carry tool
// calls; user messages may carry tool results.
type Message struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolDecl advertises one tool to the model. Schema is a JSON Schema
// object ({"type": "object", "properties": ..., "required": ...}).
type ToolDecl struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Request is one generation pass.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDecl
	Temperature float32
	MaxTokens   int
}

// EventKind discriminates streaming events.
type EventKind int

const (
	// EventTextDelta carries a chunk of assistant text in Text.
	EventTextDelta EventKind = iota

	// EventToolCallStart opens a tool invocation; ToolCallID and
	// ToolName are set.
	EventToolCallStart

	// EventToolCallFragment carries a raw partial-JSON arguments
	// fragment in Text for the open invocation.
	EventToolCallFragment

	// EventToolCallStop closes the open invocation.
	EventToolCallStop

	// EventDone ends the generation pass.
	EventDone
)

// Event is one streaming event from a generation pass.
type Event struct {
	Kind       EventKind
	Text       string
	ToolCallID string
	ToolName   string
}

// Provider streams generation passes. The sequence ends after yielding
// EventDone, or earlier with a non-nil error.
type Provider interface {
	Stream(ctx context.Context, req Request) iter.Seq2[Event, error]
}
