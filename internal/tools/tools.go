// Package tools declares the assistant's server-side tools and executes
// them on the model's behalf.
//
// The registry is the single source of truth for what is advertised to
// the model and what the executor can run. Every handler returns a
// uniform Result envelope; faults never escape the executor.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

var (
	// ErrUnknownTool indicates the model requested a tool that is not
	// registered. Fatal to that call only.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArgs indicates the arguments failed schema validation.
	ErrInvalidArgs = errors.New("invalid arguments")

	// ErrInvalidExpression indicates a malformed or unsafe arithmetic
	// expression.
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrRetrieval indicates the retrieval provider failed.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrPersistence indicates the storage provider failed.
	ErrPersistence = errors.New("persistence failed")
)

// Result is the uniform envelope every tool returns.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// Handler executes one tool call. Handlers catch their own faults and
// report them through the Result envelope.
type Handler func(ctx context.Context, args map[string]any, userID uuid.UUID) Result

// Tool couples a declaration with its handler and compiled schema.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Handler     Handler

	resolved *jsonschema.Resolved
}

// Declaration is the model-facing description of one tool.
type Declaration struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Registry is an immutable mapping from tool name to declaration and
// handler. Safe for concurrent use after construction.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry builds a registry from the given tools.
// Duplicate names are rejected.
func NewRegistry(tools ...*Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if t.Name == "" {
			return nil, errors.New("tool with empty name")
		}
		if _, exists := r.tools[t.Name]; exists {
			return nil, fmt.Errorf("duplicate tool %q", t.Name)
		}
		if t.resolved == nil {
			resolved, err := compileSchema(t.Schema)
			if err != nil {
				return nil, fmt.Errorf("compiling schema for %q: %w", t.Name, err)
			}
			t.resolved = resolved
		}
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	return r, nil
}

// Declarations returns the tool declarations in registration order.
func (r *Registry) Declarations() []Declaration {
	decls := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		decls = append(decls, Declaration{Name: t.Name, Description: t.Description, Schema: t.Schema})
	}
	return decls
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// schemaFor generates the JSON Schema map and compiled validator for an
// argument struct type. All fields without omitempty become required.
func schemaFor[T any]() (map[string]any, *jsonschema.Resolved, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, nil, fmt.Errorf("reflecting schema: %w", err)
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return nil, nil, fmt.Errorf("decoding schema: %w", err)
	}

	resolved, err := compileSchema(schemaMap)
	if err != nil {
		return nil, nil, err
	}
	return schemaMap, resolved, nil
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Resolved, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("encoding schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema: %w", err)
	}
	return resolved, nil
}

// decodeArgs converts a validated argument map into its typed struct.
func decodeArgs[T any](args map[string]any) (T, error) {
	var typed T
	data, err := json.Marshal(args)
	if err != nil {
		return typed, fmt.Errorf("encoding arguments: %w", err)
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return typed, fmt.Errorf("decoding arguments: %w", err)
	}
	return typed, nil
}
