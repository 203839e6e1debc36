package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/ayudante-ai/ayudante/internal/knowledge"
	"github.com/ayudante-ai/ayudante/internal/log"
	"github.com/ayudante-ai/ayudante/internal/store"
)

type stubSearcher struct {
	matches []knowledge.Match
	err     error
}

func (s stubSearcher) Search(ctx context.Context, query string) ([]knowledge.Match, error) {
	return s.matches, s.err
}

type stubSaver struct {
	saved *store.SavedData
	err   error
}

func (s stubSaver) InsertSavedData(ctx context.Context, userID uuid.UUID, dataType, content string) (*store.SavedData, error) {
	return s.saved, s.err
}

func newTestRegistry(t *testing.T, searcher Searcher, saver Saver) *Registry {
	t.Helper()
	logger := log.NewNop()

	searchTool, err := NewSearchTool(searcher, logger)
	if err != nil {
		t.Fatalf("NewSearchTool: %v", err)
	}
	saveTool, err := NewSaveTool(saver, logger)
	if err != nil {
		t.Fatalf("NewSaveTool: %v", err)
	}
	calcTool, err := NewCalculateTool(logger)
	if err != nil {
		t.Fatalf("NewCalculateTool: %v", err)
	}

	registry, err := NewRegistry(searchTool, saveTool, calcTool)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry
}

func TestRegistryDeclarations(t *testing.T) {
	registry := newTestRegistry(t, stubSearcher{}, stubSaver{})

	decls := registry.Declarations()
	if len(decls) != 3 {
		t.Fatalf("got %d declarations, want 3", len(decls))
	}
	names := []string{decls[0].Name, decls[1].Name, decls[2].Name}
	want := []string{"searchDocuments", "saveData", "calculate"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("declaration %d = %q, want %q", i, names[i], want[i])
		}
	}
	for _, d := range decls {
		if d.Schema["type"] != "object" {
			t.Errorf("%s schema type = %v, want object", d.Name, d.Schema["type"])
		}
		if d.Description == "" {
			t.Errorf("%s has empty description", d.Name)
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	logger := log.NewNop()
	calc1, _ := NewCalculateTool(logger)
	calc2, _ := NewCalculateTool(logger)
	if _, err := NewRegistry(calc1, calc2); err == nil {
		t.Fatal("NewRegistry accepted duplicate tool names")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	registry := newTestRegistry(t, stubSearcher{}, stubSaver{})
	exec := NewExecutor(registry, log.NewNop())

	result := exec.Execute(context.Background(), "deleteEverything", map[string]any{}, uuid.New())
	if result.Success {
		t.Fatal("unknown tool reported success")
	}
	if !strings.Contains(result.Details, ErrUnknownTool.Error()) {
		t.Errorf("Details = %q, want mention of unknown tool", result.Details)
	}
}

func TestExecuteSchemaMismatch(t *testing.T) {
	registry := newTestRegistry(t, stubSearcher{}, stubSaver{})
	exec := NewExecutor(registry, log.NewNop())

	// query must be a string.
	result := exec.Execute(context.Background(), "searchDocuments", map[string]any{"query": 42}, uuid.New())
	if result.Success {
		t.Fatal("schema mismatch reported success")
	}
	if result.Error != "argumentos inválidos" {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestExecuteCalculate(t *testing.T) {
	registry := newTestRegistry(t, stubSearcher{}, stubSaver{})
	exec := NewExecutor(registry, log.NewNop())

	result := exec.Execute(context.Background(), "calculate",
		map[string]any{"expression": "15% de 1200"}, uuid.New())
	if !result.Success {
		t.Fatalf("calculate failed: %+v", result)
	}
	payload, ok := result.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type %T", result.Payload)
	}
	if payload["result"] != 180.0 {
		t.Errorf("result = %v, want 180", payload["result"])
	}
}

func TestExecuteCalculateInvalid(t *testing.T) {
	registry := newTestRegistry(t, stubSearcher{}, stubSaver{})
	exec := NewExecutor(registry, log.NewNop())

	result := exec.Execute(context.Background(), "calculate",
		map[string]any{"expression": "banana + "}, uuid.New())
	if result.Success {
		t.Fatal("invalid expression reported success")
	}
	if result.Error != "Expresión matemática inválida" {
		t.Errorf("Error = %q, want %q", result.Error, "Expresión matemática inválida")
	}
}

func TestExecuteSearch(t *testing.T) {
	searcher := stubSearcher{matches: []knowledge.Match{
		{Content: strings.Repeat("a", 600), Metadata: map[string]any{"source": "faq"}, Similarity: 0.87},
	}}
	registry := newTestRegistry(t, searcher, stubSaver{})
	exec := NewExecutor(registry, log.NewNop())

	result := exec.Execute(context.Background(), "searchDocuments",
		map[string]any{"query": "horarios"}, uuid.New())
	if !result.Success {
		t.Fatalf("search failed: %+v", result)
	}
	if result.Message != "Encontré 1 documentos relevantes" {
		t.Errorf("Message = %q", result.Message)
	}
	results, ok := result.Payload.([]map[string]any)
	if !ok {
		t.Fatalf("payload type %T", result.Payload)
	}
	if got := results[0]["content"].(string); len(got) != 500 {
		t.Errorf("content length = %d, want truncation to 500", len(got))
	}
	if results[0]["relevancia"] != "87%" {
		t.Errorf("relevancia = %v", results[0]["relevancia"])
	}
}

func TestExecuteSearchFailure(t *testing.T) {
	searcher := stubSearcher{err: errors.New("connection refused")}
	registry := newTestRegistry(t, searcher, stubSaver{})
	exec := NewExecutor(registry, log.NewNop())

	result := exec.Execute(context.Background(), "searchDocuments",
		map[string]any{"query": "x"}, uuid.New())
	if result.Success {
		t.Fatal("failed retrieval reported success")
	}
	if result.Error != "Error al buscar documentos" {
		t.Errorf("Error = %q", result.Error)
	}
	if !strings.Contains(result.Details, "connection refused") {
		t.Errorf("Details = %q", result.Details)
	}
}

func TestExecuteSave(t *testing.T) {
	id := uuid.New()
	saver := stubSaver{saved: &store.SavedData{ID: id, DataType: "nota"}}
	registry := newTestRegistry(t, stubSearcher{}, saver)
	exec := NewExecutor(registry, log.NewNop())

	result := exec.Execute(context.Background(), "saveData",
		map[string]any{"type": "nota", "data": "comprar pan"}, uuid.New())
	if !result.Success {
		t.Fatalf("save failed: %+v", result)
	}
	payload := result.Payload.(map[string]any)
	if payload["id"] != id.String() {
		t.Errorf("payload id = %v", payload["id"])
	}
}

func TestExecuteSaveFailure(t *testing.T) {
	saver := stubSaver{err: errors.New("deadlock detected")}
	registry := newTestRegistry(t, stubSearcher{}, saver)
	exec := NewExecutor(registry, log.NewNop())

	result := exec.Execute(context.Background(), "saveData",
		map[string]any{"type": "nota", "data": "x"}, uuid.New())
	if result.Success {
		t.Fatal("failed persistence reported success")
	}
	if result.Error != "Error al guardar los datos" {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	panicTool := &Tool{
		Name:        "panics",
		Description: "always panics",
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(ctx context.Context, args map[string]any, userID uuid.UUID) Result {
			panic("boom")
		},
	}
	registry, err := NewRegistry(panicTool)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	exec := NewExecutor(registry, log.NewNop())

	result := exec.Execute(context.Background(), "panics", nil, uuid.New())
	if result.Success {
		t.Fatal("panicking handler reported success")
	}
	if !strings.Contains(result.Details, "boom") {
		t.Errorf("Details = %q, want panic message", result.Details)
	}
}
