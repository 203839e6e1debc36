package turn

import (
	"reflect"
	"testing"

	"github.com/ayudante-ai/ayudante/internal/log"
)

func TestAccumulatorFragmentedJSON(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		want      map[string]any
	}{
		{
			name:      "single fragment",
			fragments: []string{`{"query":"horarios"}`},
			want:      map[string]any{"query": "horarios"},
		},
		{
			name:      "byte-level fragments",
			fragments: []string{`{"que`, `ry":"hor`, `arios"`, `}`},
			want:      map[string]any{"query": "horarios"},
		},
		{
			name:      "valid only at final fragment",
			fragments: []string{`{"expression"`, `:`, `"2+2"`, `}`},
			want:      map[string]any{"expression": "2+2"},
		},
		{
			name:      "nested object",
			fragments: []string{`{"type":"nota","da`, `ta":"comprar pan"}`},
			want:      map[string]any{"type": "nota", "data": "comprar pan"},
		},
		{
			name:      "never valid yields empty object",
			fragments: []string{`{"query":`, `"unterminated`},
			want:      map[string]any{},
		},
		{
			name:      "no fragments yields empty object",
			fragments: nil,
			want:      map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := newAccumulator(log.NewNop())
			acc.Open("call_1", "searchDocuments")
			for _, f := range tt.fragments {
				acc.Feed(f)
			}
			call, ok := acc.Close()
			if !ok {
				t.Fatal("Close() returned no call")
			}
			if call.ID != "call_1" || call.Name != "searchDocuments" {
				t.Errorf("call = %+v", call)
			}
			if !reflect.DeepEqual(call.Args, tt.want) {
				t.Errorf("Args = %v, want %v", call.Args, tt.want)
			}
		})
	}
}

func TestAccumulatorRetainsLastGoodParse(t *testing.T) {
	acc := newAccumulator(log.NewNop())
	acc.Open("call_1", "calculate")
	acc.Feed(`{}`)
	// Later fragments make the buffer unparseable again.
	acc.Feed(`{"expr`)

	call, ok := acc.Close()
	if !ok {
		t.Fatal("Close() returned no call")
	}
	if !reflect.DeepEqual(call.Args, map[string]any{}) {
		t.Errorf("Args = %v, want last good parse", call.Args)
	}
}

func TestAccumulatorIgnoresNestedOpen(t *testing.T) {
	acc := newAccumulator(log.NewNop())
	acc.Open("call_1", "calculate")
	acc.Open("call_2", "saveData") // protocol violation, ignored
	acc.Feed(`{"expression":"2+2"}`)

	call, ok := acc.Close()
	if !ok {
		t.Fatal("Close() returned no call")
	}
	if call.ID != "call_1" {
		t.Errorf("ID = %q, want call_1", call.ID)
	}
}

func TestAccumulatorIgnoresOrphanSignals(t *testing.T) {
	acc := newAccumulator(log.NewNop())
	acc.Feed(`{"x":1}`) // no open call
	if _, ok := acc.Close(); ok {
		t.Error("Close() with no open call returned a call")
	}
}

func TestAccumulatorAbandon(t *testing.T) {
	acc := newAccumulator(log.NewNop())
	acc.Open("call_1", "calculate")
	acc.Abandon()
	if _, ok := acc.Close(); ok {
		t.Error("Close() after Abandon returned a call")
	}
}
