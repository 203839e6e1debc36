package tools

import (
	"errors"
	"math"
	"testing"
)

func TestNormalizeExpression(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"15% de 1200", "(15/100)*1200"},
		{"15 por ciento de 1200", "(15/100)*1200"},
		{"raíz cuadrada de 144", "sqrt(144)"},
		{"raiz cuadrada de 9", "sqrt(9)"},
		{"2 elevado a 10", "2^10"},
		{"3,5 + 1", "3.5 + 1"},
		{"  2+2  ", "2+2"},
	}
	for _, tt := range tests {
		if got := normalizeExpression(tt.in); got != tt.want {
			t.Errorf("normalizeExpression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2+2", 4},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"2^10", 1024},
		{"2^3^2", 512}, // right associative
		{"-5 + 3", -2},
		{"-(2+3)", -5},
		{"sqrt(144)", 12},
		{"sqrt(2) * sqrt(2)", 2.0000000000000004},
		{"(15/100)*1200", 180},
		{"3.5 * 2", 7},
	}
	for _, tt := range tests {
		got, err := evaluate(tt.expr)
		if err != nil {
			t.Errorf("evaluate(%q) error: %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluateRejects(t *testing.T) {
	exprs := []string{
		"",
		"banana +",
		"2 +",
		"2 + * 3",
		"(2 + 3",
		"sqrt 4",
		"sqrt(-1)",
		"1/0",
		"2; drop table users",
		"os.exit(1)",
		"1e309 * 10", // "e" is not part of the grammar
	}
	for _, expr := range exprs {
		if _, err := evaluate(expr); !errors.Is(err, ErrInvalidExpression) {
			t.Errorf("evaluate(%q) = %v, want ErrInvalidExpression", expr, err)
		}
	}
}

func TestNormalizedScenarios(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"15% de 1200", 180},
		{"sqrt(144)", 12},
		{"raíz cuadrada de 81", 9},
		{"2 elevado a 8", 256},
	}
	for _, tt := range tests {
		got, err := evaluate(normalizeExpression(tt.in))
		if err != nil {
			t.Errorf("scenario %q error: %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("scenario %q = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{180, "180"},
		{2.5, "2.5"},
		{12, "12"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
