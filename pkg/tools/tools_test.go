package tools

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestEvalExpression(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"2+3", 5},
		{"2 + 3 * 4", 14},
		{"(2+3)*4", 20},
		{"10/4", 2.5},
		{"10 % 3", 1},
		{"2^10", 1024},
		{"2^3^2", 512}, // right associative
		{"-5 + 3", -2},
		{"-(2+3)", -5},
		{"3.14 * 2", 6.28},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evalExpression(tt.expr)
			if err != nil {
				t.Fatalf("eval %q: %v", tt.expr, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("eval %q = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvalExpressionErrors(t *testing.T) {
	exprs := []string{
		"",
		"2+",
		"(2+3",
		"1/0",
		"5 % 0",
		"2**3",
		"foo",
		"1;import os",
	}
	for _, expr := range exprs {
		if _, err := evalExpression(expr); err == nil {
			t.Errorf("eval %q: expected error", expr)
		}
	}
}

func TestCalculatorToolHandler(t *testing.T) {
	tool := NewCalculatorTool()

	result, err := tool.Handler(context.Background(), `{"expression": "6*7"}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result != "42" {
		t.Errorf("result = %q, want 42", result)
	}

	if _, err := tool.Handler(context.Background(), "not json"); err == nil {
		t.Error("expected error for malformed arguments")
	}
}

func TestCurrentTimeToolHandler(t *testing.T) {
	tool := NewCurrentTimeTool()

	result, err := tool.Handler(context.Background(), `{"timezone": "UTC"}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(result, "UTC") {
		t.Errorf("result %q missing timezone", result)
	}

	if _, err := tool.Handler(context.Background(), `{"timezone": "Nowhere/Invalid"}`); err == nil {
		t.Error("expected error for unknown timezone")
	}
}

func TestRegistryDeduplicates(t *testing.T) {
	r := NewRegistry()
	r.Register(NewCalculatorTool())
	r.Register(NewCalculatorTool())

	if got := len(r.Tools()); got != 1 {
		t.Errorf("registry has %d tools, want 1", got)
	}
}

func TestDefaultRegistry(t *testing.T) {
	names := make(map[string]bool)
	for _, tool := range DefaultRegistry().Tools() {
		if tool.Name == "" || tool.Description == "" || tool.Handler == nil {
			t.Errorf("tool %+v is incomplete", tool.Name)
		}
		if tool.Parameters == nil {
			t.Errorf("tool %s has no parameter schema", tool.Name)
		}
		names[tool.Name] = true
	}
	for _, want := range []string{"calculator", "current_time", "weather", "web_search", "web_fetch"} {
		if !names[want] {
			t.Errorf("missing built-in tool %s", want)
		}
	}
}
