package util

import "testing"

func TestNormalizeEntityName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercase fold", input: "OpenAI", want: "openai"},
		{name: "spaces to underscores", input: "Machine Learning", want: "machine_learning"},
		{name: "collapse runs", input: "  Deep   Learning  ", want: "deep_learning"},
		{name: "tabs and newlines", input: "graph\tneural\nnetworks", want: "graph_neural_networks"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeEntityName(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeEntityName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMustNewID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := MustNewID()
		if len(id) != 21 {
			t.Fatalf("unexpected id length: %d", len(id))
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
