package ai

import "testing"

type flexTarget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestUnmarshalFlexible(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    flexTarget
		wantErr bool
	}{
		{
			name:  "standard json",
			input: `{"name": "test", "count": 3}`,
			want:  flexTarget{Name: "test", Count: 3},
		},
		{
			name:  "double encoded",
			input: `"{\"name\": \"test\", \"count\": 3}"`,
			want:  flexTarget{Name: "test", Count: 3},
		},
		{
			name:  "malformed repaired",
			input: `{name: "test", count: 3}`,
			want:  flexTarget{Name: "test", Count: 3},
		},
		{
			name:  "fenced block",
			input: "```json\n{\"name\": \"test\", \"count\": 3}\n```",
			want:  flexTarget{Name: "test", Count: 3},
		},
		{
			name:  "fenced block without language",
			input: "```\n{\"name\": \"test\", \"count\": 3}\n```",
			want:  flexTarget{Name: "test", Count: 3},
		},
		{
			name:  "duplicate leading brace",
			input: `{{"name": "test", "count": 3}`,
			want:  flexTarget{Name: "test", Count: 3},
		},
		{
			name:  "trailing comma repaired",
			input: `{"name": "test", "count": 3,}`,
			want:  flexTarget{Name: "test", Count: 3},
		},
		{
			name:    "not json at all",
			input:   `the model refused to answer`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got flexTarget
			err := UnmarshalFlexible(tt.input, &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestUnmarshalFlexibleArray(t *testing.T) {
	var got []flexTarget
	input := "```json\n[{\"name\": \"a\", \"count\": 1}, {\"name\": \"b\", \"count\": 2}]\n```"
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Name != "a" || got[1].Count != 2 {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestSchemaMap(t *testing.T) {
	m, err := SchemaMap(&flexTarget{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m["type"] != "object" {
		t.Errorf("schema type = %v, want object", m["type"])
	}
	props, ok := m["properties"].(map[string]any)
	if !ok {
		t.Fatalf("missing properties: %+v", m)
	}
	if _, ok := props["name"]; !ok {
		t.Errorf("schema missing name property")
	}
}
