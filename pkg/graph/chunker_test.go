package graph

import (
	"strings"
	"testing"
)

func TestSplitContentOverlap(t *testing.T) {
	content := strings.Repeat("a", 2500)
	chunks := splitContent(content, 2000, 200)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0].Text) != 2000 {
		t.Errorf("first chunk length = %d, want 2000", len(chunks[0].Text))
	}
	if chunks[1].Start > 1800 {
		t.Errorf("second chunk starts at %d, want <= 1800", chunks[1].Start)
	}
	overlap := 2000 - chunks[1].Start
	if overlap < 150 || overlap > 250 {
		t.Errorf("overlap = %d, want ~200", overlap)
	}
}

func TestSplitContentPrefersParagraphBreak(t *testing.T) {
	first := strings.Repeat("a", 1500)
	second := strings.Repeat("b", 1500)
	content := first + "\n\n" + second

	chunks := splitContent(content, 2000, 200)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, "a") {
		t.Errorf("first chunk does not end at the paragraph boundary: ...%q", chunks[0].Text[len(chunks[0].Text)-5:])
	}
	if strings.Contains(chunks[0].Text, "b") {
		t.Error("first chunk crossed the paragraph boundary")
	}
}

func TestSplitContentShortInput(t *testing.T) {
	chunks := splitContent("short text", 2000, 200)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "short text" || chunks[0].Start != 0 {
		t.Errorf("unexpected chunk: %+v", chunks[0])
	}

	if got := splitContent("", 2000, 200); got != nil {
		t.Errorf("empty content should produce no chunks, got %v", got)
	}
}

func TestSplitContentMultibyte(t *testing.T) {
	content := strings.Repeat("人工智能", 700) // 2800 runes
	chunks := splitContent(content, 2000, 200)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for i, c := range chunks {
		if n := len([]rune(c.Text)); n > 2000 {
			t.Errorf("chunk %d has %d runes, want <= 2000", i, n)
		}
	}
}

func TestSnippetAround(t *testing.T) {
	text := strings.Repeat("x", 200) + "Alan Turing" + strings.Repeat("y", 200)
	snippet := snippetAround(text, "Alan Turing", 20)
	if !strings.Contains(snippet, "Alan Turing") {
		t.Errorf("snippet %q does not contain the entity name", snippet)
	}
	if len(snippet) > 60 {
		t.Errorf("snippet too long: %d chars", len(snippet))
	}

	// Name absent: fall back to the head of the text.
	head := snippetAround("some unrelated content here", "missing", 10)
	if head == "" {
		t.Error("expected non-empty fallback snippet")
	}
}
