package graph

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/store/memory"
)

// scriptedAI answers structured-output calls with canned JSON keyed by the
// schema name, counting calls per key.
type scriptedAI struct {
	ai.Client
	responses map[string]string
	errors    map[string]error
	calls     map[string]int
}

func newScriptedAI() *scriptedAI {
	return &scriptedAI{
		responses: make(map[string]string),
		errors:    make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (s *scriptedAI) GenerateCompletionWithFormat(
	_ context.Context,
	name string,
	_ string,
	_ string,
	out any,
	_ ...ai.GenerateOption,
) error {
	s.calls[name]++
	if err, ok := s.errors[name]; ok {
		return err
	}
	raw, ok := s.responses[name]
	if !ok {
		return errors.New("no scripted response for " + name)
	}
	return json.Unmarshal([]byte(raw), out)
}

func testDocument(content string) *common.Document {
	return &common.Document{
		ID:      "doc-1",
		Title:   "Test",
		Content: content,
		OwnerID: "alice",
	}
}

func longContent() string {
	return "Alan Turing worked at Bletchley Park on early computing machines. " +
		strings.Repeat("The history of computing spans many decades. ", 5)
}

func TestExtractRejectsShortContent(t *testing.T) {
	st := memory.NewStore()
	e, err := NewExtractor(Params{AI: newScriptedAI(), Store: st})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	if _, err := e.Extract(context.Background(), testDocument("too short")); err == nil {
		t.Fatal("expected error for short content")
	}
}

func TestExtractEntitiesAndRelations(t *testing.T) {
	st := memory.NewStore()
	doc := testDocument(longContent())
	if err := st.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	mock := newScriptedAI()
	mock.responses["entity_extraction"] = `{"entities": [
		{"name": "Alan Turing", "type": "PERSON", "description": "British mathematician", "confidence": 0.95},
		{"name": "Bletchley Park", "type": "LOCATION", "description": "Codebreaking site", "confidence": 0.9}
	]}`
	mock.responses["relation_extraction"] = `{"relations": [
		{"source": "Alan Turing", "target": "Bletchley Park", "relation": "worked_at", "description": "", "confidence": 0.9, "context": "worked at Bletchley Park"}
	]}`

	e, err := NewExtractor(Params{AI: mock, Store: st})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	result, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.EntitiesSaved != 2 {
		t.Errorf("entities saved = %d, want 2", result.EntitiesSaved)
	}
	if result.RelationsSaved != 1 {
		t.Errorf("relations saved = %d, want 1", result.RelationsSaved)
	}

	stored, err := st.GetDocument(context.Background(), doc.ID, "alice")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if !stored.GraphExtracted || stored.ExtractedAt == nil {
		t.Error("document not marked as extracted")
	}
}

func TestExtractDiscardsUnknownRelationEndpoints(t *testing.T) {
	st := memory.NewStore()
	doc := testDocument(longContent())
	if err := st.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	mock := newScriptedAI()
	mock.responses["entity_extraction"] = `{"entities": [
		{"name": "Alan Turing", "type": "PERSON", "description": "", "confidence": 0.9},
		{"name": "Bletchley Park", "type": "LOCATION", "description": "", "confidence": 0.9}
	]}`
	mock.responses["relation_extraction"] = `{"relations": [
		{"source": "Alan Turing", "target": "Enigma Machine", "relation": "broke", "confidence": 0.8, "context": ""},
		{"source": "Alan Turing", "target": "Bletchley Park", "relation": "worked_at", "confidence": 0.9, "context": ""}
	]}`

	e, err := NewExtractor(Params{AI: mock, Store: st})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	result, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.RelationsSaved != 1 {
		t.Errorf("relations saved = %d, want 1 (hallucinated endpoint discarded)", result.RelationsSaved)
	}
	if st.CountEdges("alice") != 1 {
		t.Errorf("edge count = %d, want 1", st.CountEdges("alice"))
	}
	for _, rel := range result.Relations {
		if rel.Target == "Enigma Machine" {
			t.Error("relation with unknown endpoint was kept")
		}
	}
}

func TestExtractSkipsUnparseableChunk(t *testing.T) {
	st := memory.NewStore()
	doc := testDocument(longContent())
	if err := st.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	mock := newScriptedAI()
	mock.errors["entity_extraction"] = errors.New("model returned garbage")

	e, err := NewExtractor(Params{AI: mock, Store: st})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	result, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("chunk failure must not fail the document: %v", err)
	}
	if result.EntitiesSaved != 0 || result.RelationsSaved != 0 {
		t.Errorf("got %d entities, %d relations, want 0/0", result.EntitiesSaved, result.RelationsSaved)
	}

	// The document is still marked so the job is not retried forever.
	stored, _ := st.GetDocument(context.Background(), doc.ID, "alice")
	if !stored.GraphExtracted {
		t.Error("document not marked as extracted")
	}
}

func TestExtractSkipsRelationsForSingleEntity(t *testing.T) {
	st := memory.NewStore()
	doc := testDocument(longContent())
	if err := st.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	mock := newScriptedAI()
	mock.responses["entity_extraction"] = `{"entities": [
		{"name": "Alan Turing", "type": "PERSON", "description": "", "confidence": 0.9}
	]}`

	e, err := NewExtractor(Params{AI: mock, Store: st})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	result, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if result.EntitiesSaved != 1 {
		t.Errorf("entities saved = %d, want 1", result.EntitiesSaved)
	}
	if got := mock.calls["relation_extraction"]; got != 0 {
		t.Errorf("relation extraction called %d times for a single entity, want 0", got)
	}
}

func TestExtractIdempotentRerun(t *testing.T) {
	st := memory.NewStore()
	doc := testDocument(longContent())
	if err := st.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	mock := newScriptedAI()
	mock.responses["entity_extraction"] = `{"entities": [
		{"name": "Alan Turing", "type": "PERSON", "description": "", "confidence": 0.9},
		{"name": "Bletchley Park", "type": "LOCATION", "description": "", "confidence": 0.9}
	]}`
	mock.responses["relation_extraction"] = `{"relations": [
		{"source": "Alan Turing", "target": "Bletchley Park", "relation": "worked_at", "confidence": 0.9, "context": ""}
	]}`

	e, err := NewExtractor(Params{AI: mock, Store: st})
	if err != nil {
		t.Fatalf("new extractor: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := e.Extract(context.Background(), doc); err != nil {
			t.Fatalf("extract run %d: %v", i+1, err)
		}
	}
	if st.CountEntities("alice") != 2 {
		t.Errorf("entity count = %d, want 2 after rerun", st.CountEntities("alice"))
	}
	if st.CountEdges("alice") != 1 {
		t.Errorf("edge count = %d, want 1 after rerun", st.CountEdges("alice"))
	}
}
