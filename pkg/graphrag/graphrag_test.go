package graphrag

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/store"
	"github.com/knosphere/backend/pkg/store/memory"
)

type stubRetriever struct {
	docs []common.ScoredDocument
	err  error
}

func (s *stubRetriever) Search(
	_ context.Context, _ string, _ string, _ int, _ int, _ float64,
) ([]common.ScoredDocument, error) {
	return s.docs, s.err
}

type scriptedAI struct {
	ai.Client
	structured    string
	structuredErr error
	completion    string
	lastPrompt    string
}

func (s *scriptedAI) GenerateCompletionWithFormat(
	_ context.Context, _ string, _ string, _ string, out any, _ ...ai.GenerateOption,
) error {
	if s.structuredErr != nil {
		return s.structuredErr
	}
	return json.Unmarshal([]byte(s.structured), out)
}

func (s *scriptedAI) GenerateCompletion(_ context.Context, prompt string, _ ...ai.GenerateOption) (string, error) {
	s.lastPrompt = prompt
	return s.completion, nil
}

// seedGraph persists a three-entity chain turing -> bletchley -> enigma for
// owner alice and returns the backing store.
func seedGraph(t *testing.T) *memory.Store {
	t.Helper()
	st := memory.NewStore()
	ctx := context.Background()

	doc := &common.Document{ID: "doc-1", Title: "History", Content: "c", OwnerID: "alice"}
	if err := st.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}

	_, _, err := st.SaveExtraction(ctx, store.ExtractionBatch{
		DocumentID: "doc-1",
		OwnerID:    "alice",
		Entities: []store.EntityObservation{
			{Name: "Alan Turing", Type: common.EntityTypePerson, Frequency: 3, Confidence: 0.9},
			{Name: "Bletchley Park", Type: common.EntityTypeLocation, Frequency: 2, Confidence: 0.9},
			{Name: "Enigma", Type: common.EntityTypeProduct, Frequency: 1, Confidence: 0.8},
		},
		Relations: []store.RelationObservation{
			{Source: "Alan Turing", Target: "Bletchley Park", Relation: "worked_at", Confidence: 0.9},
			{Source: "Bletchley Park", Target: "Enigma", Relation: "decrypted", Confidence: 0.8},
		},
	})
	if err != nil {
		t.Fatalf("save extraction: %v", err)
	}
	return st
}

func baselineDocs() []common.ScoredDocument {
	return []common.ScoredDocument{
		{ID: "doc-1", Title: "History", Content: "Alan Turing worked at Bletchley Park.", Score: 0.9, OwnerID: "alice"},
	}
}

func TestQueryWithGraphAugmentation(t *testing.T) {
	mock := &scriptedAI{
		structured: `{"entities": ["Alan Turing", "Enigma"]}`,
		completion: "Turing broke Enigma at Bletchley Park.",
	}
	e, err := NewEngine(Params{
		Retriever: &stubRetriever{docs: baselineDocs()},
		AI:        mock,
		Store:     seedGraph(t),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	result, err := e.Query(context.Background(), "Who broke Enigma?", "alice")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Answer == "" {
		t.Error("expected non-empty answer")
	}
	if len(result.EntitiesFound) != 2 {
		t.Fatalf("entities found = %d, want 2", len(result.EntitiesFound))
	}
	// Turing and Enigma are connected through Bletchley Park, but Bletchley
	// Park was not looked up, so no path exists inside the subgraph.
	if len(result.PathsFound) != 0 {
		t.Errorf("paths found = %v, want none within the looked-up entities", result.PathsFound)
	}
	if !strings.Contains(mock.lastPrompt, "Alan Turing") {
		t.Error("fusion prompt missing entity context")
	}
}

func TestQueryPathDiscovery(t *testing.T) {
	mock := &scriptedAI{
		structured: `{"entities": ["Turing", "Bletchley", "Enigma"]}`,
		completion: "answer",
	}
	e, err := NewEngine(Params{
		Retriever: &stubRetriever{docs: baselineDocs()},
		AI:        mock,
		Store:     seedGraph(t),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	result, err := e.Query(context.Background(), "How are these connected?", "alice")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.EntitiesFound) != 3 {
		t.Fatalf("entities found = %d, want 3", len(result.EntitiesFound))
	}
	if len(result.PathsFound) == 0 {
		t.Fatal("expected at least one path between connected entities")
	}
	found := false
	for _, path := range result.PathsFound {
		if len(path) == 3 && path[0] == "Alan Turing" && path[2] == "Enigma" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Alan Turing -> Bletchley Park -> Enigma path, got %v", result.PathsFound)
	}
}

func TestQueryEmptyKeyEntitiesFallsBackToDocuments(t *testing.T) {
	mock := &scriptedAI{
		structured: `{"entities": []}`,
		completion: "document-grounded answer",
	}
	e, err := NewEngine(Params{
		Retriever: &stubRetriever{docs: baselineDocs()},
		AI:        mock,
		Store:     memory.NewStore(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	result, err := e.Query(context.Background(), "question", "alice")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.Answer != "document-grounded answer" {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(result.EntitiesFound) != 0 || len(result.PathsFound) != 0 {
		t.Error("expected no graph augmentation")
	}
	if strings.Contains(mock.lastPrompt, "Knowledge graph") {
		t.Error("fusion prompt used without graph context")
	}
}

func TestQueryKeyEntityFailureIsNonFatal(t *testing.T) {
	mock := &scriptedAI{
		structuredErr: errors.New("model unavailable"),
		completion:    "still answered",
	}
	e, err := NewEngine(Params{
		Retriever: &stubRetriever{docs: baselineDocs()},
		AI:        mock,
		Store:     memory.NewStore(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	result, err := e.Query(context.Background(), "question", "alice")
	if err != nil {
		t.Fatalf("query must survive key entity failure: %v", err)
	}
	if result.Answer != "still answered" {
		t.Errorf("answer = %q", result.Answer)
	}
}

func TestQueryRetrievalFailureIsFatal(t *testing.T) {
	e, err := NewEngine(Params{
		Retriever: &stubRetriever{err: errors.New("store down")},
		AI:        &scriptedAI{},
		Store:     memory.NewStore(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if _, err := e.Query(context.Background(), "question", "alice"); err == nil {
		t.Fatal("expected error when baseline retrieval fails")
	}
}

func TestFindPathsBounds(t *testing.T) {
	entities := []common.Entity{
		{ID: "a", Name: "A"}, {ID: "f", Name: "F"},
	}
	// Chain a-b-c-d-e-f is 5 edges, beyond the path length bound.
	chain := []common.GraphEdge{
		{SourceID: "a", TargetID: "b"},
		{SourceID: "b", TargetID: "c"},
		{SourceID: "c", TargetID: "d"},
		{SourceID: "d", TargetID: "e"},
		{SourceID: "e", TargetID: "f"},
	}
	if paths := findPaths(entities, chain); len(paths) != 0 {
		t.Errorf("got paths %v across a chain longer than the bound", paths)
	}

	short := []common.GraphEdge{
		{SourceID: "a", TargetID: "x"},
		{SourceID: "x", TargetID: "f"},
	}
	paths := findPaths(entities, short)
	if len(paths) != 1 || len(paths[0]) != 3 {
		t.Fatalf("got %v, want one path of 3 nodes", paths)
	}
}
