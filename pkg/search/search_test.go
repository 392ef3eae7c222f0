package search

import (
	"context"
	"errors"
	"testing"

	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/rerank"
	"github.com/knosphere/backend/pkg/store/memory"
)

type stubAI struct {
	ai.Client
	embedding []float32
	embedErr  error
}

func (s *stubAI) GenerateEmbedding(_ context.Context, _ []byte) ([]float32, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	return s.embedding, nil
}

type failingReranker struct{}

func (failingReranker) Rerank(_ context.Context, _ string, _ []string, _ int) ([]rerank.Result, error) {
	return nil, errors.New("rerank backend unavailable")
}

type reversingReranker struct{}

func (reversingReranker) Rerank(_ context.Context, _ string, documents []string, topN int) ([]rerank.Result, error) {
	if topN > len(documents) {
		topN = len(documents)
	}
	results := make([]rerank.Result, 0, topN)
	for i := 0; i < topN; i++ {
		idx := len(documents) - 1 - i
		results = append(results, rerank.Result{Index: idx, Score: float64(topN - i)})
	}
	return results, nil
}

func seedDocuments(t *testing.T, st *memory.Store) {
	t.Helper()
	docs := []*common.Document{
		{ID: "own", Title: "Own", Content: "owned document", OwnerID: "alice", Embedding: []float32{1, 0}},
		{ID: "pub", Title: "Public", Content: "public document", OwnerID: "bob", IsPublic: true, Embedding: []float32{0.9, 0.1}},
		{ID: "shared", Title: "Shared", Content: "shared document", OwnerID: "bob", ReadACL: []string{"alice"}, Embedding: []float32{0.8, 0.2}},
		{ID: "secret", Title: "Secret", Content: "secret document", OwnerID: "bob", Embedding: []float32{1, 0}},
	}
	for _, doc := range docs {
		if err := st.CreateDocument(context.Background(), doc); err != nil {
			t.Fatalf("seed %s: %v", doc.ID, err)
		}
	}
}

func TestSearchVisibility(t *testing.T) {
	st := memory.NewStore()
	seedDocuments(t, st)

	s, err := NewSearcher(Params{Store: st, AI: &stubAI{embedding: []float32{1, 0}}})
	if err != nil {
		t.Fatalf("new searcher: %v", err)
	}

	results, err := s.Search(context.Background(), "documents", "alice", 10, 10, 0.3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, r := range results {
		if r.ID == "secret" {
			t.Fatal("inaccessible document leaked into results")
		}
	}
}

func TestSearchRerankDegradation(t *testing.T) {
	st := memory.NewStore()
	seedDocuments(t, st)

	s, err := NewSearcher(Params{
		Store:    st,
		AI:       &stubAI{embedding: []float32{1, 0}},
		Reranker: failingReranker{},
	})
	if err != nil {
		t.Fatalf("new searcher: %v", err)
	}

	results, err := s.Search(context.Background(), "documents", "alice", 10, 2, 0.3)
	if err != nil {
		t.Fatalf("search should not fail when rerank does: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	// Similarity order survives the failed rerank pass.
	if results[0].ID != "own" {
		t.Errorf("top result = %s, want own", results[0].ID)
	}
}

func TestSearchRerankReorders(t *testing.T) {
	st := memory.NewStore()
	seedDocuments(t, st)

	s, err := NewSearcher(Params{
		Store:    st,
		AI:       &stubAI{embedding: []float32{1, 0}},
		Reranker: reversingReranker{},
	})
	if err != nil {
		t.Fatalf("new searcher: %v", err)
	}

	results, err := s.Search(context.Background(), "documents", "alice", 10, 2, 0.3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "shared" {
		t.Errorf("top result = %s, want shared (rerank order)", results[0].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("rerank scores not descending: %v then %v", results[0].Score, results[1].Score)
	}
}

func TestSearchEmptyKnowledgeBase(t *testing.T) {
	s, err := NewSearcher(Params{Store: memory.NewStore(), AI: &stubAI{embedding: []float32{1, 0}}})
	if err != nil {
		t.Fatalf("new searcher: %v", err)
	}

	results, err := s.Search(context.Background(), "anything", "alice", 10, 3, 0.3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0", len(results))
	}
}

func TestSearchEmbeddingFailureIsFatal(t *testing.T) {
	s, err := NewSearcher(Params{Store: memory.NewStore(), AI: &stubAI{embedErr: errors.New("provider down")}})
	if err != nil {
		t.Fatalf("new searcher: %v", err)
	}

	if _, err := s.Search(context.Background(), "anything", "alice", 10, 3, 0.3); err == nil {
		t.Fatal("expected error when embedding fails")
	}
}
