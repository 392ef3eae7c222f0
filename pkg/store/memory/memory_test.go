package memory

import (
	"context"
	"testing"

	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/store"
)

func seedDocument(t *testing.T, s *Store, id, owner string, public bool, readACL []string) {
	t.Helper()
	err := s.CreateDocument(context.Background(), &common.Document{
		ID:       id,
		Title:    "doc " + id,
		Content:  "content of " + id,
		OwnerID:  owner,
		IsPublic: public,
		ReadACL:  readACL,
	})
	if err != nil {
		t.Fatalf("seed document %s: %v", id, err)
	}
}

func TestSaveExtractionDedup(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedDocument(t, s, "doc-1", "alice", false, nil)
	seedDocument(t, s, "doc-2", "alice", false, nil)

	batch := func(docID string, freq int, conf float64) store.ExtractionBatch {
		return store.ExtractionBatch{
			DocumentID: docID,
			OwnerID:    "alice",
			Entities: []store.EntityObservation{
				{Name: "Machine Learning", Type: common.EntityTypeConcept, Description: "a field of AI", Frequency: freq, Confidence: conf},
			},
		}
	}

	if _, _, err := s.SaveExtraction(ctx, batch("doc-1", 2, 0.8)); err != nil {
		t.Fatalf("first extraction: %v", err)
	}
	// Same normalized name with different casing must merge, not duplicate.
	if _, _, err := s.SaveExtraction(ctx, store.ExtractionBatch{
		DocumentID: "doc-2",
		OwnerID:    "alice",
		Entities: []store.EntityObservation{
			{Name: "machine learning", Type: common.EntityTypeConcept, Description: "", Frequency: 3, Confidence: 0.5},
		},
	}); err != nil {
		t.Fatalf("second extraction: %v", err)
	}

	if got := s.CountEntities("alice"); got != 1 {
		t.Fatalf("entity count = %d, want 1", got)
	}

	entities, err := s.FindEntitiesByName(ctx, "alice", []string{"machine"}, 10)
	if err != nil {
		t.Fatalf("find entities: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("found %d entities, want 1", len(entities))
	}
	e := entities[0]
	if e.Frequency != 5 {
		t.Errorf("frequency = %d, want sum 5", e.Frequency)
	}
	if e.Confidence != 0.8 {
		t.Errorf("confidence = %v, want max 0.8", e.Confidence)
	}
	if e.Description != "a field of AI" {
		t.Errorf("empty description must not overwrite, got %q", e.Description)
	}
	if len(e.SourceDocIDs) != 2 {
		t.Errorf("source doc ids = %v, want both documents", e.SourceDocIDs)
	}
}

func TestSaveExtractionIdempotentRerun(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedDocument(t, s, "doc-1", "alice", false, nil)

	batch := store.ExtractionBatch{
		DocumentID: "doc-1",
		OwnerID:    "alice",
		Entities: []store.EntityObservation{
			{Name: "Alice Zhang", Type: common.EntityTypePerson, Frequency: 1, Confidence: 0.9},
			{Name: "Acme Corp", Type: common.EntityTypeOrganization, Frequency: 1, Confidence: 0.9},
		},
		Relations: []store.RelationObservation{
			{Source: "Alice Zhang", Target: "Acme Corp", Relation: "works_at", Confidence: 0.7},
		},
	}

	for i := 0; i < 2; i++ {
		if _, _, err := s.SaveExtraction(ctx, batch); err != nil {
			t.Fatalf("extraction run %d: %v", i+1, err)
		}
	}

	if got := s.CountEntities("alice"); got != 2 {
		t.Errorf("entity count after rerun = %d, want 2", got)
	}
	if got := s.CountEdges("alice"); got != 1 {
		t.Errorf("edge count after rerun = %d, want 1", got)
	}

	doc, err := s.GetDocument(ctx, "doc-1", "alice")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if !doc.GraphExtracted || doc.ExtractedAt == nil {
		t.Errorf("document not marked extracted: %+v", doc)
	}
}

func TestSaveExtractionUnknownRelationEndpointSkipped(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedDocument(t, s, "doc-1", "alice", false, nil)

	_, relationsSaved, err := s.SaveExtraction(ctx, store.ExtractionBatch{
		DocumentID: "doc-1",
		OwnerID:    "alice",
		Entities: []store.EntityObservation{
			{Name: "Known Entity", Type: common.EntityTypeConcept, Frequency: 1, Confidence: 0.9},
		},
		Relations: []store.RelationObservation{
			{Source: "Known Entity", Target: "Phantom", Relation: "related_to", Confidence: 0.5},
		},
	})
	if err != nil {
		t.Fatalf("extraction: %v", err)
	}
	if relationsSaved != 0 {
		t.Errorf("relationsSaved = %d, want 0", relationsSaved)
	}
	if got := s.CountEdges("alice"); got != 0 {
		t.Errorf("edge count = %d, want 0", got)
	}
}

func TestSearchBySimilarityVisibility(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	docs := []struct {
		id      string
		owner   string
		public  bool
		readACL []string
	}{
		{id: "own", owner: "alice"},
		{id: "pub", owner: "bob", public: true},
		{id: "shared", owner: "bob", readACL: []string{"alice"}},
		{id: "secret", owner: "bob"},
	}
	for _, d := range docs {
		seedDocument(t, s, d.id, d.owner, d.public, d.readACL)
		// Identical embeddings: the invisible document scores just as
		// high as the visible ones and must still never be returned.
		if err := s.UpdateDocumentEmbedding(ctx, d.id, []float32{1, 0, 0}); err != nil {
			t.Fatalf("embed %s: %v", d.id, err)
		}
	}

	results, err := s.SearchBySimilarity(ctx, []float32{1, 0, 0}, "alice", 10, 0.1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	got := make(map[string]bool, len(results))
	for _, r := range results {
		got[r.ID] = true
	}
	for _, want := range []string{"own", "pub", "shared"} {
		if !got[want] {
			t.Errorf("visible document %s missing from results", want)
		}
	}
	if got["secret"] {
		t.Errorf("inaccessible document returned by search")
	}
}

func TestSearchBySimilarityThresholdAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	seedDocument(t, s, "close", "alice", false, nil)
	seedDocument(t, s, "far", "alice", false, nil)
	seedDocument(t, s, "unembedded", "alice", false, nil)
	if err := s.UpdateDocumentEmbedding(ctx, "close", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateDocumentEmbedding(ctx, "far", []float32{0, 1, 0}); err != nil {
		t.Fatal(err)
	}

	results, err := s.SearchBySimilarity(ctx, []float32{1, 0, 0}, "alice", 10, 0.5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "close" {
		t.Fatalf("results = %+v, want only close", results)
	}
}

func TestGetDocumentVisibility(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seedDocument(t, s, "secret", "bob", false, nil)

	if _, err := s.GetDocument(ctx, "secret", "alice"); err != store.ErrNotFound {
		t.Errorf("foreign private document: err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetDocument(ctx, "missing", "alice"); err != store.ErrNotFound {
		t.Errorf("missing document: err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetDocument(ctx, "secret", "bob"); err != nil {
		t.Errorf("owner read: unexpected err %v", err)
	}
}
