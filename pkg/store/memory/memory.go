package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/store"
)

const maxSnippetsPerEntity = 5

// Store is an in-memory store.Store with the same upsert and visibility
// semantics as the Postgres implementation. It backs tests and small
// single-process deployments.
type Store struct {
	mu        sync.RWMutex
	documents map[string]*common.Document
	entities  map[string]*common.Entity // keyed by owner + "\x00" + normalized name
	edges     map[string]*common.GraphEdge
	links     map[string]*common.EntityDocumentLink
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		documents: make(map[string]*common.Document),
		entities:  make(map[string]*common.Entity),
		edges:     make(map[string]*common.GraphEdge),
		links:     make(map[string]*common.EntityDocumentLink),
	}
}

func entityKey(owner, norm string) string {
	return owner + "\x00" + norm
}

func edgeKey(owner, source, target, relation string) string {
	return strings.Join([]string{owner, source, target, relation}, "\x00")
}

func visible(doc *common.Document, principal string) bool {
	if doc.OwnerID == principal || doc.IsPublic {
		return true
	}
	for _, p := range doc.ReadACL {
		if p == principal {
			return true
		}
	}
	return false
}

// CreateDocument stores a copy of doc.
func (s *Store) CreateDocument(ctx context.Context, doc *common.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.documents[cp.ID] = &cp
	return nil
}

// GetDocument returns a document when it is visible to principal.
// Invisible and missing documents are indistinguishable.
func (s *Store) GetDocument(ctx context.Context, id string, principal string) (*common.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok || !visible(doc, principal) {
		return nil, store.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

// UpdateDocumentEmbedding stores a computed embedding vector.
func (s *Store) UpdateDocumentEmbedding(ctx context.Context, id string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.Embedding = append([]float32(nil), embedding...)
	doc.UpdatedAt = time.Now()
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SearchBySimilarity ranks embedded documents visible to principal by
// cosine similarity, dropping anything at or below threshold. Ordering is
// stable for equal scores.
func (s *Store) SearchBySimilarity(
	ctx context.Context,
	vector []float32,
	principal string,
	topK int,
	threshold float64,
) ([]common.ScoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		doc   *common.Document
		score float64
	}
	candidates := make([]scored, 0)
	for _, doc := range s.documents {
		if doc.Embedding == nil || !visible(doc, principal) {
			continue
		}
		score := cosineSimilarity(vector, doc.Embedding)
		if score > threshold {
			candidates = append(candidates, scored{doc: doc, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].doc.ID < candidates[j].doc.ID
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]common.ScoredDocument, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, common.ScoredDocument{
			ID:       c.doc.ID,
			Title:    c.doc.Title,
			Content:  c.doc.Content,
			Score:    c.score,
			IsPublic: c.doc.IsPublic,
			OwnerID:  c.doc.OwnerID,
		})
	}
	return results, nil
}

// SaveExtraction applies one extraction batch atomically under the store
// lock, with the same merge rules as the Postgres implementation.
func (s *Store) SaveExtraction(ctx context.Context, batch store.ExtractionBatch) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[batch.DocumentID]
	if !ok || doc.OwnerID != batch.OwnerID {
		return 0, 0, store.ErrNotFound
	}

	idsByNorm := make(map[string]string, len(batch.Entities))
	entitiesSaved := 0

	for _, obs := range batch.Entities {
		norm := util.NormalizeEntityName(obs.Name)
		if norm == "" {
			continue
		}
		snippets := obs.Snippets
		if len(snippets) > maxSnippetsPerEntity {
			snippets = snippets[:maxSnippetsPerEntity]
		}

		key := entityKey(batch.OwnerID, norm)
		entity, exists := s.entities[key]
		if !exists {
			entity = &common.Entity{
				ID:             util.MustNewID(),
				Name:           obs.Name,
				NormalizedName: norm,
				Type:           obs.Type,
				Description:    obs.Description,
				Frequency:      obs.Frequency,
				Confidence:     obs.Confidence,
				OwnerID:        batch.OwnerID,
				SourceDocIDs:   []string{batch.DocumentID},
				Snippets:       append([]string(nil), snippets...),
				CreatedAt:      time.Now(),
				UpdatedAt:      time.Now(),
			}
			s.entities[key] = entity
		} else {
			entity.Frequency += obs.Frequency
			entity.Confidence = math.Max(entity.Confidence, obs.Confidence)
			if obs.Description != "" {
				entity.Description = obs.Description
			}
			hasDoc := false
			for _, id := range entity.SourceDocIDs {
				if id == batch.DocumentID {
					hasDoc = true
					break
				}
			}
			if !hasDoc {
				entity.SourceDocIDs = append(entity.SourceDocIDs, batch.DocumentID)
			}
			entity.Snippets = append(entity.Snippets, snippets...)
			if len(entity.Snippets) > maxSnippetsPerEntity {
				entity.Snippets = entity.Snippets[:maxSnippetsPerEntity]
			}
			entity.UpdatedAt = time.Now()
		}
		idsByNorm[norm] = entity.ID
		entitiesSaved++

		linkKey := entity.ID + "\x00" + batch.DocumentID
		link, exists := s.links[linkKey]
		if !exists {
			s.links[linkKey] = &common.EntityDocumentLink{
				EntityID:     entity.ID,
				DocumentID:   batch.DocumentID,
				Frequency:    obs.Frequency,
				Significance: obs.Confidence,
				Occurrences:  append([]string(nil), snippets...),
			}
		} else {
			link.Frequency = obs.Frequency
			link.Significance = math.Max(link.Significance, obs.Confidence)
			link.Occurrences = append([]string(nil), snippets...)
		}
	}

	relationsSaved := 0
	for _, rel := range batch.Relations {
		sourceID, okSource := idsByNorm[util.NormalizeEntityName(rel.Source)]
		targetID, okTarget := idsByNorm[util.NormalizeEntityName(rel.Target)]
		if !okSource || !okTarget {
			continue
		}

		key := edgeKey(batch.OwnerID, sourceID, targetID, rel.Relation)
		edge, exists := s.edges[key]
		if !exists {
			s.edges[key] = &common.GraphEdge{
				ID:          util.MustNewID(),
				SourceID:    sourceID,
				TargetID:    targetID,
				Relation:    rel.Relation,
				Description: rel.Description,
				Weight:      rel.Confidence,
				Confidence:  rel.Confidence,
				SourceDocID: batch.DocumentID,
				Context:     rel.Context,
				OwnerID:     batch.OwnerID,
				CreatedAt:   time.Now(),
			}
		} else {
			edge.Weight = math.Max(edge.Weight, rel.Confidence)
			edge.Confidence = math.Max(edge.Confidence, rel.Confidence)
			if rel.Description != "" {
				edge.Description = rel.Description
			}
			edge.Context = rel.Context
		}
		relationsSaved++
	}

	now := time.Now()
	doc.GraphExtracted = true
	doc.ExtractedAt = &now
	doc.UpdatedAt = now

	return entitiesSaved, relationsSaved, nil
}

// FindEntitiesByName returns entities of principal whose display name
// contains any fragment, case-insensitively, most frequent first.
func (s *Store) FindEntitiesByName(
	ctx context.Context,
	principal string,
	names []string,
	limit int,
) ([]common.Entity, error) {
	if len(names) == 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]common.Entity, 0)
	for _, entity := range s.entities {
		if entity.OwnerID != principal {
			continue
		}
		lower := strings.ToLower(entity.Name)
		for _, pat := range names {
			if pat != "" && strings.Contains(lower, strings.ToLower(pat)) {
				matches = append(matches, *entity)
				break
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Frequency != matches[j].Frequency {
			return matches[i].Frequency > matches[j].Frequency
		}
		return matches[i].Name < matches[j].Name
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// GetEdgesAmong returns all edges of principal with both endpoints in
// entityIDs.
func (s *Store) GetEdgesAmong(
	ctx context.Context,
	principal string,
	entityIDs []string,
) ([]common.GraphEdge, error) {
	if len(entityIDs) < 2 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idSet := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		idSet[id] = struct{}{}
	}

	edges := make([]common.GraphEdge, 0)
	for _, edge := range s.edges {
		if edge.OwnerID != principal {
			continue
		}
		if _, ok := idSet[edge.SourceID]; !ok {
			continue
		}
		if _, ok := idSet[edge.TargetID]; !ok {
			continue
		}
		edges = append(edges, *edge)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

// GetEntityDocumentLink exposes link rows for tests.
func (s *Store) GetEntityDocumentLink(entityID, documentID string) (*common.EntityDocumentLink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[entityID+"\x00"+documentID]
	if !ok {
		return nil, false
	}
	cp := *link
	return &cp, true
}

// CountEntities returns the number of entity rows for an owner.
func (s *Store) CountEntities(owner string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entities {
		if e.OwnerID == owner {
			n++
		}
	}
	return n
}

// CountEdges returns the number of edge rows for an owner.
func (s *Store) CountEdges(owner string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.edges {
		if e.OwnerID == owner {
			n++
		}
	}
	return n
}
