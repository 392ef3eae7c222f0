package search

import (
	"context"
	"fmt"

	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/logger"
	"github.com/knosphere/backend/pkg/rerank"
	"github.com/knosphere/backend/pkg/store"
)

const (
	defaultTopK      = 10
	defaultFinalK    = 3
	defaultThreshold = 0.3
)

// Searcher runs the hybrid retrieval pipeline: embed the query, fetch coarse
// candidates by vector similarity scoped to the principal's visibility, then
// rerank and truncate. The visibility filter lives inside the similarity
// query itself, so inaccessible documents never enter the candidate set.
type Searcher struct {
	store    store.DocumentStore
	ai       ai.Client
	reranker rerank.Provider
}

// Params configures a Searcher. Reranker may be nil, in which case
// candidates keep their similarity order.
type Params struct {
	Store    store.DocumentStore
	AI       ai.Client
	Reranker rerank.Provider
}

// NewSearcher creates a retrieval pipeline from its collaborators.
func NewSearcher(params Params) (*Searcher, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("search: missing document store")
	}
	if params.AI == nil {
		return nil, fmt.Errorf("search: missing AI client")
	}
	if params.Reranker == nil {
		params.Reranker = rerank.NewNoopProvider()
	}
	return &Searcher{
		store:    params.Store,
		ai:       params.AI,
		reranker: params.Reranker,
	}, nil
}

// Search retrieves up to finalK documents relevant to query that principal is
// allowed to read. An embedding failure fails the call; a rerank failure
// degrades to similarity order. An empty candidate set returns an empty
// result with no error.
func (s *Searcher) Search(
	ctx context.Context,
	query string,
	principal string,
	topK int,
	finalK int,
	threshold float64,
) ([]common.ScoredDocument, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	if finalK <= 0 {
		finalK = defaultFinalK
	}
	if finalK > topK {
		finalK = topK
	}
	if threshold <= 0 {
		threshold = defaultThreshold
	}

	vector, err := s.ai.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := s.store.SearchBySimilarity(ctx, vector, principal, topK, threshold)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	if len(candidates) == 0 {
		return []common.ScoredDocument{}, nil
	}

	ranked := s.rerankCandidates(ctx, query, candidates, finalK)
	if len(ranked) > finalK {
		ranked = ranked[:finalK]
	}
	return ranked, nil
}

// rerankCandidates reorders candidates by rerank score. Candidates arrive in
// similarity order; that order is the fallback whenever the rerank provider
// fails or returns nothing, so a rerank outage degrades quality but never
// the call. Similarity and rerank scores are never mixed in one result list.
func (s *Searcher) rerankCandidates(
	ctx context.Context,
	query string,
	candidates []common.ScoredDocument,
	topN int,
) []common.ScoredDocument {
	contents := make([]string, len(candidates))
	for i, c := range candidates {
		contents[i] = c.Content
	}

	results, err := s.reranker.Rerank(ctx, query, contents, topN)
	if err != nil {
		logger.Warn("rerank failed, falling back to similarity order", "error", err)
		return candidates
	}
	if len(results) == 0 {
		return candidates
	}

	ranked := make([]common.ScoredDocument, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			logger.Warn("rerank returned out-of-range index, falling back to similarity order", "index", r.Index)
			return candidates
		}
		doc := candidates[r.Index]
		doc.Score = r.Score
		ranked = append(ranked, doc)
	}
	return ranked
}
