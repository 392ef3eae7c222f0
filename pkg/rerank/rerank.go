package rerank

import "context"

// Result is one reranked candidate: the index into the input slice and the
// provider's relevance score. Scores are provider-defined and only
// comparable within a single call.
type Result struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Provider scores candidate texts against a query and returns up to topN
// results ordered by descending relevance. Callers must treat failures as
// degradable: retrieval falls back to similarity order instead of
// propagating rerank errors.
type Provider interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error)
}
