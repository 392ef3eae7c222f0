package rerank

import "context"

// NoopProvider keeps the caller's order. It stands in when no rerank backend
// is configured, so the retrieval pipeline has one code path either way.
type NoopProvider struct{}

// NewNoopProvider creates a pass-through reranker.
func NewNoopProvider() *NoopProvider {
	return &NoopProvider{}
}

// Rerank returns the first topN documents in their original order. Scores
// decrease linearly with position so downstream ordering stays stable.
func (p *NoopProvider) Rerank(_ context.Context, _ string, documents []string, topN int) ([]Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}
	results := make([]Result, 0, topN)
	for i := 0; i < topN; i++ {
		results = append(results, Result{Index: i, Score: 1 - float64(i)/float64(len(documents))})
	}
	return results, nil
}
