package retriever

import (
	"context"
	"fmt"

	"kbsearch/internal/adapter/vectorindex"
	"kbsearch/internal/domain"
)

// SemanticSearcher encodes a query, searches the current index generation and
// drops results below the relevance threshold.
type SemanticSearcher struct {
	embedder  Embedder
	index     *vectorindex.Index
	threshold float64
}

// Embedder is the subset of port.Embedder the searcher needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

func NewSemanticSearcher(embedder Embedder, index *vectorindex.Index, threshold float64) *SemanticSearcher {
	return &SemanticSearcher{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
	}
}

// Search returns up to poolSize articles scoring at least the threshold.
// A poolSize below limit is raised to limit.
func (s *SemanticSearcher) Search(ctx context.Context, query string, limit, poolSize int) ([]domain.ScoredArticle, error) {
	if limit <= 0 {
		return nil, nil
	}
	if poolSize < limit {
		poolSize = limit
	}

	// One generation for the whole call.
	gen := s.index.Current()
	if gen.Len() == 0 {
		return nil, nil
	}

	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding returned empty result: %w", domain.ErrEncodingFailure)
	}

	results, err := gen.Search(embeddings[0], poolSize)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	filtered := results[:0]
	for _, r := range results {
		if r.Score >= s.threshold {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil, nil
	}
	return filtered, nil
}
