package port

import (
	"context"

	"kbsearch/internal/domain"
)

// Searcher finds articles semantically close to a query.
type Searcher interface {
	// Search returns up to poolSize articles scoring at or above the relevance
	// threshold, highest score first. An empty result is not an error.
	Search(ctx context.Context, query string, limit, poolSize int) ([]domain.ScoredArticle, error)
}
