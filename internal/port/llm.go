package port

import (
	"context"

	"kbsearch/internal/domain"
)

// GenerateOptions are the sampling knobs passed with a generation request.
type GenerateOptions struct {
	Temperature float64
	TopP        float64
	NumCtx      int
	MaxTokens   int
}

// LLM represents a language model for text generation.
type LLM interface {
	// Generate returns the model's plain-text completion of prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// Reranker reorders a candidate pool for a query.
// Implementations never fail: when they cannot improve on the pool they
// return it in its original order, truncated to limit.
type Reranker interface {
	Rerank(ctx context.Context, query string, pool []domain.ScoredArticle, limit int) []domain.ScoredArticle

	// Name identifies the strategy for logs and diagnostics.
	Name() string
}
