package usecase

import (
	"context"
	"log/slog"
	"strings"

	"kbsearch/internal/adapter/cache"
	"kbsearch/internal/adapter/retriever"
	"kbsearch/internal/adapter/vectorindex"
	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

// RetrieveOptions tunes the two-stage retrieval.
type RetrieveOptions struct {
	PoolSize        int // minimum candidate pool handed to the reranker
	SmallPoolBypass int // pools of at most this many skip the reranker

	// Cache is optional. Entries are tagged with Index's generation number.
	Cache *cache.QueryCache
	Index *vectorindex.Index
}

// RetrieveUseCase runs semantic search and then reranks the pool.
type RetrieveUseCase struct {
	searcher port.Searcher
	reranker port.Reranker
	opts     RetrieveOptions
	logger   *slog.Logger
}

// NewRetrieveUseCase creates a new retrieve use case. A nil reranker keeps the
// semantic order.
func NewRetrieveUseCase(
	searcher port.Searcher,
	reranker port.Reranker,
	opts RetrieveOptions,
	logger *slog.Logger,
) *RetrieveUseCase {
	if reranker == nil {
		reranker = retriever.NewSemanticOnly()
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	if opts.SmallPoolBypass < 0 {
		opts.SmallPoolBypass = 0
	}
	if opts.Index == nil {
		opts.Cache = nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveUseCase{
		searcher: searcher,
		reranker: reranker,
		opts:     opts,
		logger:   logger,
	}
}

// Retrieve returns at most limit articles for query. Reranking problems never
// surface here; only search errors do.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, limit int) ([]domain.ScoredArticle, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if limit <= 0 {
		return nil, nil
	}

	mode := u.reranker.Name()
	gen, cached := u.cached(query, limit, mode)
	if cached != nil {
		return cached, nil
	}

	pool, err := u.searcher.Search(ctx, query, limit, max(u.opts.PoolSize, limit))
	if err != nil {
		return nil, err
	}

	var results []domain.ScoredArticle
	if len(pool) <= u.opts.SmallPoolBypass {
		results = truncate(pool, limit)
	} else {
		results = u.reranker.Rerank(ctx, query, pool, limit)
	}

	u.logger.Debug("retrieve",
		"query", query,
		"pool", len(pool),
		"results", len(results),
		"reranker", mode)

	u.store(query, limit, mode, gen, results)
	return results, nil
}

// RetrieveWithoutRerank returns the semantic ranking only.
func (u *RetrieveUseCase) RetrieveWithoutRerank(ctx context.Context, query string, limit int) ([]domain.ScoredArticle, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	return u.searcher.Search(ctx, query, limit, limit)
}

// Reranker returns the strategy in use.
func (u *RetrieveUseCase) Reranker() port.Reranker {
	return u.reranker
}

func (u *RetrieveUseCase) cached(query string, limit int, mode string) (uint64, []domain.ScoredArticle) {
	if u.opts.Cache == nil {
		return 0, nil
	}
	gen := u.opts.Index.Current().Number()
	if results, ok := u.opts.Cache.Get(query, limit, mode, gen); ok {
		if results == nil {
			results = []domain.ScoredArticle{}
		}
		return gen, results
	}
	return gen, nil
}

func (u *RetrieveUseCase) store(query string, limit int, mode string, gen uint64, results []domain.ScoredArticle) {
	if u.opts.Cache == nil {
		return
	}
	u.opts.Cache.Put(query, limit, mode, gen, results)
}

func truncate(results []domain.ScoredArticle, limit int) []domain.ScoredArticle {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}

// ArticleResult is a simplified result for CLI output.
type ArticleResult struct {
	ID    string  `json:"article_id"`
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Score float64 `json:"score"`
	Text  string  `json:"content"`
}

// ToResults flattens scored articles for printing.
func ToResults(scored []domain.ScoredArticle) []ArticleResult {
	out := make([]ArticleResult, len(scored))
	for i, s := range scored {
		out[i] = ArticleResult{
			ID:    s.Article.ID,
			Title: s.Article.Title,
			URL:   s.Article.URL,
			Score: s.Score,
			Text:  s.Article.Content,
		}
	}
	return out
}
