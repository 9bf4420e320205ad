package cli

import (
	"context"
	"fmt"
	"log/slog"

	"kbsearch/config"
	"kbsearch/internal/adapter/cache"
	"kbsearch/internal/adapter/embedding"
	"kbsearch/internal/adapter/llm"
	"kbsearch/internal/adapter/retriever"
	"kbsearch/internal/adapter/store"
	"kbsearch/internal/adapter/vectorindex"
	"kbsearch/internal/port"
	"kbsearch/internal/usecase"
)

// engine is everything one command needs, opened from config.
type engine struct {
	store     store.Store
	embedder  port.Embedder
	index     *vectorindex.Index
	migration *store.MigrationResult

	sync     *usecase.SyncUseCase
	retrieve *usecase.RetrieveUseCase
	answer   *usecase.AnswerUseCase
}

func openEngine(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (*engine, error) {
	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	st, err := store.Open(cfg.Store.Driver, cfg.StoreDBPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	migration, err := st.Prepare(ctx, store.EmbeddingSpec{
		Model:     embedder.ModelName(),
		Dimension: embedder.Dimension(),
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to check migration: %w", err)
	}
	if migration.ClearEmbeddings {
		logger.Warn("stored embeddings cleared", "reason", migration.Reason)
	}

	index := vectorindex.New()
	gen, err := usecase.LoadIndex(ctx, st, index)
	if err != nil {
		st.Close()
		return nil, err
	}
	logger.Debug("index loaded", "generation", gen.Number(), "articles", gen.Len())

	reranker, err := newReranker(cfg.Rerank, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	opts := usecase.RetrieveOptions{
		PoolSize:        cfg.Retrieve.PoolSize,
		SmallPoolBypass: cfg.Retrieve.SmallPoolBypass,
	}
	if cfg.Retrieve.CacheSize > 0 {
		opts.Cache = cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL)
		opts.Index = index
	}
	searcher := retriever.NewSemanticSearcher(embedder, index, cfg.Retrieve.RelevanceThreshold)
	retrieveUC := usecase.NewRetrieveUseCase(searcher, reranker, opts, logger)

	answerOpts := usecase.AnswerOptions{
		Limit:           cfg.Retrieve.Limit,
		ExcerptChars:    cfg.Answer.ExcerptChars,
		Suggestions:     cfg.Answer.Suggestions,
		FallbackMessage: cfg.Answer.FallbackMessage,
	}
	if cfg.Answer.Compose {
		composer, err := llm.New(cfg.Rerank)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create answer model: %w", err)
		}
		answerOpts.Composer = composer
		answerOpts.GenerateOptions = llm.Options(cfg.Rerank)
		answerOpts.ComposeTimeout = cfg.Rerank.Timeout
	}

	return &engine{
		store:     st,
		embedder:  embedder,
		index:     index,
		migration: migration,
		sync:      usecase.NewSyncUseCase(st, embedder, index, cfg.Embedding.BatchSize, logger),
		retrieve:  retrieveUC,
		answer:    usecase.NewAnswerUseCase(retrieveUC, st, answerOpts, logger),
	}, nil
}

// newReranker picks the model-backed strategy when reranking is enabled.
func newReranker(cfg config.RerankConfig, logger *slog.Logger) (port.Reranker, error) {
	if !cfg.Enabled {
		return retriever.NewSemanticOnly(), nil
	}
	model, err := llm.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank model: %w", err)
	}
	return retriever.NewModelBacked(model, llm.Options(cfg), cfg.Timeout, cfg.ExcerptChars, logger), nil
}

func (e *engine) Close() error {
	return e.store.Close()
}
