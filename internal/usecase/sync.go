package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kbsearch/internal/adapter/vectorindex"
	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

// ProgressFunc is called after each article has been embedded or skipped.
type ProgressFunc func(done, total int)

// SyncUseCase upserts incoming articles, embeds them and rebuilds the index.
type SyncUseCase struct {
	store     port.ArticleStore
	embedder  port.Embedder
	index     *vectorindex.Index
	batchSize int
	logger    *slog.Logger
}

// NewSyncUseCase creates a new sync use case.
func NewSyncUseCase(
	store port.ArticleStore,
	embedder port.Embedder,
	index *vectorindex.Index,
	batchSize int,
	logger *slog.Logger,
) *SyncUseCase {
	if batchSize <= 0 {
		batchSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncUseCase{
		store:     store,
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Sync persists articles, recomputes their embeddings and publishes a new
// index generation. Failures on individual articles are logged and counted
// in the result; a dimension mismatch aborts the run.
func (u *SyncUseCase) Sync(ctx context.Context, articles []domain.Article, progress ProgressFunc) (*domain.SyncResult, error) {
	result := &domain.SyncResult{Received: len(articles)}
	unique := dedupe(articles)

	var synced []domain.Article
	for _, a := range unique {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := u.store.Upsert(ctx, a); err != nil {
			u.skip(result, a.ID, "upsert", err)
			continue
		}
		synced = append(synced, a)
	}
	result.Synced = len(synced)

	done := len(unique) - len(synced)
	report := func() {
		if progress != nil {
			progress(done, len(unique))
		}
	}
	report()

	for start := 0; start < len(synced); start += u.batchSize {
		end := min(start+u.batchSize, len(synced))
		batch := synced[start:end]

		vectors, err := u.embedBatch(ctx, batch)
		if err != nil {
			return result, err
		}

		for i, a := range batch {
			done++
			if vectors[i] == nil {
				u.skip(result, a.ID, "encode", domain.ErrEncodingFailure)
				report()
				continue
			}
			if err := u.store.SetEmbedding(ctx, a.ID, vectors[i]); err != nil {
				if errors.Is(err, domain.ErrDimensionMismatch) {
					return result, fmt.Errorf("store embedding for %s: %w", a.ID, err)
				}
				u.skip(result, a.ID, "store embedding", err)
				report()
				continue
			}
			result.Embedded++
			report()
		}
	}

	gen, err := u.Rebuild(ctx)
	if err != nil {
		return result, err
	}
	result.Generation = gen.Number()

	u.logger.Info("sync complete",
		"received", result.Received,
		"synced", result.Synced,
		"embedded", result.Embedded,
		"skipped", result.Skipped,
		"generation", result.Generation)
	return result, nil
}

// Rebuild publishes a new generation from every stored embedding.
func (u *SyncUseCase) Rebuild(ctx context.Context) (*vectorindex.Generation, error) {
	return LoadIndex(ctx, u.store, u.index)
}

// embedBatch encodes a batch in one call. When that call fails the batch is
// retried one article at a time so a single bad text only costs itself.
// Entries left nil failed to encode.
func (u *SyncUseCase) embedBatch(ctx context.Context, batch []domain.Article) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, a := range batch {
		texts[i] = a.EmbeddingText()
	}

	vectors, err := u.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) == len(texts) {
		if err := u.checkDimensions(batch, vectors); err != nil {
			return nil, err
		}
		return vectors, nil
	}
	if err := fatal(ctx, err); err != nil {
		return nil, err
	}
	u.logger.Warn("batch embedding failed, retrying per article", "size", len(batch), "error", err)

	vectors = make([][]float32, len(batch))
	for i, text := range texts {
		vecs, err := u.embedder.Embed(ctx, []string{text})
		if err == nil && len(vecs) == 1 {
			vectors[i] = vecs[0]
			continue
		}
		if err := fatal(ctx, err); err != nil {
			return nil, err
		}
		u.logger.Warn("embedding failed", "article_id", batch[i].ID, "error", err)
	}
	if err := u.checkDimensions(batch, vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (u *SyncUseCase) checkDimensions(batch []domain.Article, vectors [][]float32) error {
	want := u.embedder.Dimension()
	for i, vec := range vectors {
		if vec != nil && len(vec) != want {
			return fmt.Errorf("embedding for %s: %w", batch[i].ID, &domain.DimensionMismatchError{Want: want, Got: len(vec)})
		}
	}
	return nil
}

func (u *SyncUseCase) skip(result *domain.SyncResult, id, stage string, err error) {
	result.Skipped++
	result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", stage, id, err))
	u.logger.Warn("article skipped", "article_id", id, "stage", stage, "error", err)
}

// fatal returns the error that must stop a sync: cancellation or a dimension
// mismatch.
func fatal(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, domain.ErrDimensionMismatch) {
		return err
	}
	return nil
}

// dedupe keeps the last version of each article id, at the position of its
// first appearance.
func dedupe(articles []domain.Article) []domain.Article {
	pos := make(map[string]int, len(articles))
	out := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		if i, ok := pos[a.ID]; ok {
			out[i] = a
			continue
		}
		pos[a.ID] = len(out)
		out = append(out, a)
	}
	return out
}
