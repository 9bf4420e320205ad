package usecase

import (
	"context"
	"fmt"

	"kbsearch/internal/adapter/vectorindex"
	"kbsearch/internal/port"
)

// LoadIndex builds a generation from every stored embedding and makes it
// current. An empty store yields an empty generation.
func LoadIndex(ctx context.Context, store port.ArticleStore, index *vectorindex.Index) (*vectorindex.Generation, error) {
	items, err := store.AllWithEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	gen, err := index.Rebuild(items)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	return gen, nil
}
