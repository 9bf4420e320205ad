package port

import (
	"context"

	"kbsearch/internal/domain"
)

// ArticleStore is the durable record of articles and their embeddings.
type ArticleStore interface {
	// Upsert inserts the article or overwrites the row with the same ID.
	// A change to title or content drops the stored embedding in the same write.
	Upsert(ctx context.Context, article domain.Article) error

	// GetArticle returns domain.ErrNotFound when the ID is unknown.
	GetArticle(ctx context.Context, id string) (domain.Article, error)

	// SetEmbedding records a vector for an existing article.
	SetEmbedding(ctx context.Context, id string, vector []float32) error

	// AllWithEmbeddings returns every article that has a vector, in storage order.
	AllWithEmbeddings(ctx context.Context) ([]domain.EmbeddedArticle, error)

	CountArticles(ctx context.Context) (int, error)
	CountEmbedded(ctx context.Context) (int, error)
}

// ChatLog is the append-only record of answered questions.
type ChatLog interface {
	AppendChat(ctx context.Context, record domain.ChatRecord) error
	CountChats(ctx context.Context) (int, error)
}
