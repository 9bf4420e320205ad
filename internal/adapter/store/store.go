package store

import (
	"context"
	"fmt"

	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

// Store is what the CLI opens: articles, chat log and the migration hook.
type Store interface {
	port.ArticleStore
	port.ChatLog
	RecentChats(ctx context.Context, limit int) ([]domain.ChatRecord, error)
	Prepare(ctx context.Context, spec EmbeddingSpec) (*MigrationResult, error)
	Close() error
}

var (
	_ Store = (*BoltStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open opens the store for the configured driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "bolt":
		return NewBoltStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}
