package memstore

import (
	"context"
	"fmt"
	"sync"

	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

var (
	_ port.ArticleStore = (*MemoryStore)(nil)
	_ port.ChatLog      = (*MemoryStore)(nil)
)

// MemoryStore keeps articles, embeddings and chats in maps. Storage order is
// first-insertion order.
type MemoryStore struct {
	mu         sync.RWMutex
	articles   map[string]domain.Article
	order      []string
	embeddings map[string][]float32
	chats      []domain.ChatRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles:   make(map[string]domain.Article),
		embeddings: make(map[string][]float32),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, article domain.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if article.ID == "" {
		return fmt.Errorf("article id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.articles[article.ID]
	if !exists {
		s.order = append(s.order, article.ID)
	} else if !prev.SameText(article) {
		delete(s.embeddings, article.ID)
	}
	s.articles[article.ID] = article
	return nil
}

func (s *MemoryStore) GetArticle(ctx context.Context, id string) (domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return domain.Article{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	article, ok := s.articles[id]
	if !ok {
		return domain.Article{}, domain.NotFoundError(id)
	}
	return article, nil
}

func (s *MemoryStore) SetEmbedding(ctx context.Context, id string, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[id]; !ok {
		return domain.NotFoundError(id)
	}
	if len(vector) == 0 {
		return &domain.DimensionMismatchError{Got: 0}
	}
	s.embeddings[id] = append([]float32(nil), vector...)
	return nil
}

func (s *MemoryStore) AllWithEmbeddings(ctx context.Context) ([]domain.EmbeddedArticle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EmbeddedArticle, 0, len(s.embeddings))
	for _, id := range s.order {
		vec, ok := s.embeddings[id]
		if !ok {
			continue
		}
		out = append(out, domain.EmbeddedArticle{
			Article: s.articles[id],
			Vector:  append([]float32(nil), vec...),
		})
	}
	return out, nil
}

func (s *MemoryStore) CountArticles(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles), nil
}

func (s *MemoryStore) CountEmbedded(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.embeddings), nil
}

func (s *MemoryStore) AppendChat(ctx context.Context, record domain.ChatRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append(s.chats, record)
	return nil
}

func (s *MemoryStore) CountChats(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats), nil
}

// Chats returns a copy of the chat log.
func (s *MemoryStore) Chats() []domain.ChatRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChatRecord(nil), s.chats...)
}

// Embedding returns the stored vector for id, if any.
func (s *MemoryStore) Embedding(id string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.embeddings[id]
	return vec, ok
}
