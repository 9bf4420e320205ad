package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"kbsearch/internal/adapter/embedding"
	"kbsearch/internal/adapter/memstore"
	"kbsearch/internal/adapter/retriever"
	"kbsearch/internal/adapter/vectorindex"
	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// flakyStore fails upserts for the listed ids.
type flakyStore struct {
	*memstore.MemoryStore
	failUpsert map[string]bool
}

func (s *flakyStore) Upsert(ctx context.Context, a domain.Article) error {
	if s.failUpsert[a.ID] {
		return errors.New("disk full")
	}
	return s.MemoryStore.Upsert(ctx, a)
}

// flakyEmbedder fails any call whose input contains a poisoned text.
type flakyEmbedder struct {
	*embedding.MockEmbedder
	poison string
}

func (e *flakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, e.poison) {
			return nil, fmt.Errorf("model crashed: %w", domain.ErrEncodingFailure)
		}
	}
	return e.MockEmbedder.Embed(ctx, texts)
}

// wideEmbedder returns vectors longer than it advertises.
type wideEmbedder struct{}

func (wideEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}
func (wideEmbedder) Dimension() int    { return 2 }
func (wideEmbedder) ModelName() string { return "wide" }

// countingReranker reverses the pool and records calls.
type countingReranker struct {
	calls int
}

func (r *countingReranker) Rerank(_ context.Context, _ string, pool []domain.ScoredArticle, limit int) []domain.ScoredArticle {
	r.calls++
	out := make([]domain.ScoredArticle, 0, len(pool))
	for i := len(pool) - 1; i >= 0; i-- {
		out = append(out, pool[i])
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *countingReranker) Name() string { return "reverse" }

// recordingSearcher returns a fixed pool and records the requested sizes.
type recordingSearcher struct {
	pool     []domain.ScoredArticle
	err      error
	calls    int
	limit    int
	poolSize int
}

func (s *recordingSearcher) Search(_ context.Context, _ string, limit, poolSize int) ([]domain.ScoredArticle, error) {
	s.calls++
	s.limit, s.poolSize = limit, poolSize
	if s.err != nil {
		return nil, s.err
	}
	if len(s.pool) > poolSize {
		return s.pool[:poolSize], nil
	}
	return s.pool, nil
}

type fakeLLM struct {
	response string
	err      error
	prompt   string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ port.GenerateOptions) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func (f *fakeLLM) ModelName() string { return "fake" }

type brokenChatLog struct{}

func (brokenChatLog) AppendChat(context.Context, domain.ChatRecord) error {
	return errors.New("database is locked")
}
func (brokenChatLog) CountChats(context.Context) (int, error) { return 0, nil }

func scoredPool(n int) []domain.ScoredArticle {
	out := make([]domain.ScoredArticle, n)
	for i := range out {
		out[i] = domain.ScoredArticle{
			Article: domain.Article{
				ID:      fmt.Sprint(i),
				Title:   fmt.Sprintf("Article %d", i),
				Content: fmt.Sprintf("Body of article %d", i),
				URL:     fmt.Sprintf("https://kb.example.com/%d", i),
			},
			Score: 1 - float64(i)*0.05,
		}
	}
	return out
}

func titlesOf(results []domain.ScoredArticle) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Article.Title
	}
	return out
}

var (
	passwordReset = domain.Article{ID: "101", Title: "Password Reset", Content: "Use the forgot password link.", URL: "https://kb.example.com/101"}
	twoFactor     = domain.Article{ID: "102", Title: "Two-Factor Setup", Content: "Scan the QR code.", URL: "https://kb.example.com/102"}
)

// knowledgeBase wires a memory store, mock embedder and index with the two
// reference articles scored 0.9 and 0.1 against "forgot password".
func knowledgeBase(t *testing.T) (*memstore.MemoryStore, *embedding.MockEmbedder, *vectorindex.Index, *SyncUseCase) {
	t.Helper()
	embedder := embedding.NewMockEmbedder(2, map[string][]float32{
		"forgot password":             {1, 0},
		passwordReset.EmbeddingText(): {0.9, 0.4359},
		twoFactor.EmbeddingText():     {0.1, 0.995},
	})
	store := memstore.NewMemoryStore()
	index := vectorindex.New()
	return store, embedder, index, NewSyncUseCase(store, embedder, index, 8, quiet)
}

func semanticRetrieve(embedder retriever.Embedder, index *vectorindex.Index) *RetrieveUseCase {
	searcher := retriever.NewSemanticSearcher(embedder, index, 0.3)
	return NewRetrieveUseCase(searcher, nil, RetrieveOptions{PoolSize: 10, SmallPoolBypass: 3}, quiet)
}
