package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"kbsearch/internal/adapter/embedding"
	"kbsearch/internal/adapter/vectorindex"
	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func article(id, title string) domain.Article {
	return domain.Article{ID: id, Title: title, Content: title + " body"}
}

func buildIndex(t *testing.T, items []domain.EmbeddedArticle) *vectorindex.Index {
	t.Helper()
	idx := vectorindex.New()
	if _, err := idx.Rebuild(items); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return idx
}

func TestSemanticSearcher_Threshold(t *testing.T) {
	embedder := embedding.NewMockEmbedder(2, map[string][]float32{
		"forgot password": {1, 0},
	})
	idx := buildIndex(t, []domain.EmbeddedArticle{
		{Article: article("1", "Password Reset"), Vector: []float32{0.9, 0.4359}},
		{Article: article("2", "Two-Factor Setup"), Vector: []float32{0.1, 0.995}},
	})

	s := NewSemanticSearcher(embedder, idx, 0.3)
	results, err := s.Search(context.Background(), "forgot password", 5, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Article.Title != "Password Reset" {
		t.Fatalf("expected only Password Reset, got %+v", results)
	}
	if results[0].Score < 0.89 || results[0].Score > 0.91 {
		t.Errorf("expected score ~0.9, got %f", results[0].Score)
	}
}

func TestSemanticSearcher_OrderAndPool(t *testing.T) {
	embedder := embedding.NewMockEmbedder(2, map[string][]float32{"q": {1, 0}})
	var items []domain.EmbeddedArticle
	for i := 0; i < 12; i++ {
		x := float32(12-i) / 12
		items = append(items, domain.EmbeddedArticle{
			Article: article(fmt.Sprint(i), fmt.Sprintf("a%d", i)),
			Vector:  []float32{x, 0},
		})
	}
	s := NewSemanticSearcher(embedder, buildIndex(t, items), 0.3)

	results, err := s.Search(context.Background(), "q", 2, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 9 {
		// scores 12/12 .. 4/12 clear 0.3, 3/12 does not
		t.Fatalf("expected 9 results above threshold, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score >= results[i-1].Score {
			t.Errorf("results not strictly descending at %d", i)
		}
	}

	// poolSize below limit is raised to limit.
	results, err = s.Search(context.Background(), "q", 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}
}

func TestSemanticSearcher_EmptyIndex(t *testing.T) {
	embedder := embedding.NewMockEmbedder(2, nil)
	s := NewSemanticSearcher(embedder, vectorindex.New(), 0.3)

	results, err := s.Search(context.Background(), "anything", 5, 10)
	if err != nil {
		t.Fatalf("expected no error on empty index, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
	if embedder.Calls() != 0 {
		t.Errorf("expected no encoding on an empty index, got %d calls", embedder.Calls())
	}
}

func TestSemanticSearcher_DimensionMismatch(t *testing.T) {
	embedder := embedding.NewMockEmbedder(3, nil)
	idx := buildIndex(t, []domain.EmbeddedArticle{
		{Article: article("1", "a"), Vector: []float32{1, 0}},
	})
	s := NewSemanticSearcher(embedder, idx, 0.3)

	_, err := s.Search(context.Background(), "q", 5, 5)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

type fakeLLM struct {
	response string
	err      error
	delay    time.Duration
	calls    int
	prompt   string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, _ port.GenerateOptions) (string, error) {
	f.calls++
	f.prompt = prompt
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

func (f *fakeLLM) ModelName() string { return "fake" }

func pool(n int) []domain.ScoredArticle {
	out := make([]domain.ScoredArticle, n)
	for i := range out {
		out[i] = domain.ScoredArticle{
			Article: article(fmt.Sprint(i), fmt.Sprintf("Article %d", i)),
			Score:   1 - float64(i)*0.1,
		}
	}
	return out
}

func titles(results []domain.ScoredArticle) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Article.Title
	}
	return out
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name     string
		resp     string
		poolSize int
		limit    int
		want     []int
	}{
		{"out of range dropped", "2,7,1", 5, 5, []int{1, 0}},
		{"whitespace", " 3 , 1 ,2 ", 5, 5, []int{2, 0, 1}},
		{"duplicates dropped", "1,1,2,1", 5, 5, []int{0, 1}},
		{"truncated to limit", "5,4,3,2,1", 5, 2, []int{4, 3}},
		{"zero and negative", "0,-1,2", 5, 5, []int{1}},
		{"prose", "The best match is article 2", 5, 5, nil},
		{"empty", "", 5, 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSelection(tt.resp, tt.poolSize, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseSelection(%q) = %v, want %v", tt.resp, got, tt.want)
			}
		})
	}
}

func TestModelBacked_Selection(t *testing.T) {
	llm := &fakeLLM{response: "2,7,1"}
	r := NewModelBacked(llm, port.GenerateOptions{}, time.Second, 100, quiet)

	p := pool(5)
	got := r.Rerank(context.Background(), "q", p, 5)
	want := []string{p[1].Article.Title, p[0].Article.Title}
	if !reflect.DeepEqual(titles(got), want) {
		t.Errorf("expected %v, got %v", want, titles(got))
	}

	if !strings.Contains(llm.prompt, "[1] Article 0") || !strings.Contains(llm.prompt, "[5] Article 4") {
		t.Errorf("prompt should enumerate the pool 1-based:\n%s", llm.prompt)
	}
	if !strings.Contains(llm.prompt, "Question: q") {
		t.Errorf("prompt should carry the query:\n%s", llm.prompt)
	}
}

func TestModelBacked_Fallback(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
	}{
		{"model error", &fakeLLM{err: errors.New("connection refused")}},
		{"empty response", &fakeLLM{response: "  "}},
		{"malformed response", &fakeLLM{response: "I think the first one"}},
		{"all out of range", &fakeLLM{response: "9,10"}},
		{"timeout", &fakeLLM{response: "1", delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewModelBacked(tt.llm, port.GenerateOptions{}, 20*time.Millisecond, 100, quiet)
			p := pool(5)
			got := r.Rerank(context.Background(), "q", p, 3)
			if !reflect.DeepEqual(titles(got), titles(p[:3])) {
				t.Errorf("expected semantic order %v, got %v", titles(p[:3]), titles(got))
			}
		})
	}
}

func TestModelBacked_ExcerptBounded(t *testing.T) {
	llm := &fakeLLM{response: "1"}
	r := NewModelBacked(llm, port.GenerateOptions{}, time.Second, 10, quiet)

	p := []domain.ScoredArticle{{Article: domain.Article{ID: "1", Title: "Long", Content: strings.Repeat("x", 50)}}}
	r.Rerank(context.Background(), "q", p, 1)
	if strings.Contains(llm.prompt, strings.Repeat("x", 11)) {
		t.Error("excerpt should be clipped to 10 characters")
	}
}

func TestSemanticOnly(t *testing.T) {
	r := NewSemanticOnly()
	p := pool(5)
	got := r.Rerank(context.Background(), "q", p, 2)
	if !reflect.DeepEqual(titles(got), titles(p[:2])) {
		t.Errorf("expected %v, got %v", titles(p[:2]), titles(got))
	}
	if got := r.Rerank(context.Background(), "q", nil, 2); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}
