package cache

import (
	"fmt"
	"testing"
	"time"

	"kbsearch/internal/domain"
)

func results(titles ...string) []domain.ScoredArticle {
	out := make([]domain.ScoredArticle, len(titles))
	for i, title := range titles {
		out[i] = domain.ScoredArticle{Article: domain.Article{ID: title, Title: title}, Score: 1}
	}
	return out
}

func TestQueryCache_HitAndGenerationMiss(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("reset password", 5, "rerank", 1, results("Password Reset"))

	got, ok := c.Get("reset password", 5, "rerank", 1)
	if !ok || len(got) != 1 || got[0].Article.Title != "Password Reset" {
		t.Fatalf("expected hit, got %v %v", got, ok)
	}

	if _, ok := c.Get("reset password", 5, "rerank", 2); ok {
		t.Error("expected miss after a rebuild")
	}
	if c.Size() != 0 {
		t.Errorf("stale entry should be dropped, size %d", c.Size())
	}
}

func TestQueryCache_KeyParts(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("q", 5, "rerank", 1, results("a"))

	if _, ok := c.Get("q", 3, "rerank", 1); ok {
		t.Error("limit should be part of the key")
	}
	if _, ok := c.Get("q", 5, "semantic", 1); ok {
		t.Error("mode should be part of the key")
	}
	if _, ok := c.Get("  q ", 5, "rerank", 1); !ok {
		t.Error("surrounding whitespace should not matter")
	}
}

func TestQueryCache_TTL(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("q", 5, "rerank", 1, results("a"))
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("q", 5, "rerank", 1); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestQueryCache_LRUEviction(t *testing.T) {
	c := NewQueryCache(3, time.Minute)
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprint(i), 5, "rerank", 1, results(fmt.Sprint(i)))
	}

	// Touch 0 so 1 becomes the oldest.
	c.Get("0", 5, "rerank", 1)
	c.Put("3", 5, "rerank", 1, results("3"))

	if _, ok := c.Get("1", 5, "rerank", 1); ok {
		t.Error("expected 1 to be evicted")
	}
	for _, q := range []string{"0", "2", "3"} {
		if _, ok := c.Get(q, 5, "rerank", 1); !ok {
			t.Errorf("expected %s to be cached", q)
		}
	}
}

func TestQueryCache_ReturnsCopies(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	in := results("a", "b")
	c.Put("q", 5, "rerank", 1, in)
	in[0].Article.Title = "mutated"

	got, _ := c.Get("q", 5, "rerank", 1)
	if got[0].Article.Title != "a" {
		t.Errorf("cache should not alias caller slices, got %s", got[0].Article.Title)
	}
}

func TestQueryCache_Clear(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("q", 5, "rerank", 1, results("a"))
	c.Clear()
	if c.Size() != 0 {
		t.Errorf("expected empty cache, size %d", c.Size())
	}
}
