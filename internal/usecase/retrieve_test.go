package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"kbsearch/internal/adapter/cache"
	"kbsearch/internal/adapter/vectorindex"
	"kbsearch/internal/domain"
)

func TestRetrieve_SmallPoolBypass(t *testing.T) {
	tests := []struct {
		name      string
		poolSize  int
		limit     int
		wantCalls int
		want      []string
	}{
		{"empty pool", 0, 5, 0, []string{}},
		{"three candidates", 3, 2, 0, []string{"Article 0", "Article 1"}},
		{"four candidates", 4, 2, 1, []string{"Article 3", "Article 2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &recordingSearcher{pool: scoredPool(tt.poolSize)}
			reranker := &countingReranker{}
			u := NewRetrieveUseCase(searcher, reranker, RetrieveOptions{PoolSize: 10, SmallPoolBypass: 3}, quiet)

			got, err := u.Retrieve(context.Background(), "q", tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if reranker.calls != tt.wantCalls {
				t.Errorf("expected %d rerank calls, got %d", tt.wantCalls, reranker.calls)
			}
			if !reflect.DeepEqual(titlesOf(got), tt.want) {
				t.Errorf("expected %v, got %v", tt.want, titlesOf(got))
			}
		})
	}
}

func TestRetrieve_PoolSize(t *testing.T) {
	searcher := &recordingSearcher{pool: scoredPool(20)}
	u := NewRetrieveUseCase(searcher, &countingReranker{}, RetrieveOptions{PoolSize: 10, SmallPoolBypass: 3}, quiet)

	u.Retrieve(context.Background(), "q", 5)
	if searcher.poolSize != 10 || searcher.limit != 5 {
		t.Errorf("expected pool 10 for limit 5, got pool %d limit %d", searcher.poolSize, searcher.limit)
	}

	u.Retrieve(context.Background(), "q", 15)
	if searcher.poolSize != 15 {
		t.Errorf("expected pool 15 for limit 15, got %d", searcher.poolSize)
	}
}

func TestRetrieve_Errors(t *testing.T) {
	searcher := &recordingSearcher{err: &domain.DimensionMismatchError{Want: 2, Got: 3}}
	u := NewRetrieveUseCase(searcher, nil, RetrieveOptions{}, quiet)

	if _, err := u.Retrieve(context.Background(), "   ", 5); !errors.Is(err, domain.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
	if _, err := u.Retrieve(context.Background(), "q", 5); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected search error to propagate, got %v", err)
	}
}

func TestRetrieve_WithoutRerank(t *testing.T) {
	searcher := &recordingSearcher{pool: scoredPool(8)}
	reranker := &countingReranker{}
	u := NewRetrieveUseCase(searcher, reranker, RetrieveOptions{PoolSize: 10}, quiet)

	got, err := u.RetrieveWithoutRerank(context.Background(), "q", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || reranker.calls != 0 || searcher.poolSize != 4 {
		t.Errorf("expected 4 semantic results without reranking, got %d (calls %d, pool %d)", len(got), reranker.calls, searcher.poolSize)
	}
}

func TestRetrieve_CacheFollowsGeneration(t *testing.T) {
	index := vectorindex.New()
	if _, err := index.Rebuild(nil); err != nil {
		t.Fatal(err)
	}
	searcher := &recordingSearcher{pool: scoredPool(6)}
	u := NewRetrieveUseCase(searcher, &countingReranker{}, RetrieveOptions{
		PoolSize:        10,
		SmallPoolBypass: 3,
		Cache:           cache.NewQueryCache(10, time.Minute),
		Index:           index,
	}, quiet)

	ctx := context.Background()
	first, _ := u.Retrieve(ctx, "q", 3)
	second, _ := u.Retrieve(ctx, "q", 3)
	if searcher.calls != 1 {
		t.Errorf("expected second call to hit the cache, searcher called %d times", searcher.calls)
	}
	if !reflect.DeepEqual(titlesOf(first), titlesOf(second)) {
		t.Errorf("cached results differ: %v vs %v", titlesOf(first), titlesOf(second))
	}

	index.Rebuild(nil)
	u.Retrieve(ctx, "q", 3)
	if searcher.calls != 2 {
		t.Errorf("expected a rebuild to invalidate the cache, searcher called %d times", searcher.calls)
	}
}
