package vectorindex

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"kbsearch/internal/domain"
)

func item(id string, vec ...float32) domain.EmbeddedArticle {
	return domain.EmbeddedArticle{
		Article: domain.Article{ID: id, Title: "title " + id},
		Vector:  vec,
	}
}

func TestSearch_OrdersByScore(t *testing.T) {
	g, err := Build([]domain.EmbeddedArticle{
		item("a", 0.1, 0.0),
		item("b", 0.9, 0.1),
		item("c", 0.5, 0.5),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	results, err := g.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Article.ID != "b" || results[1].Article.ID != "c" {
		t.Errorf("expected [b c], got [%s %s]", results[0].Article.ID, results[1].Article.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("expected descending scores, got %f then %f", results[0].Score, results[1].Score)
	}
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	g, err := Build([]domain.EmbeddedArticle{
		item("first", 1, 0),
		item("second", 1, 0),
		item("third", 1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := g.Search([]float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"first", "second", "third"}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, id := range want {
		if results[i].Article.ID != id {
			t.Errorf("slot %d: expected %s, got %s", i, id, results[i].Article.ID)
		}
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	g, err := Build(nil)
	if err != nil {
		t.Fatalf("Build(nil) failed: %v", err)
	}

	results, err := g.Search([]float32{1, 2, 3}, 5)
	if err != nil {
		t.Errorf("expected no error on empty index, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}

	idx := New()
	results, err = idx.Search([]float32{1}, 5)
	if err != nil || len(results) != 0 {
		t.Errorf("expected empty result from fresh index, got %v, %v", results, err)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	g, err := Build([]domain.EmbeddedArticle{item("a", 1, 0, 0)})
	if err != nil {
		t.Fatal(err)
	}

	_, err = g.Search([]float32{1, 0}, 1)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	var dm *domain.DimensionMismatchError
	if !errors.As(err, &dm) || dm.Want != 3 || dm.Got != 2 {
		t.Errorf("expected want=3 got=2, got %+v", dm)
	}
}

func TestBuild_RejectsMixedDimensions(t *testing.T) {
	_, err := Build([]domain.EmbeddedArticle{
		item("a", 1, 0),
		item("b", 1, 0, 0),
	})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestRebuild_KeepsOldGenerationOnError(t *testing.T) {
	idx := New()
	if _, err := idx.Rebuild([]domain.EmbeddedArticle{item("a", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	before := idx.Current()

	if _, err := idx.Rebuild([]domain.EmbeddedArticle{item("a", 1, 0), item("b", 1)}); err == nil {
		t.Fatal("expected rebuild error")
	}
	if idx.Current() != before {
		t.Error("failed rebuild replaced the current generation")
	}
	if before.Number() != 1 {
		t.Errorf("expected generation 1, got %d", before.Number())
	}
}

// Every article title carries its generation's tag, so a search that mixed
// two generations would return more than one tag.
func TestRebuild_ConcurrentSearchSeesWholeGeneration(t *testing.T) {
	const size = 50

	makeGen := func(tag int) []domain.EmbeddedArticle {
		items := make([]domain.EmbeddedArticle, size)
		for i := range items {
			score := float32(0.01)
			if i == tag%size {
				score = 1
			}
			items[i] = domain.EmbeddedArticle{
				Article: domain.Article{ID: fmt.Sprintf("%d", i), Title: fmt.Sprintf("gen-%d", tag)},
				Vector:  []float32{score, float32(tag)},
			}
		}
		return items
	}

	idx := New()
	if _, err := idx.Rebuild(makeGen(0)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan error, 8)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				results, err := idx.Search([]float32{1, 0}, size)
				if err != nil {
					errs <- err
					return
				}
				if len(results) != size {
					errs <- fmt.Errorf("expected %d results, got %d", size, len(results))
					return
				}
				title := results[0].Article.Title
				for _, res := range results {
					if res.Article.Title != title {
						errs <- fmt.Errorf("mixed generations: %s and %s", title, res.Article.Title)
						return
					}
				}
			}
		}()
	}

	for tag := 1; tag <= 200; tag++ {
		if _, err := idx.Rebuild(makeGen(tag)); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if got := idx.Current().Number(); got != 201 {
		t.Errorf("expected generation 201, got %d", got)
	}
}
