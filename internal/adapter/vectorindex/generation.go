package vectorindex

import (
	"fmt"
	"sort"

	"kbsearch/internal/domain"
)

// Generation is one immutable build of the index. Slot i of vectors belongs to
// articles[i]; nothing mutates either slice after Build returns.
type Generation struct {
	number   uint64
	dim      int
	vectors  []float32 // len(articles)*dim, row-major
	articles []domain.Article
}

// Build scores by inner product, so vectors are expected to be L2-normalized.
// An empty input yields an empty generation that answers every query with no
// results.
func Build(items []domain.EmbeddedArticle) (*Generation, error) {
	g := &Generation{}
	if len(items) == 0 {
		return g, nil
	}

	dim := len(items[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("article %s: %w", items[0].Article.ID, &domain.DimensionMismatchError{Want: 1, Got: 0})
	}

	g.dim = dim
	g.vectors = make([]float32, 0, len(items)*dim)
	g.articles = make([]domain.Article, 0, len(items))
	for _, item := range items {
		if len(item.Vector) != dim {
			return nil, fmt.Errorf("article %s: %w", item.Article.ID, &domain.DimensionMismatchError{Want: dim, Got: len(item.Vector)})
		}
		g.vectors = append(g.vectors, item.Vector...)
		g.articles = append(g.articles, item.Article)
	}

	return g, nil
}

// Number is the generation's sequence number; 0 until published by an Index.
func (g *Generation) Number() uint64 {
	return g.number
}

func (g *Generation) Len() int {
	return len(g.articles)
}

// Dim is 0 for an empty generation.
func (g *Generation) Dim() int {
	return g.dim
}

// Search returns up to k articles by descending inner product with query.
// Equal scores keep slot order. The scan is exact.
func (g *Generation) Search(query []float32, k int) ([]domain.ScoredArticle, error) {
	if len(g.articles) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != g.dim {
		return nil, &domain.DimensionMismatchError{Want: g.dim, Got: len(query)}
	}

	type scored struct {
		slot  int
		score float64
	}

	scores := make([]scored, len(g.articles))
	for slot := range g.articles {
		row := g.vectors[slot*g.dim : (slot+1)*g.dim]
		scores[slot] = scored{slot: slot, score: dot(query, row)}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if k > len(scores) {
		k = len(scores)
	}

	results := make([]domain.ScoredArticle, k)
	for i := 0; i < k; i++ {
		results[i] = domain.ScoredArticle{
			Article: g.articles[scores[i].slot],
			Score:   scores[i].score,
		}
	}

	return results, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
