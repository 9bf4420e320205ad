package vectorindex

import (
	"sync"

	"kbsearch/internal/domain"
)

// Index owns the pointer to the current Generation. Readers take the pointer
// and query it without holding the lock; Rebuild constructs the replacement
// off to the side and publishes it with a single assignment.
type Index struct {
	mu      sync.RWMutex
	current *Generation
	next    uint64
}

// New returns an index holding an empty generation.
func New() *Index {
	return &Index{current: &Generation{}}
}

// Current returns the generation visible right now.
func (x *Index) Current() *Generation {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.current
}

// Rebuild replaces the current generation with one built from items. On error
// the current generation is left in place.
func (x *Index) Rebuild(items []domain.EmbeddedArticle) (*Generation, error) {
	g, err := Build(items)
	if err != nil {
		return nil, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.next++
	g.number = x.next
	x.current = g
	return g, nil
}

// Search queries the current generation.
func (x *Index) Search(query []float32, k int) ([]domain.ScoredArticle, error) {
	return x.Current().Search(query, k)
}
