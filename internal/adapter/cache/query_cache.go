package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"kbsearch/internal/domain"
)

// QueryCache is a small LRU of retrieval results. Every entry is tagged with
// the index generation it was computed against; a lookup under any other
// generation is a miss.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	results    []domain.ScoredArticle
	timestamp  time.Time
	generation uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(query string, limit int, mode string) string {
	data := []byte(strings.TrimSpace(query))
	data = append(data, 0, byte(limit>>8), byte(limit), 0)
	data = append(data, mode...)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// Get returns cached results computed under generation.
func (c *QueryCache) Get(query string, limit int, mode string, generation uint64) ([]domain.ScoredArticle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, limit, mode)
	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if c.now().Sub(entry.timestamp) > c.ttl || entry.generation != generation {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.moveToEnd(key)
	return clone(entry.results), true
}

// Put stores results computed under generation.
func (c *QueryCache) Put(query string, limit int, mode string, generation uint64, results []domain.ScoredArticle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query, limit, mode)
	entry := &cacheEntry{
		results:    clone(results),
		timestamp:  c.now(),
		generation: generation,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

// Clear drops every entry.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func clone(results []domain.ScoredArticle) []domain.ScoredArticle {
	if results == nil {
		return nil
	}
	out := make([]domain.ScoredArticle, len(results))
	copy(out, results)
	return out
}
