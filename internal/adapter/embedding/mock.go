package embedding

import (
	"context"
	"sync/atomic"
)

// MockEmbedder returns fixed vectors for known texts and a zero vector for
// everything else. Useful where a test wants to dictate scores exactly.
type MockEmbedder struct {
	dimension int
	vectors   map[string][]float32
	calls     atomic.Int64
}

func NewMockEmbedder(dimension int, vectors map[string][]float32) *MockEmbedder {
	if vectors == nil {
		vectors = make(map[string][]float32)
	}
	return &MockEmbedder{dimension: dimension, vectors: vectors}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dimension)
		copy(vec, e.vectors[text])
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Calls reports how many times Embed was invoked.
func (e *MockEmbedder) Calls() int {
	return int(e.calls.Load())
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
