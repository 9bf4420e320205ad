package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("article not found")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEncodingFailure   = errors.New("embedding failed")
	ErrRerankUnavailable = errors.New("reranker unavailable")
	ErrEmptyQuery        = errors.New("empty query")
)

// DimensionMismatchError carries both sides of a dimension check.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}

// NotFoundError names the missing article.
func NotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
