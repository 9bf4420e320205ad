package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"kbsearch/internal/domain"
)

// EncodeVector packs vec as little-endian IEEE 754 float32 values with no
// length prefix; the length is len(blob)/4.
func EncodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeVector unpacks a blob written by EncodeVector. When dim is positive the
// blob must hold exactly dim values.
func DecodeVector(b []byte, dim int) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	n := len(b) / 4
	if dim > 0 && n != dim {
		return nil, &domain.DimensionMismatchError{Want: dim, Got: n}
	}
	if n == 0 {
		return nil, nil
	}
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

func checkDimension(dim int, vec []float32) error {
	if len(vec) == 0 {
		return &domain.DimensionMismatchError{Want: dim, Got: 0}
	}
	if dim > 0 && len(vec) != dim {
		return &domain.DimensionMismatchError{Want: dim, Got: len(vec)}
	}
	return nil
}
