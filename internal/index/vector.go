package index

import (
	"errors"

	"convsearch/internal/embedding"
)

// vectors is a brute-force inner-product store. Rows are unit length, so
// the inner product equals cosine similarity. Row i belongs to document i.
type vectors struct {
	dimension int
	rows      [][]float32
}

func newVectors(dimension int, rows [][]float32) (*vectors, error) {
	if dimension <= 0 {
		return nil, errors.New("invalid dimension")
	}
	for _, r := range rows {
		if len(r) != dimension {
			return nil, errors.New("vector dimension mismatch")
		}
	}
	return &vectors{dimension: dimension, rows: rows}, nil
}

func (v *vectors) scores(query []float32) []float64 {
	out := make([]float64, len(v.rows))
	for i := range v.rows {
		out[i] = embedding.Dot(v.rows[i], query)
	}
	return out
}
