// Package index provides a flat, exact nearest-neighbor index over
// fixed-dimension float vectors.
//
// The index is append-only and brute-force: every search scans all stored
// vectors and ranks them by squared Euclidean distance. Correctness over
// asymptotic speed, which is appropriate for per-tenant corpus sizes.
package index

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ErrDimensionMismatch is returned when a vector's length does not match
// the dimension fixed by the first append.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// metricL2 tags persisted indexes with their distance metric.
const metricL2 = "l2"

// Hit is one search result: the positional id of a stored vector and its
// squared Euclidean distance from the query.
type Hit struct {
	ID       int
	Distance float32
}

// Flat is an exact L2 index. Vectors keep the ordinal position they were
// appended at; that position is the internal id returned by Search.
type Flat struct {
	dim     int
	vectors [][]float32
	logger  *zap.Logger
}

// NewFlat creates an empty index. The dimension is fixed by the first Append.
func NewFlat(logger *zap.Logger) *Flat {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flat{logger: logger}
}

// Count returns the number of stored vectors.
func (f *Flat) Count() int { return len(f.vectors) }

// Dimension returns the vector dimension, or 0 before the first append.
func (f *Flat) Dimension() int { return f.dim }

// Append adds vectors to the index. The first call fixes the dimension.
// All vectors are validated before any state changes, so a failed append
// never corrupts the index.
func (f *Flat) Append(vectors [][]float32) error {
	if len(vectors) == 0 {
		f.logger.Warn("empty vector batch, nothing to append")
		return nil
	}

	dim := f.dim
	if dim == 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, index expects %d",
				ErrDimensionMismatch, i, len(v), dim)
		}
	}

	f.dim = dim
	f.vectors = append(f.vectors, vectors...)
	f.logger.Debug("appended vectors",
		zap.Int("count", len(vectors)),
		zap.Int("total", len(f.vectors)))
	return nil
}

// Search returns up to k hits ordered by ascending distance. It returns an
// empty result when the index is empty or the query dimension is wrong.
func (f *Flat) Search(query []float32, k int) []Hit {
	if len(f.vectors) == 0 {
		f.logger.Warn("search on empty index")
		return nil
	}
	if len(query) != f.dim {
		f.logger.Warn("query dimension mismatch",
			zap.Int("query_dim", len(query)),
			zap.Int("index_dim", f.dim))
		return nil
	}
	if k <= 0 {
		return nil
	}

	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{ID: i, Distance: squaredL2(query, v)}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance == hits[j].Distance {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Distance < hits[j].Distance
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k]
}

// squaredL2 computes the squared Euclidean distance between two vectors of
// equal length. No normalization is applied.
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
