package models

import (
	"fmt"
	"math"
)

// DefaultEmbeddingDim matches the descriptor length of the upstream
// face-recognition model.
const DefaultEmbeddingDim = 128

// Embedding is a fixed-length face descriptor vector. Immutable once created.
type Embedding []float32

// Validate checks the embedding against the expected dimensionality.
func (e Embedding) Validate(dim int) error {
	if len(e) != dim {
		return fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(e), dim)
	}
	return nil
}

// DistanceTo returns the Euclidean (L2) distance between two embeddings.
// The same metric is used at insert time and query time; there is no
// normalization step on either side.
func (e Embedding) DistanceTo(other Embedding) (float32, error) {
	if len(e) != len(other) {
		return 0, fmt.Errorf("embedding dimension mismatch: %d vs %d", len(e), len(other))
	}
	var sum float64
	for i := range e {
		d := float64(e[i] - other[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum)), nil
}
