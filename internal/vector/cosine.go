package vector

import (
	"fmt"
	"math"
)

// Cosine computes the cosine similarity between two vectors, in [-1, 1].
// Accumulation runs in float64 to limit rounding drift on long vectors.
// A dimension mismatch is a corruption error, never a silent truncation.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine: dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("cosine: empty vectors")
	}
	var dot, na, nb float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("cosine: zero-magnitude vector")
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
