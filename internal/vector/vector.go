// Package vector defines the similarity-search collaborator used by the
// skill-match stage. An external embedding service sits behind the Embedder
// interface; a deterministic hashing embedder covers tests and degraded
// operation.
package vector

import (
	"context"
	"math"
)

// Embedder turns texts into fixed-width vectors. Implementations backed by a
// remote service must honor ctx deadlines and return
// sentinel.ErrUnavailable-wrapped errors for transient failures.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Cosine returns the cosine similarity of two vectors, 0 for degenerate
// input. Values are clamped to [0, 1]; negative similarity means "no match"
// for scoring purposes.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
