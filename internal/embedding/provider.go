// Package embedding wraps the external embedding provider behind a small
// interface and owns the run-scoped cache and similarity math. The provider
// computes vectors; everything else (caching, thresholding) lives here.
package embedding

import (
	"context"
	"math"
)

// Provider computes an embedding vector for a piece of text. Implementations
// must be safe for concurrent use.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, text string) ([]float64, error)

func (f ProviderFunc) Embed(ctx context.Context, text string) ([]float64, error) {
	return f(ctx, text)
}

// Cosine returns the cosine similarity of two vectors, 0 when either vector
// is empty or zero-length in magnitude.
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
