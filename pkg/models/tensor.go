package models

import "context"

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// EmbeddingExtractor turns a preprocessed face tensor into a raw embedding. Implementations
// must be deterministic and safe for concurrent use.
type EmbeddingExtractor interface {
	Extract(ctx context.Context, tensor *Tensor) ([]float32, error)
}
