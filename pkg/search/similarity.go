package search

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Similarity is the cosine similarity of two unit-length vectors, i.e. their dot product.
// Both vectors must have the same length.
func Similarity(a, b []float32) float32 {
	return vek32.Dot(a, b)
}

// Normalize returns a unit-length copy of v. ok is false when v has no direction
// (empty, all zeros, or non-finite), in which case no vector is returned.
func Normalize(v []float32) (normalized []float32, ok bool) {
	if len(v) == 0 {
		return nil, false
	}
	norm := vek32.Norm(v)
	if norm == 0 || math.IsNaN(float64(norm)) || math.IsInf(float64(norm), 0) {
		return nil, false
	}
	return vek32.DivNumber(v, norm), true
}
