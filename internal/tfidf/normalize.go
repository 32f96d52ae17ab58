package tfidf

import (
	"gonum.org/v1/gonum/floats"
)

// Normalize returns v scaled to unit Euclidean length. The zero vector is
// returned as a zero vector. v is not modified.
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}

	norm := floats.Norm(v, 2)
	if norm == 0 {
		return out
	}
	floats.ScaleTo(out, 1/norm, v)
	return out
}

// NormalizeAll L2-normalizes every vector independently
func NormalizeAll(vectors [][]float64) [][]float64 {
	out := make([][]float64, len(vectors))
	for i, v := range vectors {
		out[i] = Normalize(v)
	}
	return out
}
