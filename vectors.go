package main

import (
	"fmt"
	"math"
	"math/rand"
)

// ============================================================================
// Vector generation and the plaintext baseline
// ============================================================================
//
// The demo scenario works on synthetic unit-norm embeddings drawn from a
// seeded generator, so every run is reproducible and the encrypted pipeline
// can be checked against an exact plaintext computation of the same inputs.

// generateVectors returns n unit-norm vectors of the given dimension with
// standard normal coordinates, deterministically from the seed.
func generateVectors(n, dim int, seed int64) ([][]float64, error) {
	/* #nosec G404 -- synthetic demo data, not key material */
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float64, n)
	for i := range out {
		v := make([]float64, dim)
		for j := range v {
			v[j] = rng.NormFloat64()
		}
		nv, err := normalizeL2(v)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize generated vector %d: %v", i, err)
		}
		out[i] = nv
	}
	return out, nil
}

// normalizeL2 returns v scaled to unit Euclidean norm. A zero (or numerically
// vanishing) norm cannot be normalized and is rejected.
func normalizeL2(v []float64) ([]float64, error) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm < 1e-12 {
		return nil, fmt.Errorf("zero norm")
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, nil
}

// dotProduct returns the inner product of two equal-length vectors. For
// unit-norm inputs this is their cosine similarity.
func dotProduct(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// plaintextBaseline computes the exact similarity scores of the query against
// every database item, their maximum and its index. The encrypted pipeline is
// compared against these values in the run report.
func plaintextBaseline(query []float64, db [][]float64) (scores []float64, max float64, argmax int) {
	scores = make([]float64, len(db))
	max = math.Inf(-1)
	argmax = -1
	for i, item := range db {
		s := dotProduct(query, item)
		scores[i] = s
		if s > max {
			max = s
			argmax = i
		}
	}
	return scores, max, argmax
}
