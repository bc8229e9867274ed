package main

import (
	"math"
	"testing"
)

// TestGenerateVectorsDeterministic: the same seed reproduces the same
// vectors, a different seed does not.
func TestGenerateVectorsDeterministic(t *testing.T) {
	a, err := generateVectors(5, 16, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := generateVectors(5, 16, 42)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("same seed diverged at [%d][%d]: %v vs %v", i, j, a[i][j], b[i][j])
			}
		}
	}

	c, err := generateVectors(5, 16, 43)
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for i := range a {
		for j := range a[i] {
			if a[i][j] != c[i][j] {
				same = false
			}
		}
	}
	if same {
		t.Error("different seeds produced identical vectors")
	}
}

func TestGenerateVectorsUnitNorm(t *testing.T) {
	vecs, err := generateVectors(10, 64, 7)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vecs {
		var sum float64
		for _, x := range v {
			sum += x * x
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-9 {
			t.Errorf("vector %d: norm %v, expected 1", i, math.Sqrt(sum))
		}
	}
}

func TestNormalizeL2RejectsZero(t *testing.T) {
	if _, err := normalizeL2(make([]float64, 8)); err == nil {
		t.Fatal("expected an error for the zero vector")
	}
}

// TestPlaintextBaseline checks scores, maximum and argmax on hand-computed
// inputs.
func TestPlaintextBaseline(t *testing.T) {
	query := []float64{1, 0}
	db := [][]float64{{0, 1}, {1, 0}, {0.6, 0.8}}

	scores, max, argmax := plaintextBaseline(query, db)

	want := []float64{0, 1, 0.6}
	for i := range want {
		if math.Abs(scores[i]-want[i]) > 1e-12 {
			t.Errorf("score %d: expected %v, got %v", i, want[i], scores[i])
		}
	}
	if max != 1 || argmax != 1 {
		t.Errorf("expected max 1 at index 1, got %v at %d", max, argmax)
	}
}
