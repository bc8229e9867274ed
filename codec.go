package main

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// ============================================================================
// Vector codec
// ============================================================================
//
// Embeddings are packed one per ciphertext: coordinate j in slot j, all
// remaining slots zero. The zero padding is load-bearing for the slot-sum in
// similarity.go: rotations past the vector's end pull in zeros, so partial
// sums stay exact for any dimension, not just powers of two.

// packVector pads a vector to the full slot count.
func (e *Engine) packVector(v []float64, index int) ([]float64, error) {
	if len(v) == 0 {
		return nil, &ValidationError{Index: index, Reason: "empty vector"}
	}
	if len(v) > e.params.MaxSlots() {
		return nil, &ValidationError{
			Index:  index,
			Reason: fmt.Sprintf("dimension %d exceeds the %d available slots", len(v), e.params.MaxSlots()),
		}
	}
	packed := make([]float64, e.params.MaxSlots())
	copy(packed, v)
	return packed, nil
}

// EncryptQuery encrypts the query vector at the default scale.
func (e *Engine) EncryptQuery(v []float64) (*EncryptedVector, error) {
	return e.encryptPacked(v, -1, false)
}

// EncryptItem encrypts a database item at the prime scale of the top level,
// so its product with the query rescales exactly back to the default scale.
func (e *Engine) EncryptItem(v []float64, index int) (*EncryptedVector, error) {
	return e.encryptPacked(v, index, true)
}

func (e *Engine) encryptPacked(v []float64, index int, primeScale bool) (*EncryptedVector, error) {
	packed, err := e.packVector(v, index)
	if err != nil {
		return nil, err
	}
	level := e.params.MaxLevel()
	pt := ckks.NewPlaintext(e.params, level)
	if primeScale {
		pt.Scale = rlwe.NewScale(e.params.Q()[level])
	}
	if err := e.encoder.ShallowCopy().Encode(packed, pt); err != nil {
		return nil, fmt.Errorf("failed to encode vector: %v", err)
	}
	ct, err := e.encryptor.ShallowCopy().EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt vector: %v", err)
	}
	return &EncryptedVector{Ct: ct, Dim: len(v)}, nil
}
