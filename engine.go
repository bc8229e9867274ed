package main

import (
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// ============================================================================
// Homomorphic engine
// ============================================================================
//
// Engine bundles the capability needed by the pipeline stages: parameters,
// encoder, public-key encryptor and an evaluator loaded with the collective
// relinearization and rotation keys. It is immutable after construction; the
// shared evaluator is never used directly by concurrent stages, which take
// shallow copies instead.
//
// The decryption capability deliberately lives elsewhere (the threshold
// coordinator): no component holding an Engine can decrypt anything.

// Engine is the encryption and evaluation capability of a run.
type Engine struct {
	params    ckks.Parameters
	encoder   *ckks.Encoder
	encryptor *rlwe.Encryptor
	evaluator *ckks.Evaluator

	// depthBudget is the number of usable levels; maxLevel - depthBudget is
	// the floor below which no pipeline operation may descend.
	depthBudget int
}

// EncryptedVector is a packed, encrypted embedding. Dim is the declared
// number of meaningful slots; the remaining slots are encryptions of zero.
type EncryptedVector struct {
	Ct  *rlwe.Ciphertext
	Dim int
}

// Level returns the remaining multiplicative depth of the ciphertext.
func (v *EncryptedVector) Level() int {
	return v.Ct.Level()
}

// EncryptedScore is an encrypted scalar carried in slot 0.
type EncryptedScore struct {
	Ct *rlwe.Ciphertext
}

// Level returns the remaining multiplicative depth of the ciphertext.
func (s *EncryptedScore) Level() int {
	return s.Ct.Level()
}

// newEngine builds the evaluation capability from collective key material.
func newEngine(params ckks.Parameters, pk *rlwe.PublicKey, evk *rlwe.MemEvaluationKeySet, depthBudget int) *Engine {
	return &Engine{
		params:      params,
		encoder:     ckks.NewEncoder(params),
		encryptor:   rlwe.NewEncryptor(params, pk),
		evaluator:   ckks.NewEvaluator(params, evk),
		depthBudget: depthBudget,
	}
}

// levelFloor is the lowest level the pipeline may leave a ciphertext at.
func (e *Engine) levelFloor() int {
	return e.params.MaxLevel() - e.depthBudget
}

// ensureLevel verifies that a ciphertext can pay for `need` more levels
// without crossing the budget floor.
func (e *Engine) ensureLevel(ct *rlwe.Ciphertext, need int, stage string, round int) error {
	have := ct.Level() - e.levelFloor()
	if have < need {
		return &DepthExhaustedError{Stage: stage, Round: round, Have: have, Need: need}
	}
	return nil
}

// freshEvaluator returns an evaluator safe for use in a dedicated goroutine.
func (e *Engine) freshEvaluator() *ckks.Evaluator {
	return e.evaluator.ShallowCopy()
}
