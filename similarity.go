package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// ============================================================================
// Encrypted similarity
// ============================================================================
//
// The cosine similarity of two unit-norm packed vectors is their inner
// product: an element-wise ciphertext multiplication followed by a
// rotate-and-add slot sum. Slot 0 of the result carries the score; the other
// slots hold partial-sum residue and are never read.
//
// The multiplication costs the stage's single level. The rotations are free
// in depth and use the Galois keys generated at setup for exactly the
// power-of-two offsets the slot sum needs.

// SimilarityComputer evaluates encrypted similarity scores.
type SimilarityComputer struct {
	eng     *Engine
	workers int
	batch   int
}

func newSimilarityComputer(eng *Engine, workers, batch int) *SimilarityComputer {
	return &SimilarityComputer{eng: eng, workers: workers, batch: batch}
}

// slotSumRotations returns the rotation offsets the slot sum uses for a given
// dimension: 1, 2, 4, ... up to the next power of two.
func slotSumRotations(dim int) []int {
	ks := make([]int, 0, ceilLog2(dim))
	for i := 0; i < ceilLog2(dim); i++ {
		ks = append(ks, 1<<i)
	}
	return ks
}

// Compute evaluates the encrypted similarity of the query against one item.
// index identifies the item in errors.
func (s *SimilarityComputer) Compute(eval *ckks.Evaluator, query, item *EncryptedVector, index int) (*EncryptedScore, error) {
	if item.Dim != query.Dim {
		return nil, &ValidationError{
			Index:  index,
			Reason: fmt.Sprintf("dimension %d does not match query dimension %d", item.Dim, query.Dim),
		}
	}
	if err := s.eng.ensureLevel(query.Ct, 1, "similarity", -1); err != nil {
		return nil, err
	}
	if err := s.eng.ensureLevel(item.Ct, 1, "similarity", -1); err != nil {
		return nil, err
	}

	prod, err := eval.MulRelinNew(query.Ct, item.Ct)
	if err != nil {
		return nil, fmt.Errorf("failed to multiply item %d: %v", index, err)
	}
	if err := eval.Rescale(prod, prod); err != nil {
		return nil, fmt.Errorf("failed to rescale item %d: %v", index, err)
	}

	// Rotate-and-add: after k doublings slot 0 holds the sum of the first
	// 2^k slots, which covers the whole vector thanks to the zero padding.
	for _, k := range slotSumRotations(query.Dim) {
		rot, err := eval.RotateNew(prod, k)
		if err != nil {
			return nil, fmt.Errorf("failed to rotate item %d by %d: %v", index, k, err)
		}
		if prod, err = eval.AddNew(prod, rot); err != nil {
			return nil, fmt.Errorf("failed to accumulate item %d: %v", index, err)
		}
	}
	return &EncryptedScore{Ct: prod}, nil
}

// ComputeAll evaluates all similarity scores in parallel, handing items to
// workers in batches.
//
// Invalid items fail individually: their slots in the returned score slice
// are nil and their ValidationErrors are collected. Any other error (depth
// exhaustion first among them) aborts the whole batch.
func (s *SimilarityComputer) ComputeAll(query *EncryptedVector, items []*EncryptedVector) ([]*EncryptedScore, []error, error) {
	scores := make([]*EncryptedScore, len(items))
	errs := make([]error, len(items))

	batch := s.batch
	if batch < 1 {
		batch = 1
	}
	type span struct{ lo, hi int }
	tasks := make(chan span, (len(items)+batch-1)/batch)
	for lo := 0; lo < len(items); lo += batch {
		hi := lo + batch
		if hi > len(items) {
			hi = len(items)
		}
		tasks <- span{lo, hi}
	}
	close(tasks)

	workers := s.workers
	if workers > len(items) {
		workers = len(items)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eval := s.eng.freshEvaluator()
			for sp := range tasks {
				for i := sp.lo; i < sp.hi; i++ {
					scores[i], errs[i] = s.Compute(eval, query, items[i], i)
				}
			}
		}()
	}
	wg.Wait()

	var itemErrs []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var ve *ValidationError
		if errors.As(err, &ve) {
			itemErrs = append(itemErrs, err)
			continue
		}
		return nil, nil, err
	}
	return scores, itemErrs, nil
}
