package main

import (
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/circuits/ckks/polynomial"
)

// ============================================================================
// Tournament reduction to the encrypted maximum
// ============================================================================
//
// N scores reduce to one in ceil(log2(N)) rounds. Each round pairs adjacent
// survivors into secureMax calls; with an odd survivor count the last one
// passes through unchanged and is level-aligned at its next pairing. Rounds
// are separated by hard barriers: round r+1 starts only after every pair of
// round r has finished, because its inputs are round r's outputs and all
// ciphertexts of a round must share the same depth accounting.
//
// The reducer never falls back to a cheaper aggregate: an encrypted sum is
// not an encrypted maximum, and no input deserves a silently wrong answer.

// MaxReducer runs the tournament.
type MaxReducer struct {
	eng     *Engine
	approx  *absApprox
	workers int
}

func newMaxReducer(eng *Engine, approx *absApprox, workers int) *MaxReducer {
	return &MaxReducer{eng: eng, approx: approx, workers: workers}
}

// ReductionTrace records the observable shape of one reduction.
type ReductionTrace struct {
	Inputs       int   `json:"inputs"`
	Rounds       int   `json:"rounds"`
	Pairs        []int `json:"pairs_per_round"`
	PassThroughs []int `json:"pass_throughs_per_round"`
}

// Reduce folds the scores into a single encrypted maximum.
//
// The depth budget is verified before any work starts: every round costs
// depth(approx) levels on top of the levels the inputs have already spent,
// and a shortfall is a configuration problem, reported before burning cycles
// on a computation that cannot finish.
func (r *MaxReducer) Reduce(scores []*EncryptedScore) (*EncryptedScore, *ReductionTrace, error) {
	n := len(scores)
	if n == 0 {
		return nil, nil, &ValidationError{Index: -1, Reason: "no scores to reduce"}
	}

	entry := scores[0].Level()
	for _, s := range scores[1:] {
		if s.Level() < entry {
			entry = s.Level()
		}
	}
	need := tournamentRounds(n) * r.approx.depth()
	have := entry - r.eng.levelFloor()
	if have < need {
		return nil, nil, &ConfigurationError{
			Field: "depth_budget",
			Reason: fmt.Sprintf("reducing %d scores takes %d rounds of %d levels (%d total) but only %d remain",
				n, tournamentRounds(n), r.approx.depth(), need, have),
		}
	}

	trace := &ReductionTrace{Inputs: n, Rounds: tournamentRounds(n)}
	survivors := make([]*EncryptedScore, n)
	copy(survivors, scores)

	for round := 1; len(survivors) > 1; round++ {
		pairs := len(survivors) / 2
		next := make([]*EncryptedScore, pairs)
		errs := make([]error, pairs)

		workers := r.workers
		if workers > pairs {
			workers = pairs
		}
		if workers < 1 {
			workers = 1
		}

		tasks := make(chan int, pairs)
		for j := 0; j < pairs; j++ {
			tasks <- j
		}
		close(tasks)

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				eval := r.eng.freshEvaluator()
				polyEval := polynomial.NewEvaluator(r.eng.params, eval)
				for j := range tasks {
					next[j], errs[j] = secureMax(r.eng, eval, polyEval, survivors[2*j], survivors[2*j+1], r.approx, round)
				}
			}()
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				return nil, nil, err
			}
		}

		trace.Pairs = append(trace.Pairs, pairs)
		if len(survivors)%2 == 1 {
			next = append(next, survivors[len(survivors)-1])
			trace.PassThroughs = append(trace.PassThroughs, 1)
		} else {
			trace.PassThroughs = append(trace.PassThroughs, 0)
		}
		survivors = next
	}

	return survivors[0], trace, nil
}
