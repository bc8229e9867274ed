package main

import (
	"fmt"
	"math"
)

// ============================================================================
// Threshold decision
// ============================================================================
//
// The query is unique iff its best similarity is strictly below the
// threshold: a score exactly at the threshold counts as a match, not as
// unique.
//
// Two disclosure modes. "max" decrypts the encrypted maximum and compares in
// the clear; whoever sees the result also learns how close the nearest item
// is. "sign" subtracts the threshold under encryption, multiplies by a fresh
// positive blinding factor and decrypts only that product: its sign is the
// decision and its magnitude is blinded. The subtraction itself is free in
// depth, the blinding costs the pipeline's final level.

// Decision is the outcome of a run.
type Decision struct {
	IsUnique bool
	Mode     string

	// DecryptedMax is the revealed maximum in "max" mode and NaN in "sign"
	// mode, where it is deliberately not disclosed.
	DecryptedMax float64
}

// decideUnique is the decision rule: strictly below the threshold.
func decideUnique(max, threshold float64) bool {
	return max < threshold
}

// DecisionMaker turns the encrypted maximum into the uniqueness verdict.
type DecisionMaker struct {
	eng       *Engine
	coord     *Coordinator
	threshold float64
	mode      string
	blind     *blinder
	counter   uint32
}

func newDecisionMaker(eng *Engine, coord *Coordinator, threshold float64, mode string, blind *blinder) *DecisionMaker {
	return &DecisionMaker{eng: eng, coord: coord, threshold: threshold, mode: mode, blind: blind}
}

// Decide decrypts according to the disclosure mode and applies the rule.
func (d *DecisionMaker) Decide(encMax *EncryptedScore) (*Decision, error) {
	switch d.mode {
	case DisclosureMax:
		values, err := d.coord.Decrypt(encMax.Ct)
		if err != nil {
			return nil, err
		}
		max := values[0]
		return &Decision{
			IsUnique:     decideUnique(max, d.threshold),
			Mode:         d.mode,
			DecryptedMax: max,
		}, nil

	case DisclosureSign:
		if err := d.eng.ensureLevel(encMax.Ct, 1, "decision", -1); err != nil {
			return nil, err
		}
		eval := d.eng.freshEvaluator()

		diff, err := eval.SubNew(encMax.Ct, d.threshold)
		if err != nil {
			return nil, fmt.Errorf("failed to subtract threshold: %v", err)
		}

		r, err := d.blind.factor(d.counter)
		if err != nil {
			return nil, fmt.Errorf("failed to derive blinding factor: %v", err)
		}
		d.counter++

		blinded, err := eval.MulNew(diff, r)
		if err != nil {
			return nil, fmt.Errorf("failed to blind difference: %v", err)
		}
		if err := eval.Rescale(blinded, blinded); err != nil {
			return nil, fmt.Errorf("failed to rescale blinded difference: %v", err)
		}

		values, err := d.coord.Decrypt(blinded)
		if err != nil {
			return nil, err
		}
		// r > 0, so sign(r*(max-threshold)) == sign(max-threshold).
		return &Decision{
			IsUnique:     values[0] < 0,
			Mode:         d.mode,
			DecryptedMax: math.NaN(),
		}, nil

	default:
		return nil, &ConfigurationError{Field: "disclosure_mode", Reason: fmt.Sprintf("unknown mode %q", d.mode)}
	}
}
