package main

import (
	"errors"
	"math"
	"testing"
	"time"
)

// setupDecisionTest builds a single-party coordinator, an engine under the
// collective key and a deterministic blinder.
func setupDecisionTest(t *testing.T) (*Engine, *Coordinator, *blinder) {
	t.Helper()

	params, err := getParams(13)
	if err != nil {
		t.Fatal(err)
	}
	pk, evk, coord, err := setupParties(params, 1, 1, nil, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	coord.Start()
	t.Cleanup(coord.Close)

	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	blind, err := newBlinder(seed)
	if err != nil {
		t.Fatal(err)
	}
	return newEngine(params, pk, evk, params.MaxLevel()), coord, blind
}

// encryptMax wraps a scalar as an encrypted score under the collective key.
func encryptMax(t *testing.T, eng *Engine, x float64) *EncryptedScore {
	t.Helper()
	ev, err := eng.EncryptQuery([]float64{x})
	if err != nil {
		t.Fatal(err)
	}
	return &EncryptedScore{Ct: ev.Ct}
}

// TestDecideUniqueRule: unique means strictly below the threshold, so a
// score exactly at the threshold is a match.
func TestDecideUniqueRule(t *testing.T) {
	cases := []struct {
		max, threshold float64
		unique         bool
	}{
		{0.3, 0.5, true},
		{0.5, 0.5, false},
		{0.7, 0.5, false},
		{-0.2, 0.0, true},
	}
	for _, c := range cases {
		if got := decideUnique(c.max, c.threshold); got != c.unique {
			t.Errorf("decideUnique(%v, %v) = %v, want %v", c.max, c.threshold, got, c.unique)
		}
	}
}

func TestDecideMaxMode(t *testing.T) {
	eng, coord, blind := setupDecisionTest(t)

	cases := []struct {
		max    float64
		unique bool
	}{
		{0.3, true},
		{0.7, false},
	}
	for _, c := range cases {
		dm := newDecisionMaker(eng, coord, 0.5, DisclosureMax, blind)
		dec, err := dm.Decide(encryptMax(t, eng, c.max))
		if err != nil {
			t.Fatal(err)
		}
		if dec.IsUnique != c.unique {
			t.Errorf("max=%v: IsUnique = %v, want %v", c.max, dec.IsUnique, c.unique)
		}
		if dec.Mode != DisclosureMax {
			t.Errorf("max=%v: Mode = %q, want %q", c.max, dec.Mode, DisclosureMax)
		}
		if math.Abs(dec.DecryptedMax-c.max) > 1e-3 {
			t.Errorf("max=%v: DecryptedMax = %v", c.max, dec.DecryptedMax)
		}
	}
}

// TestDecideSignMode: the verdict comes from the sign of the blinded
// difference and the maximum itself stays hidden.
func TestDecideSignMode(t *testing.T) {
	eng, coord, blind := setupDecisionTest(t)

	cases := []struct {
		max    float64
		unique bool
	}{
		{0.3, true},
		{0.7, false},
	}
	for _, c := range cases {
		dm := newDecisionMaker(eng, coord, 0.5, DisclosureSign, blind)
		dec, err := dm.Decide(encryptMax(t, eng, c.max))
		if err != nil {
			t.Fatal(err)
		}
		if dec.IsUnique != c.unique {
			t.Errorf("max=%v: IsUnique = %v, want %v", c.max, dec.IsUnique, c.unique)
		}
		if dec.Mode != DisclosureSign {
			t.Errorf("max=%v: Mode = %q, want %q", c.max, dec.Mode, DisclosureSign)
		}
		if !math.IsNaN(dec.DecryptedMax) {
			t.Errorf("max=%v: DecryptedMax = %v, want NaN", c.max, dec.DecryptedMax)
		}
	}
}

func TestDecideUnknownMode(t *testing.T) {
	eng, coord, blind := setupDecisionTest(t)

	dm := newDecisionMaker(eng, coord, 0.5, "both", blind)
	_, err := dm.Decide(encryptMax(t, eng, 0.3))

	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if ce.Field != "disclosure_mode" {
		t.Errorf("Field = %q, want disclosure_mode", ce.Field)
	}
}
