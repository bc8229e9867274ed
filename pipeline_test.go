package main

import (
	"errors"
	"math"
	"strings"
	"testing"
)

// testConfigSmall is a full-pipeline configuration that fits the logN=13
// test preset: 8 items at polynomial degree 15 need exactly its 16 levels.
func testConfigSmall() Config {
	return Config{
		Dimension:           8,
		DatabaseSize:        8,
		LogN:                13,
		AbsDegree:           15,
		Threshold:           0.5,
		Parties:             1,
		DecryptionThreshold: 1,
		QuorumWaitMS:        10000,
		Workers:             2,
		Seed:                7,
	}
}

// TestRunSyntheticMax runs the whole pipeline on the seeded synthetic
// scenario and checks the report against the plaintext baseline.
func TestRunSyntheticMax(t *testing.T) {
	rep, err := Run(testConfigSmall(), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if rep.Reduction.Inputs != 8 || rep.Reduction.Rounds != 3 {
		t.Errorf("reduction trace: inputs=%d rounds=%d, want 8 and 3", rep.Reduction.Inputs, rep.Reduction.Rounds)
	}
	if rep.Scores.Max != rep.PlaintextMax {
		t.Errorf("score stats max %v != plaintext max %v", rep.Scores.Max, rep.PlaintextMax)
	}
	if rep.PlaintextArgmax < 0 || rep.PlaintextArgmax >= 8 {
		t.Errorf("argmax %d out of range", rep.PlaintextArgmax)
	}
	if want := 3 * rep.Approximation.MaxError; rep.ErrorBound != want {
		t.Errorf("error bound %v, want rounds*maxErr = %v", rep.ErrorBound, want)
	}

	if rep.DecryptedMax == nil || rep.AbsoluteError == nil || rep.WithinTolerance == nil {
		t.Fatal("max disclosure must reveal the decrypted maximum and its error")
	}
	t.Logf("plaintext max %.6f, decrypted %.6f, abs error %.3e (bound %.3e)",
		rep.PlaintextMax, *rep.DecryptedMax, *rep.AbsoluteError, rep.ErrorBound)
	if *rep.AbsoluteError > rep.ErrorBound+1e-2 {
		t.Errorf("absolute error %v exceeds guaranteed bound %v", *rep.AbsoluteError, rep.ErrorBound)
	}
	if *rep.WithinTolerance {
		if len(rep.ErrorSources) != 0 {
			t.Errorf("within tolerance but %d error sources reported", len(rep.ErrorSources))
		}
	} else if len(rep.ErrorSources) != 3 {
		t.Errorf("expected 3 error sources, got %d", len(rep.ErrorSources))
	}

	// The decisions provably agree when the true maximum clears the
	// threshold by more than the worst-case approximation error.
	if math.Abs(rep.PlaintextMax-rep.Config.Threshold) > rep.ErrorBound+0.01 && !rep.DecisionsAgree {
		t.Errorf("decisions disagree despite %.3f margin", math.Abs(rep.PlaintextMax-rep.Config.Threshold))
	}
}

// TestRunPlantedDuplicate: a database containing the query itself can never
// be unique, in the clear or under encryption.
func TestRunPlantedDuplicate(t *testing.T) {
	vecs, err := generateVectors(9, 8, 3)
	if err != nil {
		t.Fatal(err)
	}
	query := vecs[0]
	db := vecs[1:]
	db[3] = query

	rep, err := Run(testConfigSmall(), query, db, nil)
	if err != nil {
		t.Fatal(err)
	}

	if rep.PlaintextMax < 0.999 {
		t.Errorf("planted duplicate should score ~1, got %v", rep.PlaintextMax)
	}
	if rep.PlaintextArgmax != 3 {
		t.Errorf("argmax %d, want 3", rep.PlaintextArgmax)
	}
	if rep.IsUniquePlaintext || rep.IsUniqueEncrypted {
		t.Errorf("duplicate reported unique: plaintext=%v encrypted=%v",
			rep.IsUniquePlaintext, rep.IsUniqueEncrypted)
	}
	if !rep.DecisionsAgree {
		t.Error("decisions should agree on a planted duplicate")
	}
	if rep.DecryptedMax == nil {
		t.Fatal("max disclosure must reveal the decrypted maximum")
	}
	if *rep.DecryptedMax <= rep.Config.Threshold {
		t.Errorf("decrypted max %v should clear the threshold", *rep.DecryptedMax)
	}
}

// TestRunComputedThresholdUnique reruns the synthetic scenario with the
// threshold lifted above the observed maximum plus the worst-case error, so
// both paths must report unique.
func TestRunComputedThresholdUnique(t *testing.T) {
	first, err := Run(testConfigSmall(), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testConfigSmall()
	cfg.Threshold = first.PlaintextMax + first.ErrorBound + 0.05
	rep, err := Run(cfg, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if rep.PlaintextMax != first.PlaintextMax {
		t.Errorf("seeded scenario not deterministic: %v vs %v", rep.PlaintextMax, first.PlaintextMax)
	}
	if !rep.IsUniquePlaintext || !rep.IsUniqueEncrypted {
		t.Errorf("expected unique under threshold %v: plaintext=%v encrypted=%v",
			cfg.Threshold, rep.IsUniquePlaintext, rep.IsUniqueEncrypted)
	}
	if !rep.DecisionsAgree {
		t.Error("decisions should agree with the threshold clear of the error bound")
	}
}

// TestRunSignMode: sign disclosure decides without revealing the maximum.
func TestRunSignMode(t *testing.T) {
	vecs, err := generateVectors(5, 8, 5)
	if err != nil {
		t.Fatal(err)
	}
	query := vecs[0]
	db := vecs[1:]
	db[2] = query

	cfg := testConfigSmall()
	cfg.DatabaseSize = 4
	cfg.DisclosureMode = DisclosureSign
	rep, err := Run(cfg, query, db, nil)
	if err != nil {
		t.Fatal(err)
	}

	if rep.IsUniquePlaintext || rep.IsUniqueEncrypted {
		t.Errorf("duplicate reported unique: plaintext=%v encrypted=%v",
			rep.IsUniquePlaintext, rep.IsUniqueEncrypted)
	}
	if !rep.DecisionsAgree {
		t.Error("decisions should agree on a planted duplicate")
	}
	if rep.DecryptedMax != nil || rep.AbsoluteError != nil || rep.WithinTolerance != nil {
		t.Error("sign disclosure must not reveal the maximum or its error")
	}
	if len(rep.ErrorSources) != 0 {
		t.Errorf("sign disclosure reported error sources: %v", rep.ErrorSources)
	}
	if rep.Reduction.Rounds != 2 {
		t.Errorf("rounds = %d, want 2", rep.Reduction.Rounds)
	}
}

// TestRunRejectsZeroQuery: a query that cannot be normalized aborts the run.
func TestRunRejectsZeroQuery(t *testing.T) {
	vecs, err := generateVectors(3, 8, 9)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Run(testConfigSmall(), make([]float64, 8), vecs, nil)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Index != -1 {
		t.Errorf("Index = %d, want -1 for the query", ve.Index)
	}
	if !strings.Contains(err.Error(), "zero norm") {
		t.Errorf("unexpected message: %v", err)
	}
}

// TestRunSkipsInvalidItems: invalid database items are skipped and recorded,
// the rest of the run proceeds, and the argmax refers to original positions.
func TestRunSkipsInvalidItems(t *testing.T) {
	vecs, err := generateVectors(4, 8, 11)
	if err != nil {
		t.Fatal(err)
	}
	query := vecs[0]
	db := [][]float64{
		make([]float64, 8),
		make([]float64, 4),
		vecs[1],
		vecs[2],
		vecs[3],
		query,
	}

	rep, err := Run(testConfigSmall(), query, db, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(rep.SkippedItems) != 2 {
		t.Fatalf("skipped %d items, want 2: %v", len(rep.SkippedItems), rep.SkippedItems)
	}
	if !strings.Contains(rep.SkippedItems[0], "item 0") {
		t.Errorf("first skip should name item 0: %s", rep.SkippedItems[0])
	}
	if !strings.Contains(rep.SkippedItems[1], "item 1") {
		t.Errorf("second skip should name item 1: %s", rep.SkippedItems[1])
	}
	if rep.Reduction.Inputs != 4 {
		t.Errorf("reduction inputs = %d, want 4 surviving items", rep.Reduction.Inputs)
	}
	if rep.PlaintextArgmax != 5 {
		t.Errorf("argmax = %d, want the duplicate's original position 5", rep.PlaintextArgmax)
	}
	if rep.IsUniquePlaintext || rep.IsUniqueEncrypted {
		t.Error("duplicate reported unique")
	}
}

func TestRunMismatchedQueryDimension(t *testing.T) {
	vecs, err := generateVectors(2, 8, 13)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Run(testConfigSmall(), []float64{1, 0, 0, 0}, vecs, nil)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Index != -1 {
		t.Errorf("Index = %d, want -1 for the query", ve.Index)
	}
	if !strings.Contains(err.Error(), "does not match") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestRunQueryWithoutDatabase(t *testing.T) {
	_, err := Run(testConfigSmall(), []float64{1, 0, 0, 0, 0, 0, 0, 0}, nil, nil)

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(err.Error(), "together") {
		t.Errorf("unexpected message: %v", err)
	}
}

// TestRunFullScenario is the reference scenario at full size: 100 items of
// dimension 64 under the 128-bit preset, degree-31 approximation, 2-of-3
// threshold decryption.
func TestRunFullScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("full-size scenario, minutes of evaluation")
	}

	rep, err := Run(Config{}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if rep.Config.LogN != 16 || rep.Config.SecurityLevel != 128 {
		t.Errorf("defaults: logN=%d security=%d, want 16 and 128", rep.Config.LogN, rep.Config.SecurityLevel)
	}
	if rep.Reduction.Inputs != 100 || rep.Reduction.Rounds != 7 {
		t.Errorf("reduction trace: inputs=%d rounds=%d, want 100 and 7", rep.Reduction.Inputs, rep.Reduction.Rounds)
	}
	if rep.DecryptedMax == nil || rep.AbsoluteError == nil {
		t.Fatal("max disclosure must reveal the decrypted maximum")
	}
	t.Logf("plaintext max %.6f (argmax %d), decrypted %.6f, abs error %.3e (bound %.3e)",
		rep.PlaintextMax, rep.PlaintextArgmax, *rep.DecryptedMax, *rep.AbsoluteError, rep.ErrorBound)
	t.Logf("timings ms: setup=%.0f encrypt=%.0f similarity=%.0f reduce=%.0f decide=%.0f",
		rep.Timings.SetupMS, rep.Timings.EncryptMS, rep.Timings.SimilarityMS,
		rep.Timings.ReduceMS, rep.Timings.DecideMS)
	if *rep.AbsoluteError > rep.ErrorBound+1e-2 {
		t.Errorf("absolute error %v exceeds guaranteed bound %v", *rep.AbsoluteError, rep.ErrorBound)
	}
	if math.Abs(rep.PlaintextMax-rep.Config.Threshold) > rep.ErrorBound+0.01 && !rep.DecisionsAgree {
		t.Errorf("decisions disagree despite %.3f margin", math.Abs(rep.PlaintextMax-rep.Config.Threshold))
	}
}
