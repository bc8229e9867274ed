package main

import (
	"fmt"
	"io"
	"math"

	"github.com/montanaflynn/stats"
)

// ============================================================================
// Run report
// ============================================================================
//
// Every run yields one record comparing the encrypted pipeline against the
// exact plaintext baseline on the same inputs: both decisions, the maxima,
// the absolute error, and when the error misses the tolerance, the candidate
// sources with their magnitudes so the dominant one is evident.

// ApproxInfo summarizes the absolute value approximation in force.
type ApproxInfo struct {
	Degree    int     `json:"degree"`
	MaxError  float64 `json:"max_error"`
	MeanError float64 `json:"mean_error"`
}

// ScoreStats summarizes the plaintext similarity distribution.
type ScoreStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Timings holds per-phase wall clock times.
type Timings struct {
	SetupMS      float64 `json:"setup_ms"`
	EncryptMS    float64 `json:"encrypt_ms"`
	SimilarityMS float64 `json:"similarity_ms"`
	ReduceMS     float64 `json:"reduce_ms"`
	DecideMS     float64 `json:"decide_ms"`
	TotalMS      float64 `json:"total_ms"`
}

// RunReport is the observable record of one uniqueness check.
type RunReport struct {
	Config Config `json:"config"`

	IsUniqueEncrypted bool `json:"is_unique_encrypted"`
	IsUniquePlaintext bool `json:"is_unique_plaintext"`
	DecisionsAgree    bool `json:"decisions_agree"`

	PlaintextMax    float64 `json:"plaintext_max"`
	PlaintextArgmax int     `json:"plaintext_argmax"`

	// DecryptedMax, AbsoluteError and WithinTolerance are absent in sign
	// disclosure mode, where the maximum is never revealed.
	DecryptedMax    *float64 `json:"decrypted_max,omitempty"`
	AbsoluteError   *float64 `json:"absolute_error,omitempty"`
	Tolerance       float64  `json:"tolerance"`
	WithinTolerance *bool    `json:"within_tolerance,omitempty"`
	ErrorSources    []string `json:"error_sources,omitempty"`

	// ErrorBound is the guaranteed worst case of the tournament's
	// approximation error: rounds times the polynomial's profiled maximum.
	ErrorBound float64 `json:"error_bound"`

	Approximation ApproxInfo      `json:"approximation"`
	Scores        ScoreStats      `json:"score_stats"`
	Reduction     *ReductionTrace `json:"reduction"`
	SkippedItems  []string        `json:"skipped_items,omitempty"`
	Timings       Timings         `json:"timings_ms"`
}

// buildReport assembles the record from the run's artifacts.
func buildReport(cfg Config, dec *Decision, ptScores []float64, ptMax float64, ptArgmax int,
	trace *ReductionTrace, approx *absApprox, skipped []error, timings Timings) (*RunReport, error) {

	sc, err := summarizeScores(ptScores)
	if err != nil {
		return nil, err
	}

	rep := &RunReport{
		Config:            cfg,
		IsUniqueEncrypted: dec.IsUnique,
		IsUniquePlaintext: decideUnique(ptMax, cfg.Threshold),
		PlaintextMax:      ptMax,
		PlaintextArgmax:   ptArgmax,
		Tolerance:         cfg.Tolerance,
		ErrorBound:        float64(trace.Rounds) * approx.MaxErr,
		Approximation: ApproxInfo{
			Degree:    approx.degree,
			MaxError:  approx.MaxErr,
			MeanError: approx.MeanErr,
		},
		Scores:    sc,
		Reduction: trace,
		Timings:   timings,
	}
	rep.DecisionsAgree = rep.IsUniqueEncrypted == rep.IsUniquePlaintext

	for _, err := range skipped {
		rep.SkippedItems = append(rep.SkippedItems, err.Error())
	}

	if !math.IsNaN(dec.DecryptedMax) {
		decMax := dec.DecryptedMax
		absErr := math.Abs(decMax - ptMax)
		within := absErr < cfg.Tolerance
		rep.DecryptedMax = &decMax
		rep.AbsoluteError = &absErr
		rep.WithinTolerance = &within
		if !within {
			rep.ErrorSources = errorSources(trace.Rounds, approx, cfg)
		}
	}
	return rep, nil
}

// errorSources lists the contributors to |decryptedMax - plaintextMax| with
// their magnitudes, largest first.
func errorSources(rounds int, approx *absApprox, cfg Config) []string {
	scaleBits := cfg.ScaleBits
	if scaleBits == 0 {
		if params, err := getParams(cfg.LogN); err == nil {
			scaleBits = params.LogDefaultScale()
		}
	}
	return []string{
		fmt.Sprintf("max-approximation error: up to %.2e per round over %d rounds (%.2e total)",
			approx.MaxErr, rounds, float64(rounds)*approx.MaxErr),
		fmt.Sprintf("decode noise flooding: %v-bit log precision (~%.1e)",
			decryptLogPrec, math.Pow(2, -float64(decryptLogPrec))),
		fmt.Sprintf("rescaling rounding: %d-bit scale (~%.1e per level)",
			scaleBits, math.Pow(2, -float64(scaleBits))),
	}
}

func summarizeScores(scores []float64) (ScoreStats, error) {
	if len(scores) == 0 {
		return ScoreStats{}, fmt.Errorf("no scores to summarize")
	}
	min, err := stats.Min(scores)
	if err != nil {
		return ScoreStats{}, fmt.Errorf("failed to summarize scores: %v", err)
	}
	max, err := stats.Max(scores)
	if err != nil {
		return ScoreStats{}, fmt.Errorf("failed to summarize scores: %v", err)
	}
	mean, err := stats.Mean(scores)
	if err != nil {
		return ScoreStats{}, fmt.Errorf("failed to summarize scores: %v", err)
	}
	sd, err := stats.StandardDeviation(scores)
	if err != nil {
		return ScoreStats{}, fmt.Errorf("failed to summarize scores: %v", err)
	}
	return ScoreStats{Min: min, Max: max, Mean: mean, StdDev: sd}, nil
}

// renderReport writes the human-readable summary.
func renderReport(w io.Writer, rep *RunReport) {
	fmt.Fprintf(w, "---- uniqueness check ----\n")
	fmt.Fprintf(w, "dimension=%d database=%d threshold=%v disclosure=%s parties=%d quorum=%d\n",
		rep.Config.Dimension, rep.Config.DatabaseSize, rep.Config.Threshold,
		rep.Config.DisclosureMode, rep.Config.Parties, rep.Config.DecryptionThreshold)
	fmt.Fprintf(w, "plaintext:  max=%.6f argmax=%d unique=%v\n",
		rep.PlaintextMax, rep.PlaintextArgmax, rep.IsUniquePlaintext)
	if rep.DecryptedMax != nil {
		fmt.Fprintf(w, "encrypted:  max=%.6f unique=%v\n", *rep.DecryptedMax, rep.IsUniqueEncrypted)
		fmt.Fprintf(w, "abs error:  %.3e (tolerance %.1e, within=%v, guaranteed bound %.3e)\n",
			*rep.AbsoluteError, rep.Tolerance, *rep.WithinTolerance, rep.ErrorBound)
		for _, s := range rep.ErrorSources {
			fmt.Fprintf(w, "  source: %s\n", s)
		}
	} else {
		fmt.Fprintf(w, "encrypted:  unique=%v (sign-only disclosure, maximum not revealed)\n", rep.IsUniqueEncrypted)
	}
	fmt.Fprintf(w, "decisions agree: %v\n", rep.DecisionsAgree)
	if len(rep.SkippedItems) > 0 {
		fmt.Fprintf(w, "skipped %d invalid items\n", len(rep.SkippedItems))
	}
	fmt.Fprintf(w, "reduction: %d inputs, %d rounds, approximation degree %d (max err %.2e)\n",
		rep.Reduction.Inputs, rep.Reduction.Rounds, rep.Approximation.Degree, rep.Approximation.MaxError)
	fmt.Fprintf(w, "timings ms: setup=%.0f encrypt=%.0f similarity=%.0f reduce=%.0f decide=%.0f total=%.0f\n",
		rep.Timings.SetupMS, rep.Timings.EncryptMS, rep.Timings.SimilarityMS,
		rep.Timings.ReduceMS, rep.Timings.DecideMS, rep.Timings.TotalMS)
}
