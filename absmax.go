package main

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"github.com/tuneinsight/lattigo/v6/circuits/ckks/polynomial"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
	"github.com/tuneinsight/lattigo/v6/utils/bignum"
)

// ============================================================================
// Absolute value approximation and the encrypted maximum of two scores
// ============================================================================
//
// CKKS has no native comparison. The maximum of two encrypted values comes
// from the identity
//
//	max(a, b) = (a+b)/2 + |a-b|/2
//
// with |x|/2 replaced by a bounded-degree Chebyshev interpolation, evaluated
// homomorphically. The approximation error is worst near a == b, where either
// answer is close to correct anyway; the profile below measures the worst
// case over the whole interval and the tournament's total error is bounded by
// rounds * maxErr.
//
// Interval: similarity scores of unit-norm vectors lie in [-1, 1] by
// Cauchy-Schwarz, so exact score differences lie in [-2, 2]. Intermediate
// tournament values additionally carry accumulated approximation error, up to
// 0.2 at the supported depths, so the interpolation interval is widened to
// [-2.4, 2.4] and intermediate differences never leave the certified domain.

const (
	absIntervalA = -2.4
	absIntervalB = 2.4
)

// absApprox is a degree-bounded polynomial approximation of x -> |x|/2 on
// [absIntervalA, absIntervalB], with its measured error profile.
type absApprox struct {
	poly   bignum.Polynomial
	degree int

	// MaxErr and MeanErr are measured over a dense grid at construction.
	MaxErr  float64
	MeanErr float64
}

// newAbsApprox interpolates |x|/2 at Chebyshev nodes of the given degree and
// profiles the result against math.Abs.
func newAbsApprox(degree int, prec uint) (*absApprox, error) {
	if degree < 1 {
		return nil, &ConfigurationError{Field: "abs_degree", Reason: "must be at least 1"}
	}
	f := func(x float64) float64 {
		return math.Abs(x) / 2
	}
	interval := bignum.Interval{
		Nodes: degree,
		A:     *bignum.NewFloat(absIntervalA, prec),
		B:     *bignum.NewFloat(absIntervalB, prec),
	}
	a := &absApprox{
		poly:   bignum.ChebyshevApproximation(f, interval),
		degree: degree,
	}
	if err := a.measure(4801); err != nil {
		return nil, err
	}
	return a, nil
}

// evalPlain evaluates the approximation polynomial in the clear.
func (a *absApprox) evalPlain(x float64) float64 {
	return real(a.poly.Evaluate(x).Complex128())
}

// plainMax is the plaintext reference of secureMax: the same identity with
// the same polynomial, without encryption. Tests compare the encrypted path
// against it to isolate ciphertext noise from approximation error.
func (a *absApprox) plainMax(x, y float64) float64 {
	return (x+y)/2 + a.evalPlain(x-y)
}

// depth returns the number of levels one secureMax call consumes.
func (a *absApprox) depth() int {
	return absApproxDepth(a.degree)
}

// measure profiles |evalPlain(x) - |x|/2| on a uniform grid over the
// interpolation interval.
func (a *absApprox) measure(samples int) error {
	errs := make([]float64, samples)
	step := (absIntervalB - absIntervalA) / float64(samples-1)
	for i := range errs {
		x := absIntervalA + float64(i)*step
		errs[i] = math.Abs(a.evalPlain(x) - math.Abs(x)/2)
	}
	maxErr, err := stats.Max(errs)
	if err != nil {
		return fmt.Errorf("failed to profile approximation: %v", err)
	}
	meanErr, err := stats.Mean(errs)
	if err != nil {
		return fmt.Errorf("failed to profile approximation: %v", err)
	}
	a.MaxErr = maxErr
	a.MeanErr = meanErr
	return nil
}

// secureMax computes an encryption of approximately max(a, b).
//
// The two operands are first aligned to a common level (a pass-through
// survivor from an earlier round sits higher than its opponent). The half-sum
// branch spends one level; the absolute value branch spends one level on the
// change of basis and ceil(log2(degree+1)) on the polynomial, and the
// half-sum is dropped to its level for the final addition. Both branches land
// exactly on the default scale, so the addition needs no scale correction.
func secureMax(eng *Engine, eval *ckks.Evaluator, polyEval *polynomial.Evaluator, a, b *EncryptedScore, approx *absApprox, round int) (*EncryptedScore, error) {
	cta, ctb := a.Ct, b.Ct
	if cta.Level() > ctb.Level() {
		cta = cta.CopyNew()
		eval.DropLevel(cta, cta.Level()-ctb.Level())
	} else if ctb.Level() > cta.Level() {
		ctb = ctb.CopyNew()
		eval.DropLevel(ctb, ctb.Level()-cta.Level())
	}

	if err := eng.ensureLevel(cta, approx.depth(), "secure-max", round); err != nil {
		return nil, err
	}

	sum, err := eval.AddNew(cta, ctb)
	if err != nil {
		return nil, fmt.Errorf("failed to add operands: %v", err)
	}
	diff, err := eval.SubNew(cta, ctb)
	if err != nil {
		return nil, fmt.Errorf("failed to subtract operands: %v", err)
	}

	// Change of basis y = (2x - a - b)/(b - a) into the Chebyshev domain.
	scalarmul, scalaradd := approx.poly.ChangeOfBasis()
	y, err := eval.MulNew(diff, scalarmul)
	if err != nil {
		return nil, fmt.Errorf("failed to apply change of basis: %v", err)
	}
	if err := eval.Add(y, scalaradd, y); err != nil {
		return nil, fmt.Errorf("failed to apply change of basis: %v", err)
	}
	if err := eval.Rescale(y, y); err != nil {
		return nil, fmt.Errorf("failed to rescale after change of basis: %v", err)
	}

	absHalf, err := polyEval.Evaluate(y, approx.poly, eng.params.DefaultScale())
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate abs polynomial: %v", err)
	}

	half, err := eval.MulNew(sum, 0.5)
	if err != nil {
		return nil, fmt.Errorf("failed to halve sum: %v", err)
	}
	if err := eval.Rescale(half, half); err != nil {
		return nil, fmt.Errorf("failed to rescale halved sum: %v", err)
	}
	if half.Level() > absHalf.Level() {
		eval.DropLevel(half, half.Level()-absHalf.Level())
	}

	out, err := eval.AddNew(half, absHalf)
	if err != nil {
		return nil, fmt.Errorf("failed to combine branches: %v", err)
	}
	return &EncryptedScore{Ct: out}, nil
}
