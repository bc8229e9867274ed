package main

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

// ============================================================================
// CKKS parameter presets
// ============================================================================
//
// Each preset fixes the full moduli chain and the default scale. The middle
// primes match the default scale so that every rescaling divides by a prime of
// the same magnitude as the scale, and all pipeline operands are additionally
// encoded at exact prime scales (see engine.go) so ciphertexts return to
// precisely the default scale after each multiplication.
//
// logN 15 and 16 respect the 128-bit classical security bounds on logQP
// (881 and 1761 bits respectively, uniform ternary secret). logN 13 and 14 are
// undersized test presets: their chains exceed the secure logQP budget for
// their ring degree and must never protect real data.

// getParams returns the parameter set for the given ring degree.
func getParams(logN int) (ckks.Parameters, error) {
	switch logN {
	case 13:
		// Test preset: 16 levels, fast keygen, NOT secure at this chain size.
		return ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
			LogN: 13,
			LogQ: []int{55, 35, 35, 35, 35, 35, 35, 35, 35,
				35, 35, 35, 35, 35, 35, 35, 35},
			LogP:            []int{45, 45},
			LogDefaultScale: 35,
		})
	case 14:
		// Test preset: 12 levels, NOT secure at this chain size.
		return ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
			LogN: 14,
			LogQ: []int{55, 35, 35, 35, 35, 35, 35, 35, 35,
				35, 35, 35, 35},
			LogP:            []int{45, 45},
			LogDefaultScale: 35,
		})
	case 15:
		// 20 levels, logQP = 860 <= 881: 128-bit classical security.
		return ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
			LogN: 15,
			LogQ: []int{60, 35, 35, 35, 35, 35, 35, 35, 35,
				35, 35, 35, 35, 35, 35, 35, 35, 35, 35, 35, 35},
			LogP:            []int{50, 50},
			LogDefaultScale: 35,
		})
	case 16:
		// 48 levels, logQP = 1650 <= 1761: 128-bit classical security.
		// Deep enough for a 100-item tournament with a degree-31 absolute
		// value approximation plus the disclosure blinding level.
		return ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
			LogN: 16,
			LogQ: []int{60, 30, 30, 30, 30, 30, 30, 30, 30,
				30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30,
				30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30,
				30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30,
				30, 30, 30, 30, 30, 30, 30},
			LogP:            []int{50, 50, 50},
			LogDefaultScale: 30,
		})
	default:
		return ckks.Parameters{}, fmt.Errorf("unsupported logN %d (supported: 13, 14, 15, 16)", logN)
	}
}

// presetSecure reports whether the preset carries a 128-bit security claim.
func presetSecure(logN int) bool {
	return logN >= 15
}

// ceilLog2 returns ceil(log2(n)) for n >= 1.
func ceilLog2(n int) int {
	k := 0
	for (1 << k) < n {
		k++
	}
	return k
}

// tournamentRounds returns the number of pairwise elimination rounds needed
// to reduce n scores to one.
func tournamentRounds(n int) int {
	return ceilLog2(n)
}

// absApproxDepth returns the number of levels one secureMax call consumes:
// one for the change of basis into the Chebyshev interval, then
// ceil(log2(degree+1)) for the polynomial evaluation itself. The half-sum
// branch spends only one of these levels and is aligned by level dropping.
func absApproxDepth(degree int) int {
	return 1 + ceilLog2(degree+1)
}

// requiredDepth returns the total number of levels a full run consumes:
// one for the similarity products, the tournament rounds, and one more for
// the disclosure blinding when only the sign of the comparison is revealed.
func requiredDepth(dbSize, degree int, signDisclosure bool) int {
	d := 1 + tournamentRounds(dbSize)*absApproxDepth(degree)
	if signDisclosure {
		d++
	}
	return d
}
