package main

import (
	"fmt"
	"math"
	"runtime"
)

// ============================================================================
// Configuration
// ============================================================================

// Disclosure modes for the final decision.
//
// DisclosureMax decrypts the encrypted maximum itself and compares it to the
// threshold in the clear: simple, but the querying side learns how close the
// nearest database item is. DisclosureSign multiplies the encrypted difference
// (max - threshold) by a positive blinding factor before decryption, so only
// the sign of the comparison is revealed.
const (
	DisclosureMax  = "max"
	DisclosureSign = "sign"
)

const (
	defaultDimension    = 64
	defaultDatabaseSize = 100
	defaultLogN         = 16
	defaultAbsDegree    = 31
	defaultThreshold    = 0.5
	defaultParties      = 3
	defaultDecThreshold = 2
	defaultQuorumWaitMS = 5000
	defaultSeed         = 42
	defaultTolerance    = 1e-4
)

// Config is the full configuration surface of a run. Zero values are replaced
// by defaults in applyDefaults; Validate rejects anything inconsistent before
// cryptographic work starts.
type Config struct {
	// Dimension is the embedding dimension D.
	Dimension int `json:"dimension"`
	// DatabaseSize is the number of stored embeddings N.
	DatabaseSize int `json:"database_size"`
	// LogN selects the CKKS parameter preset (ring degree 2^LogN).
	LogN int `json:"log_n"`
	// ScaleBits, if nonzero, must match the preset's default scale.
	ScaleBits int `json:"scale_bits"`
	// SecurityLevel is 128 or 0 (0 allows the undersized test presets).
	SecurityLevel int `json:"security_level"`
	// DepthBudget, if nonzero, caps the usable multiplicative depth below the
	// preset's level count.
	DepthBudget int `json:"depth_budget"`
	// AbsDegree is the degree of the absolute value approximation polynomial.
	AbsDegree int `json:"abs_degree"`
	// Threshold is the similarity threshold: the query is unique iff its
	// best similarity is strictly below it.
	Threshold float64 `json:"threshold"`
	// DisclosureMode is "max" or "sign".
	DisclosureMode string `json:"disclosure_mode"`
	// Parties is the number of key-holding parties n.
	Parties int `json:"parties"`
	// DecryptionThreshold is the quorum size t (1 <= t <= n).
	DecryptionThreshold int `json:"decryption_threshold"`
	// QuorumWaitMS bounds the wait for decryption shares, in milliseconds.
	QuorumWaitMS int `json:"quorum_wait_ms"`
	// Workers is the parallelism of the similarity and reduction stages
	// (0 = number of CPUs).
	Workers int `json:"workers"`
	// BatchSize is the number of similarity items handed to a worker at a
	// time (0 = computed from Workers).
	BatchSize int `json:"batch_size"`
	// Seed drives the deterministic demo vector generation.
	Seed int64 `json:"seed"`
	// Tolerance is the reporting tolerance on |decryptedMax - plaintextMax|.
	Tolerance float64 `json:"tolerance"`
}

// defaultConfig returns the canonical demo configuration: D=64, N=100,
// threshold 0.5, production parameters, 2-of-3 decryption.
func defaultConfig() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Dimension == 0 {
		c.Dimension = defaultDimension
	}
	if c.DatabaseSize == 0 {
		c.DatabaseSize = defaultDatabaseSize
	}
	if c.LogN == 0 {
		c.LogN = defaultLogN
	}
	if c.SecurityLevel == 0 && c.LogN >= 15 {
		c.SecurityLevel = 128
	}
	if c.AbsDegree == 0 {
		c.AbsDegree = defaultAbsDegree
	}
	if c.Threshold == 0 {
		c.Threshold = defaultThreshold
	}
	if c.DisclosureMode == "" {
		c.DisclosureMode = DisclosureMax
	}
	if c.Parties == 0 {
		c.Parties = defaultParties
	}
	if c.DecryptionThreshold == 0 {
		if c.Parties == defaultParties {
			c.DecryptionThreshold = defaultDecThreshold
		} else {
			c.DecryptionThreshold = c.Parties
		}
	}
	if c.QuorumWaitMS == 0 {
		c.QuorumWaitMS = defaultQuorumWaitMS
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.BatchSize == 0 {
		c.BatchSize = (c.DatabaseSize + c.Workers - 1) / c.Workers
		if c.BatchSize < 1 {
			c.BatchSize = 1
		}
	}
	if c.Seed == 0 {
		c.Seed = defaultSeed
	}
	if c.Tolerance == 0 {
		c.Tolerance = defaultTolerance
	}
}

// Validate checks the configuration for internal consistency, including the
// multiplicative depth budget: the full pipeline (similarity, tournament,
// optional blinding) must fit the levels the parameter preset provides.
func (c *Config) Validate() error {
	if c.Dimension < 1 {
		return &ConfigurationError{Field: "dimension", Reason: "must be at least 1"}
	}
	if c.DatabaseSize < 1 {
		return &ConfigurationError{Field: "database_size", Reason: "must be at least 1"}
	}
	params, err := getParams(c.LogN)
	if err != nil {
		return &ConfigurationError{Field: "log_n", Reason: err.Error()}
	}
	if c.Dimension > params.MaxSlots() {
		return &ConfigurationError{
			Field:  "dimension",
			Reason: fmt.Sprintf("%d exceeds the %d slots of the logN=%d preset", c.Dimension, params.MaxSlots(), c.LogN),
		}
	}
	if c.ScaleBits != 0 && c.ScaleBits != params.LogDefaultScale() {
		return &ConfigurationError{
			Field:  "scale_bits",
			Reason: fmt.Sprintf("preset logN=%d fixes the scale at %d bits, got %d", c.LogN, params.LogDefaultScale(), c.ScaleBits),
		}
	}
	if c.SecurityLevel != 0 && c.SecurityLevel != 128 {
		return &ConfigurationError{Field: "security_level", Reason: "must be 0 or 128"}
	}
	if c.SecurityLevel == 128 && !presetSecure(c.LogN) {
		return &ConfigurationError{
			Field:  "security_level",
			Reason: fmt.Sprintf("logN=%d is a test preset without a 128-bit security claim", c.LogN),
		}
	}
	if c.AbsDegree < 1 {
		return &ConfigurationError{Field: "abs_degree", Reason: "must be at least 1"}
	}
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return &ConfigurationError{Field: "threshold", Reason: "must be finite"}
	}
	switch c.DisclosureMode {
	case DisclosureMax, DisclosureSign:
	default:
		return &ConfigurationError{
			Field:  "disclosure_mode",
			Reason: fmt.Sprintf("must be %q or %q, got %q", DisclosureMax, DisclosureSign, c.DisclosureMode),
		}
	}
	if c.Parties < 1 {
		return &ConfigurationError{Field: "parties", Reason: "must be at least 1"}
	}
	if c.DecryptionThreshold < 1 || c.DecryptionThreshold > c.Parties {
		return &ConfigurationError{
			Field:  "decryption_threshold",
			Reason: fmt.Sprintf("must be between 1 and the party count %d, got %d", c.Parties, c.DecryptionThreshold),
		}
	}
	if c.QuorumWaitMS < 1 {
		return &ConfigurationError{Field: "quorum_wait_ms", Reason: "must be positive"}
	}
	if c.Workers < 1 {
		return &ConfigurationError{Field: "workers", Reason: "must be at least 1"}
	}
	if c.BatchSize < 1 {
		return &ConfigurationError{Field: "batch_size", Reason: "must be at least 1"}
	}
	if c.Tolerance <= 0 {
		return &ConfigurationError{Field: "tolerance", Reason: "must be positive"}
	}

	budget := params.MaxLevel()
	if c.DepthBudget != 0 {
		if c.DepthBudget < 1 || c.DepthBudget > params.MaxLevel() {
			return &ConfigurationError{
				Field:  "depth_budget",
				Reason: fmt.Sprintf("must be between 1 and the preset's %d levels", params.MaxLevel()),
			}
		}
		budget = c.DepthBudget
	}
	need := requiredDepth(c.DatabaseSize, c.AbsDegree, c.DisclosureMode == DisclosureSign)
	if need > budget {
		return &ConfigurationError{
			Field: "depth_budget",
			Reason: fmt.Sprintf("pipeline needs %d levels (database_size=%d, abs_degree=%d, disclosure=%s) but only %d are available",
				need, c.DatabaseSize, c.AbsDegree, c.DisclosureMode, budget),
		}
	}
	return nil
}

// effectiveDepthBudget returns the level budget after the optional cap.
func (c *Config) effectiveDepthBudget(maxLevel int) int {
	if c.DepthBudget != 0 && c.DepthBudget < maxLevel {
		return c.DepthBudget
	}
	return maxLevel
}
