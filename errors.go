package main

import "fmt"

// ============================================================================
// Error taxonomy
// ============================================================================
//
// Every failure mode of the pipeline maps to exactly one of the types below.
// There are no silent retries and no degraded fallbacks: an error either fails
// the single item it concerns (per-item validation during batch similarity) or
// terminates the computation path that raised it. Callers discriminate with
// errors.As.

// ConfigurationError reports an invalid or inconsistent configuration. It is
// raised before any cryptographic work starts, including when the requested
// database size and approximation degree cannot fit the multiplicative depth
// budget of the chosen parameter set.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ValidationError reports malformed input data. Index identifies the database
// item, or is -1 when the query vector itself is invalid.
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("validation error: query: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: item %d: %s", e.Index, e.Reason)
}

// DepthExhaustedError reports that a ciphertext does not carry enough
// remaining levels for the operation about to consume them. Round is the
// tournament round, or -1 outside the reduction.
type DepthExhaustedError struct {
	Stage string
	Round int
	Have  int
	Need  int
}

func (e *DepthExhaustedError) Error() string {
	if e.Round >= 0 {
		return fmt.Sprintf("depth exhausted in %s (round %d): have %d levels, need %d", e.Stage, e.Round, e.Have, e.Need)
	}
	return fmt.Sprintf("depth exhausted in %s: have %d levels, need %d", e.Stage, e.Have, e.Need)
}

// InsufficientSharesError reports that the decryption quorum was not reached
// within the bounded wait. The coordinator never combines fewer than the
// required number of shares.
type InsufficientSharesError struct {
	Received int
	Required int
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient decryption shares: received %d, required %d", e.Received, e.Required)
}

// KeyGenerationError reports a failure during collective key material setup.
// The run is aborted: no pipeline stage can operate without complete keys.
type KeyGenerationError struct {
	Phase string
	Err   error
}

func (e *KeyGenerationError) Error() string {
	return fmt.Sprintf("key generation failed during %s: %v", e.Phase, e.Err)
}

func (e *KeyGenerationError) Unwrap() error {
	return e.Err
}
