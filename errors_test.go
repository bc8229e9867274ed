package main

import (
	"errors"
	"strings"
	"testing"
)

// TestErrorMessages checks the rendered message of every error type in the
// taxonomy, including the query/item split of validation errors and the
// in-round/out-of-round split of depth errors.
func TestErrorMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&ConfigurationError{Field: "log_n", Reason: "unsupported"}, "configuration error: log_n: unsupported"},
		{&ValidationError{Index: 4, Reason: "zero norm"}, "validation error: item 4: zero norm"},
		{&ValidationError{Index: -1, Reason: "zero norm"}, "validation error: query: zero norm"},
		{&DepthExhaustedError{Stage: "secure-max", Round: 3, Have: 2, Need: 6}, "depth exhausted in secure-max (round 3): have 2 levels, need 6"},
		{&DepthExhaustedError{Stage: "similarity", Round: -1, Have: 0, Need: 1}, "depth exhausted in similarity: have 0 levels, need 1"},
		{&InsufficientSharesError{Received: 1, Required: 2}, "insufficient decryption shares: received 1, required 2"},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Errorf("expected %q, got %q", c.want, got)
		}
	}
}

// TestKeyGenerationErrorUnwrap verifies the cause stays reachable through
// errors.Is.
func TestKeyGenerationErrorUnwrap(t *testing.T) {
	cause := errors.New("prng exhausted")
	err := error(&KeyGenerationError{Phase: "public-key", Err: cause})

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if !strings.Contains(err.Error(), "public-key") || !strings.Contains(err.Error(), "prng exhausted") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
