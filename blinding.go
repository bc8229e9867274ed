// blinding.go: deterministic positive blinding for sign-only disclosure.
//
// In sign disclosure mode the decision maker multiplies the encrypted
// difference (max - threshold) by a positive factor r before decryption.
// Decrypting r*(max - threshold) reveals the sign of the comparison but
// blinds its magnitude. The factor comes from a ChaCha20 keystream keyed
// from the session seed, so a run is reproducible from its seed while the
// factors remain unpredictable without it.

package main

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

const blindingInfoString = "uniqcheck-blind-v1"

// blinder derives per-disclosure blinding factors from a session seed.
type blinder struct {
	key []byte
}

// newBlinder expands the session seed into the ChaCha20 key.
func newBlinder(sessionSeed []byte) (*blinder, error) {
	if len(sessionSeed) == 0 {
		return nil, fmt.Errorf("empty session seed")
	}
	r := hkdf.New(sha256.New, sessionSeed, nil, []byte(blindingInfoString))
	key := make([]byte, chacha20.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("HKDF expansion failed: %v", err)
	}
	return &blinder{key: key}, nil
}

// factor returns the blinding factor for the given disclosure counter,
// uniform in [1, 4). Strictly positive, so multiplying by it preserves the
// sign of the blinded value.
func (b *blinder) factor(counter uint32) (float64, error) {
	nonce := make([]byte, chacha20.NonceSize)
	binary.BigEndian.PutUint32(nonce[8:], counter)

	cipher, err := chacha20.NewUnauthenticatedCipher(b.key, nonce)
	if err != nil {
		return 0, fmt.Errorf("ChaCha20 init failed: %v", err)
	}

	stream := make([]byte, 8)
	cipher.XORKeyStream(stream, stream)

	// 53 uniform bits, the full precision of a float64 mantissa.
	u := binary.LittleEndian.Uint64(stream) >> 11
	return 1 + 3*(float64(u)/(1<<53)), nil
}
