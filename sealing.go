// sealing.go: authenticated sealing of decryption shares.
//
// Parties never hand their partial decryption shares to anyone but the
// coordinator: each share is sealed under the coordinator's X25519 public key
// before it leaves the party. Standard ECIES:
//
//	1. Generate ephemeral X25519 keypair
//	2. ECDH(ephemeral_sk, coordinator_pk) -> shared secret
//	3. HKDF-SHA256(shared secret, "uniqcheck-share-v1") -> AES key (32 bytes)
//	4. AES-256-GCM encrypt(key, random nonce, share)
//	5. Output: ephemeral_pk (32) || nonce (12) || ciphertext || tag (16)
//
// The exchange is in-process today; the sealing layer is the payload
// protection contract a real transport would inherit unchanged.

package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	crand "crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const sealingInfoString = "uniqcheck-share-v1"

// sealingKeypair generates the coordinator's X25519 receiving keypair.
func sealingKeypair() (*ecdh.PrivateKey, error) {
	sk, err := ecdh.X25519().GenerateKey(crand.Reader)
	if err != nil {
		return nil, fmt.Errorf("X25519 keygen failed: %v", err)
	}
	return sk, nil
}

// sealShare encrypts a serialized decryption share under the coordinator's
// public key. Returns: ephemeral_pk (32) || nonce (12) || ciphertext || tag.
func sealShare(share []byte, coordinatorPK []byte) ([]byte, error) {
	curve := ecdh.X25519()

	pk, err := curve.NewPublicKey(coordinatorPK)
	if err != nil {
		return nil, fmt.Errorf("invalid coordinator public key: %v", err)
	}

	ephSK, err := curve.GenerateKey(crand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ephemeral keygen failed: %v", err)
	}

	sharedSecret, err := ephSK.ECDH(pk)
	if err != nil {
		return nil, fmt.Errorf("ECDH failed: %v", err)
	}

	aesKey, err := deriveSealingKey(sharedSecret)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("AES cipher failed: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM failed: %v", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := crand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %v", err)
	}

	sealed := gcm.Seal(nil, nonce, share, nil)

	out := make([]byte, 0, 32+len(nonce)+len(sealed))
	out = append(out, ephSK.PublicKey().Bytes()...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// openShare authenticates and decrypts a sealed share with the coordinator's
// secret key. Any tampering fails the GCM tag check.
func openShare(sealed []byte, coordinatorSK *ecdh.PrivateKey) ([]byte, error) {
	if len(sealed) < 32+12+16 {
		return nil, fmt.Errorf("sealed share too short: %d bytes", len(sealed))
	}

	ephPK, err := ecdh.X25519().NewPublicKey(sealed[:32])
	if err != nil {
		return nil, fmt.Errorf("invalid ephemeral public key: %v", err)
	}
	nonce := sealed[32:44]
	body := sealed[44:]

	sharedSecret, err := coordinatorSK.ECDH(ephPK)
	if err != nil {
		return nil, fmt.Errorf("ECDH failed: %v", err)
	}

	aesKey, err := deriveSealingKey(sharedSecret)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("AES cipher failed: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM failed: %v", err)
	}

	share, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("share authentication failed: %v", err)
	}
	return share, nil
}

// deriveSealingKey derives the 32-byte AES key from an ECDH shared secret.
func deriveSealingKey(sharedSecret []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, sharedSecret, nil, []byte(sealingInfoString))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %v", err)
	}
	return key, nil
}
