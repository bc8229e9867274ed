package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	sk, err := sealingKeypair()
	if err != nil {
		t.Fatal(err)
	}

	share := bytes.Repeat([]byte{0xAB, 0x01, 0x7F}, 64)
	sealed, err := sealShare(share, sk.PublicKey().Bytes())
	if err != nil {
		t.Fatal(err)
	}

	// ephemeral pk (32) || nonce (12) || ciphertext || tag (16)
	if want := 32 + 12 + len(share) + 16; len(sealed) != want {
		t.Fatalf("expected %d sealed bytes, got %d", want, len(sealed))
	}

	opened, err := openShare(sealed, sk)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(opened, share) {
		t.Error("opened share differs from the original")
	}
}

func TestOpenShareWrongKey(t *testing.T) {
	sk, err := sealingKeypair()
	if err != nil {
		t.Fatal(err)
	}
	other, err := sealingKeypair()
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := sealShare([]byte("quorum share payload"), sk.PublicKey().Bytes())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := openShare(sealed, other); err == nil {
		t.Fatal("expected authentication failure with the wrong key")
	}
}

func TestOpenShareTruncated(t *testing.T) {
	sk, err := sealingKeypair()
	if err != nil {
		t.Fatal(err)
	}

	_, err = openShare(make([]byte, 20), sk)
	if err == nil || !strings.Contains(err.Error(), "too short") {
		t.Fatalf("expected a too-short error, got %v", err)
	}
}

func TestOpenShareTampered(t *testing.T) {
	sk, err := sealingKeypair()
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := sealShare([]byte("quorum share payload"), sk.PublicKey().Bytes())
	if err != nil {
		t.Fatal(err)
	}
	sealed[len(sealed)-1] ^= 0x40

	if _, err := openShare(sealed, sk); err == nil {
		t.Fatal("expected authentication failure after tampering")
	}
}
