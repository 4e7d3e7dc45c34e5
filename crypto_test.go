package vento

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/awnumar/memguard"
)

func TestCryptoAll(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*testing.T)
	}{
		{"EncryptDecryptRoundTrip", testEncryptDecryptRoundTrip},
		{"NonceFreshness", testNonceFreshness},
		{"TamperDetection", testTamperDetection},
		{"WrongKeyIndistinguishable", testWrongKeyIndistinguishable},
		{"EnvelopeTimestamp", testEnvelopeTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("Failed to generate test key: %v", err)
	}

	engine, err := NewEngine(memguard.NewEnclave(key))
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return engine
}

func testEncryptDecryptRoundTrip(t *testing.T) {
	engine := newTestEngine(t)

	testCases := [][]byte{
		[]byte("Hello, World!"),
		[]byte("Special chars: !@#$%^&*()_+{}|"),
		[]byte("Unicode: こんにちは"),
		make([]byte, 10241), // Large payload > 10KB
		{0x00},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("Case_%d", i), func(t *testing.T) {
			envelope, err := engine.Encrypt(tc)
			if err != nil {
				t.Fatalf("Failed to encrypt: %v", err)
			}

			if bytes.Contains(envelope, tc) && len(tc) > 4 {
				t.Error("Envelope contains plaintext")
			}

			plaintext, err := engine.Decrypt(envelope)
			if err != nil {
				t.Fatalf("Failed to decrypt: %v", err)
			}

			if !bytes.Equal(plaintext, tc) {
				t.Errorf("Decrypted data doesn't match original.\nExpected: %q\nGot: %q", tc, plaintext)
			}
		})
	}
}

func testNonceFreshness(t *testing.T) {
	engine := newTestEngine(t)
	plaintext := []byte("same plaintext, two envelopes")

	first, err := engine.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	second, err := engine.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	if bytes.Equal(first, second) {
		t.Error("Two envelopes of the same plaintext are identical, nonce is not fresh")
	}
}

func testTamperDetection(t *testing.T) {
	engine := newTestEngine(t)

	envelope, err := engine.Encrypt([]byte("protect me"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	// Flip one byte at several positions: header, nonce, ciphertext, tag
	positions := []int{0, 4, 5, envelopeHeaderSize, envelopeHeaderSize + 12, len(envelope) - 1}
	for _, pos := range positions {
		t.Run(fmt.Sprintf("FlipByte_%d", pos), func(t *testing.T) {
			tampered := make([]byte, len(envelope))
			copy(tampered, envelope)
			tampered[pos] ^= 0xFF

			_, err = engine.Decrypt(tampered)
			if err == nil {
				t.Fatal("Decrypt accepted a tampered envelope")
			}
			if !IsKind(err, KindIntegrity) {
				t.Errorf("Expected integrity kind, got %s", KindOf(err))
			}
		})
	}

	// Truncation
	_, err = engine.Decrypt(envelope[:10])
	if !IsKind(err, KindIntegrity) {
		t.Errorf("Expected integrity kind for truncated envelope, got %v", err)
	}
}

func testWrongKeyIndistinguishable(t *testing.T) {
	engine1 := newTestEngine(t)
	engine2 := newTestEngine(t)

	envelope, err := engine1.Encrypt([]byte("encrypted under key one"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	_, wrongKeyErr := engine2.Decrypt(envelope)
	if wrongKeyErr == nil {
		t.Fatal("Decrypt succeeded under the wrong key")
	}

	tampered := make([]byte, len(envelope))
	copy(tampered, envelope)
	tampered[len(tampered)-1] ^= 0x01
	_, tamperErr := engine1.Decrypt(tampered)
	if tamperErr == nil {
		t.Fatal("Decrypt accepted a tampered envelope")
	}

	// Wrong key and tampering must produce the same verdict
	if KindOf(wrongKeyErr) != KindOf(tamperErr) {
		t.Errorf("Wrong-key kind %s differs from tamper kind %s", KindOf(wrongKeyErr), KindOf(tamperErr))
	}
	if wrongKeyErr.Error() != tamperErr.Error() {
		t.Errorf("Wrong-key message %q differs from tamper message %q", wrongKeyErr, tamperErr)
	}
}

func testEnvelopeTimestamp(t *testing.T) {
	engine := newTestEngine(t)

	before := time.Now().UTC().Add(-time.Second)
	envelope, err := engine.Encrypt([]byte("timestamped"))
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	after := time.Now().UTC().Add(time.Second)

	created, err := EnvelopeCreatedAt(envelope)
	if err != nil {
		t.Fatalf("Failed to read envelope timestamp: %v", err)
	}
	if created.Before(before) || created.After(after) {
		t.Errorf("Envelope timestamp %v outside [%v, %v]", created, before, after)
	}

	if _, err = EnvelopeCreatedAt([]byte("not an envelope")); err == nil {
		t.Error("Expected error for non-envelope data")
	}
}
