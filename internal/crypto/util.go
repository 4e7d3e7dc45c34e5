package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"

	"github.com/mowgliph/vento/internal/misc"
)

// CalculateChecksum calculates SHA-256 checksum of data
func CalculateChecksum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// DeriveKey derives a fixed-length symmetric key from a secret and salt using
// PBKDF2-HMAC-SHA256. The derivation is deterministic: the same secret/salt
// pair always produces the same key across process restarts.
func DeriveKey(secretEnclave, saltEnclave *memguard.Enclave) (*memguard.LockedBuffer, error) {
	if secretEnclave == nil || saltEnclave == nil {
		return nil, errors.New("secret and salt are required for key derivation")
	}

	secretBuffer, err := secretEnclave.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open secret enclave: %w", err)
	}
	defer secretBuffer.Destroy()

	saltBuffer, err := saltEnclave.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open salt enclave: %w", err)
	}
	defer saltBuffer.Destroy()

	if secretBuffer.Size() == 0 {
		return nil, errors.New("secret cannot be empty")
	}
	if saltBuffer.Size() == 0 {
		return nil, errors.New("salt cannot be empty")
	}

	// Make copies to avoid issues with concurrent access to the buffers
	secretBytes := make([]byte, secretBuffer.Size())
	copy(secretBytes, secretBuffer.Bytes())
	defer memguard.WipeBytes(secretBytes)

	saltBytes := make([]byte, saltBuffer.Size())
	copy(saltBytes, saltBuffer.Bytes())
	defer memguard.WipeBytes(saltBytes)

	derivedKey := pbkdf2.Key(secretBytes, saltBytes, misc.KDFIterations, misc.KDFKeyLen, sha256.New)

	// Protect the derived key immediately
	protectedKey := memguard.NewBufferFromBytes(derivedKey)

	// Wipe the unprotected derived key
	memguard.WipeBytes(derivedKey)

	return protectedKey, nil
}

func IsWeakKey(key []byte) bool {
	if len(key) < 32 {
		return true
	}

	// Check for all zeros
	allZero := true
	for _, b := range key {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return true
	}

	// Check for all same byte
	firstByte := key[0]
	allSame := true
	for _, b := range key[1:] {
		if b != firstByte {
			allSame = false
			break
		}
	}
	if allSame {
		return true
	}

	// Basic entropy check - count unique bytes
	uniqueBytes := make(map[byte]bool)
	for _, b := range key {
		uniqueBytes[b] = true
	}

	// Should have reasonable variety (at least 16 different byte values)
	return len(uniqueBytes) < 16
}
