package vento

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"

	"github.com/mowgliph/vento/internal/crypto"
	"github.com/mowgliph/vento/internal/debug"
	"github.com/mowgliph/vento/internal/misc"
)

const (
	secretFileName = "secret.key"
	saltFileName   = "derivation.salt"
)

// KeyManager owns the installation's persistent secret and salt and derives
// the symmetric key used by the crypto engine.
//
// KEY MATERIAL LIFECYCLE:
// On the first use of a fresh installation, GetOrCreateSecret and
// GetOrCreateSalt generate cryptographically secure random values and persist
// them to per-user files with owner-only permissions. Every subsequent call
// reads the existing values verbatim, so key derivation is deterministic
// across process restarts. Creating these two files is the only mutation this
// component performs.
//
// Changing either file invalidates every artifact encrypted under the
// previous pair: backups are undecryptable under any other secret/salt.
//
// The derived key is never persisted. It is produced into a memguard enclave
// and held only for the lifetime of the process.
type KeyManager struct {
	keyDir string
}

// NewKeyManager creates a KeyManager rooted at keyDir. When keyDir is empty
// the per-user default (~/.vento) is used. The directory is created with
// owner-only permissions if it does not exist.
func NewKeyManager(keyDir string) (*KeyManager, error) {
	if keyDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, E("keys.init", KindStorage, fmt.Errorf("failed to resolve home directory: %w", err))
		}
		keyDir = filepath.Join(home, ".vento")
	}

	if err := os.MkdirAll(keyDir, misc.DirPermissions); err != nil {
		return nil, E("keys.init", KindStorage, fmt.Errorf("failed to create key directory: %w", err))
	}

	return &KeyManager{keyDir: keyDir}, nil
}

// GetOrCreateSecret returns the installation secret, generating and
// persisting a fresh one (32 random bytes, URL-safe base64 encoded) on first
// use. The secret is returned sealed in an enclave and is never logged.
func (km *KeyManager) GetOrCreateSecret() (*memguard.Enclave, error) {
	secretPath := filepath.Join(km.keyDir, secretFileName)

	data, err := os.ReadFile(secretPath)
	if err == nil {
		if len(data) == 0 {
			return nil, Errorf("keys.secret", KindKeyDerivation, "secret file is empty")
		}
		return memguard.NewEnclave(data), nil
	}
	if !os.IsNotExist(err) {
		return nil, E("keys.secret", KindStorage, fmt.Errorf("failed to read secret file: %w", err))
	}

	debug.Print("generating new installation secret at %s", secretPath)

	raw := make([]byte, misc.SecretSize)
	if _, err = rand.Read(raw); err != nil {
		return nil, E("keys.secret", KindKeyDerivation, fmt.Errorf("failed to generate secret: %w", err))
	}
	encoded := []byte(base64.RawURLEncoding.EncodeToString(raw))
	memguard.WipeBytes(raw)

	if err = writeOwnerOnlyFile(secretPath, encoded); err != nil {
		return nil, E("keys.secret", KindStorage, err)
	}

	return memguard.NewEnclave(encoded), nil
}

// GetOrCreateSalt returns the derivation salt, generating and persisting a
// fresh random one (16 bytes) on first use.
func (km *KeyManager) GetOrCreateSalt() (*memguard.Enclave, error) {
	saltPath := filepath.Join(km.keyDir, saltFileName)

	data, err := os.ReadFile(saltPath)
	if err == nil {
		if len(data) == 0 {
			return nil, Errorf("keys.salt", KindKeyDerivation, "salt file is empty")
		}
		return memguard.NewEnclave(data), nil
	}
	if !os.IsNotExist(err) {
		return nil, E("keys.salt", KindStorage, fmt.Errorf("failed to read salt file: %w", err))
	}

	debug.Print("generating new derivation salt at %s", saltPath)

	salt := make([]byte, misc.SaltSize)
	if _, err = rand.Read(salt); err != nil {
		return nil, E("keys.salt", KindKeyDerivation, fmt.Errorf("failed to generate salt: %w", err))
	}

	if err = writeOwnerOnlyFile(saltPath, salt); err != nil {
		memguard.WipeBytes(salt)
		return nil, E("keys.salt", KindStorage, err)
	}

	enclave := memguard.NewEnclave(salt)
	return enclave, nil
}

// DeriveKey derives the 32-byte symmetric key from the secret and salt using
// PBKDF2-HMAC-SHA256 with a fixed high iteration count. The result is sealed
// in an enclave; it is recomputed identically across runs given the same
// secret and salt.
func (km *KeyManager) DeriveKey(secret, salt *memguard.Enclave) (*memguard.Enclave, error) {
	keyBuffer, err := crypto.DeriveKey(secret, salt)
	if err != nil {
		return nil, E("keys.derive", KindKeyDerivation, err)
	}

	if crypto.IsWeakKey(keyBuffer.Bytes()) {
		keyBuffer.Destroy()
		return nil, Errorf("keys.derive", KindKeyDerivation, "derived key failed entropy check")
	}

	// Seal moves the key into the enclave and destroys the buffer
	return keyBuffer.Seal(), nil
}

// writeOwnerOnlyFile writes data to path with 0600 permissions, re-chmodding
// after the write in case the file already existed with looser permissions.
func writeOwnerOnlyFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, misc.FilePermissions); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(path, misc.FilePermissions); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", filepath.Base(path), err)
	}
	return nil
}
