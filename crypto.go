package vento

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/mowgliph/vento/internal/misc"
)

// Envelope layout (stable on-disk framing of an encrypted artifact):
//
//	offset  size  field
//	0       4     magic "VENB"
//	4       1     format version
//	5       8     creation timestamp, unix seconds, big endian
//	13      12    nonce
//	25      n     ciphertext + Poly1305 tag
const (
	envelopeMagic      = "VENB"
	envelopeHeaderSize = 4 + 1 + 8
)

// errIntegrity is the single verdict for every decryption failure. A tampered
// artifact, a truncated envelope, and an artifact encrypted under a different
// secret/salt pair are deliberately indistinguishable to the caller.
var errIntegrity = errors.New("artifact failed integrity verification")

// Engine produces and consumes authenticated, tamper-evident artifact
// envelopes using ChaCha20-Poly1305 with the key derived by the KeyManager.
//
// The key is held in a memguard enclave for the engine's lifetime and is
// never written to the artifact, the audit trail, or error messages.
type Engine struct {
	keyEnclave *memguard.Enclave
}

// NewEngine creates a crypto engine bound to the given derived key.
func NewEngine(key *memguard.Enclave) (*Engine, error) {
	if key == nil {
		return nil, Errorf("crypto.init", KindCrypto, "derived key is required")
	}
	return &Engine{keyEnclave: key}, nil
}

// Encrypt seals plaintext into a fresh envelope. A random nonce is generated
// per call; the embedded creation timestamp is for auditability only and is
// not used for expiry.
func (e *Engine) Encrypt(plaintext []byte) ([]byte, error) {
	keyBuffer, err := e.keyEnclave.Open()
	if err != nil {
		return nil, E("crypto.encrypt", KindCrypto, fmt.Errorf("failed to open key enclave: %w", err))
	}
	defer keyBuffer.Destroy()

	aead, err := chacha20poly1305.New(keyBuffer.Bytes())
	if err != nil {
		return nil, E("crypto.encrypt", KindCrypto, fmt.Errorf("failed to create cipher: %w", err))
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, E("crypto.encrypt", KindCrypto, fmt.Errorf("failed to generate nonce: %w", err))
	}

	header := make([]byte, envelopeHeaderSize)
	copy(header[:4], envelopeMagic)
	header[4] = misc.EnvelopeVersion
	binary.BigEndian.PutUint64(header[5:13], uint64(time.Now().UTC().Unix()))

	// The header is bound to the ciphertext as associated data, so header
	// tampering fails authentication like any other modification.
	ciphertext := aead.Seal(nil, nonce, plaintext, header)

	envelope := make([]byte, 0, len(header)+len(nonce)+len(ciphertext))
	envelope = append(envelope, header...)
	envelope = append(envelope, nonce...)
	envelope = append(envelope, ciphertext...)

	return envelope, nil
}

// Decrypt opens an envelope and returns the plaintext. The authentication tag
// is verified before any plaintext is returned; a malformed header, version
// mismatch, tag failure, or wrong key all fail with the same integrity error.
func (e *Engine) Decrypt(envelope []byte) ([]byte, error) {
	keyBuffer, err := e.keyEnclave.Open()
	if err != nil {
		return nil, E("crypto.decrypt", KindCrypto, fmt.Errorf("failed to open key enclave: %w", err))
	}
	defer keyBuffer.Destroy()

	aead, err := chacha20poly1305.New(keyBuffer.Bytes())
	if err != nil {
		return nil, E("crypto.decrypt", KindCrypto, fmt.Errorf("failed to create cipher: %w", err))
	}

	if len(envelope) < envelopeHeaderSize+aead.NonceSize()+aead.Overhead() {
		return nil, E("crypto.decrypt", KindIntegrity, errIntegrity)
	}

	header := envelope[:envelopeHeaderSize]
	if string(header[:4]) != envelopeMagic || header[4] != misc.EnvelopeVersion {
		return nil, E("crypto.decrypt", KindIntegrity, errIntegrity)
	}

	nonce := envelope[envelopeHeaderSize : envelopeHeaderSize+aead.NonceSize()]
	ciphertext := envelope[envelopeHeaderSize+aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		// Do not distinguish tamper from wrong key
		return nil, E("crypto.decrypt", KindIntegrity, errIntegrity)
	}

	return plaintext, nil
}

// EnvelopeCreatedAt extracts the creation timestamp from an envelope header
// without decrypting it. The timestamp is unauthenticated until Decrypt runs.
func EnvelopeCreatedAt(envelope []byte) (time.Time, error) {
	if len(envelope) < envelopeHeaderSize || string(envelope[:4]) != envelopeMagic {
		return time.Time{}, Errorf("crypto.inspect", KindIntegrity, "not a backup artifact envelope")
	}
	sec := binary.BigEndian.Uint64(envelope[5:13])
	return time.Unix(int64(sec), 0).UTC(), nil
}
