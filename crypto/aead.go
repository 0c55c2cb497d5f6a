// Package crypto implements the record-encryption primitives: AES-256-GCM
// for per-version blob encryption and share wrapping, and a Shamir
// secret-sharing engine for splitting the per-record data key. Neither
// primitive persists key material; callers own the lifetime of any key
// bytes passed in.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	keyLen   = 32
	nonceLen = 12
)

// ErrKeyLength is returned when a key is not exactly 32 bytes (AES-256).
var ErrKeyLength = errors.New("crypto: key must be 32 bytes")

// Sealed is the (nonce, ciphertext) pair produced by Encrypt. Ciphertext
// includes the GCM authentication tag.
type Sealed struct {
	Nonce      [nonceLen]byte
	Ciphertext []byte
}

// Encrypt seals plaintext under key with AES-256-GCM, binding aad into the
// authentication tag. The nonce is sampled fresh from crypto/rand on every
// call; since each per-record data key is used to encrypt exactly one
// version's blob (see tacore), nonce reuse under a single key cannot occur.
func Encrypt(key, plaintext, aad []byte) (Sealed, error) {
	if len(key) != keyLen {
		return Sealed{}, fmt.Errorf("%w: got %d", ErrKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return Sealed{}, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Sealed{}, fmt.Errorf("crypto: new gcm: %w", err)
	}
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Sealed{}, fmt.Errorf("crypto: nonce: %w", err)
	}
	ct := gcm.Seal(nil, nonce[:], plaintext, aad)
	return Sealed{Nonce: nonce, Ciphertext: ct}, nil
}

// Decrypt opens a ciphertext sealed by Encrypt. Any tag or AAD mismatch
// returns ErrAuthentication; callers must treat this as a fatal integrity
// error (spec: Integrity error kind), never silently falling back.
func Decrypt(key []byte, nonce [nonceLen]byte, ciphertext, aad []byte) ([]byte, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("%w: got %d", ErrKeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	pt, err := gcm.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return pt, nil
}

// ErrAuthentication is returned by Decrypt on any tag or AAD mismatch.
var ErrAuthentication = errors.New("crypto: authentication failed")

// NonceLen and KeyLen expose the fixed sizes used throughout the package,
// so callers (object store blob framing, peer share wrapping) don't
// hardcode magic numbers.
const (
	NonceLen = nonceLen
	KeyLen   = keyLen
)
