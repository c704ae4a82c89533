// Package seal implements password-based sealing of export output.
// The sealed format is self-contained: given only the password, Open
// recovers the original bytes or fails closed.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

const (
	// blobVersion is the version byte for the sealed blob format.
	// This allows future format changes while maintaining backward compatibility.
	blobVersion = 0x01

	// saltSize is the per-call random salt length
	saltSize = 32

	// nonceSize is the AES-GCM nonce size (12 bytes is standard)
	nonceSize = 12

	// keySize is the derived key size for AES-256
	keySize = 32

	// kdfIterations is the PBKDF2 work factor
	kdfIterations = 210_000
)

// kdfLabel domain-separates the derived key from any other PBKDF2 use of the
// same password
var kdfLabel = []byte("vitalexport.seal.v1:")

// Sealer adapts the package functions to the driven.Sealer port
type Sealer struct{}

// New creates a Sealer
func New() *Sealer {
	return &Sealer{}
}

// Seal encrypts data under a password-derived key
func (s *Sealer) Seal(data []byte, password string) ([]byte, error) {
	return Seal(data, password)
}

// Open decrypts a sealed blob
func (s *Sealer) Open(blob []byte, password string) ([]byte, error) {
	return Open(blob, password)
}

// deriveKey stretches the password into an AES-256 key. The salt is mixed
// with the domain-separation label so the same password/salt pair cannot
// collide with another protocol.
func deriveKey(password string, salt []byte) []byte {
	labelled := make([]byte, 0, len(kdfLabel)+len(salt))
	labelled = append(labelled, kdfLabel...)
	labelled = append(labelled, salt...)
	return pbkdf2.Key([]byte(password), labelled, kdfIterations, keySize, sha256.New)
}

// Seal encrypts data under a password-derived key.
// Format: version(1) || salt(32) || nonce(12) || ciphertext+tag
func Seal(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: generate salt: %v", domain.ErrEncryption, err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: generate nonce: %v", domain.ErrEncryption, err)
	}

	ciphertext := gcm.Seal(nil, nonce, data, nil)

	blob := make([]byte, 0, 1+saltSize+nonceSize+len(ciphertext))
	blob = append(blob, blobVersion)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// Open decrypts a sealed blob. It fails closed with
// domain.ErrAuthenticationFailed on truncated input, an unknown version, a
// wrong password, or any ciphertext tampering - never partial plaintext.
func Open(blob []byte, password string) ([]byte, error) {
	if len(blob) < 1+saltSize+nonceSize {
		return nil, fmt.Errorf("%w: sealed blob truncated", domain.ErrAuthenticationFailed)
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("%w: unsupported sealed blob version %d", domain.ErrAuthenticationFailed, blob[0])
	}

	salt := blob[1 : 1+saltSize]
	nonce := blob[1+saltSize : 1+saltSize+nonceSize]
	ciphertext := blob[1+saltSize+nonceSize:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, domain.ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("%w: create AES cipher: %v", domain.ErrEncryption, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: create GCM: %v", domain.ErrEncryption, err)
	}
	return gcm, nil
}
