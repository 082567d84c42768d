package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Supported Sealer algorithms.
const (
	AlgorithmAESGCM   = "aes-256-gcm"
	AlgorithmChaCha20 = "chacha20poly1305"
)

var (
	ErrEmptySecret  = errors.New("cryptox: empty encryption secret")
	ErrBadAlgorithm = errors.New("cryptox: unsupported encryption algorithm")
	// ErrDecrypt covers truncated input and authentication failures. Callers
	// must treat it as a hard error, never as "no data" - a silent empty
	// result could mask tampering.
	ErrDecrypt = errors.New("cryptox: decryption failed")
)

// Sealer provides authenticated encryption for data at rest (e.g. serialized
// session payloads). The key is derived from the configured secret with
// SHA-256, so any non-empty secret yields a full-strength 32-byte key.
//
// Output format: [nonce][ciphertext+tag], nonce length per AEAD.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer for the given secret and algorithm. An empty
// algorithm selects AES-256-GCM.
func NewSealer(secret, algorithm string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := sha256.Sum256([]byte(secret))

	switch algorithm {
	case "", AlgorithmAESGCM:
		block, err := aes.NewCipher(key[:])
		if err != nil {
			return nil, fmt.Errorf("cryptox: create cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("cryptox: create GCM: %w", err)
		}
		return &Sealer{aead: aead}, nil

	case AlgorithmChaCha20:
		aead, err := chacha20poly1305.New(key[:])
		if err != nil {
			return nil, fmt.Errorf("cryptox: create chacha20poly1305: %w", err)
		}
		return &Sealer{aead: aead}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrBadAlgorithm, algorithm)
	}
}

// Seal encrypts and authenticates plaintext with a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal, verifying its authentication tag.
func (s *Sealer) Open(box []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(box) < nonceSize {
		return nil, ErrDecrypt
	}

	nonce, ciphertext := box[:nonceSize], box[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
