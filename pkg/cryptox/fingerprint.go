package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// FingerprintSize is the number of random bytes backing a browser fingerprint.
// 32 bytes (256 bits) comfortably exceeds the 128-bit minimum for an
// unguessable secret.
const FingerprintSize = TokenSize256

// Fingerprint is a random secret bound to a browser session. Raw travels to
// the client only inside a hardened cookie; Hash is what gets embedded in the
// access token. A stolen token is useless without the matching Raw value.
type Fingerprint struct {
	Raw  string
	Hash string
}

// NewFingerprint generates a fresh fingerprint pair.
func NewFingerprint() (Fingerprint, error) {
	raw, err := GenerateToken(FingerprintSize)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("cryptox: generate fingerprint: %w", err)
	}
	return Fingerprint{Raw: raw, Hash: HashFingerprint(raw)}, nil
}

// HashFingerprint returns the SHA-256 hex digest of a raw fingerprint.
func HashFingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifyFingerprint reports whether hash is the SHA-256 hex digest of raw.
// The comparison is constant-time (length check first, then XOR-accumulated
// byte compare via crypto/subtle) so response timing leaks nothing about the
// position of the first differing byte.
func VerifyFingerprint(raw, hash string) bool {
	if raw == "" || hash == "" {
		return false
	}
	computed := HashFingerprint(raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
