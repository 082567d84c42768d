package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretSize is the minimum signing secret length in bytes (256 bits).
const MinSecretSize = 32

// SignOption mutates claims before signing.
type SignOption func(*AccessClaims)

// WithFingerprintHash embeds the SHA-256 hex digest of a browser fingerprint.
func WithFingerprintHash(hash string) SignOption {
	return func(c *AccessClaims) { c.FingerprintHash = hash }
}

// WithImpersonator records the administrator identity acting as the subject.
func WithImpersonator(id string) SignOption {
	return func(c *AccessClaims) { c.Impersonator = id }
}

// HS256Signer signs access tokens with a symmetric secret. It performs no
// I/O; signing is pure token construction.
type HS256Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSignerHS256 creates an HS256 signer. The secret must be at least
// MinSecretSize bytes; a weaker secret fails fast with ErrWeakSecret rather
// than issuing forgeable tokens.
func NewSignerHS256(secret []byte, issuer string, ttl time.Duration) (*HS256Signer, error) {
	if len(secret) < MinSecretSize {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &HS256Signer{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Sign issues a token for subject at the given token version and returns the
// compact serialization plus its expiry.
func (s *HS256Signer) Sign(
	subject string,
	version int,
	opts ...SignOption,
) (string, time.Time, error) {
	now := time.Now().UTC()
	claims := NewAccessClaims(subject, version, s.issuer, s.ttl, now)
	for _, opt := range opts {
		opt(&claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, claims.ExpiresAt.Time, nil
}

// TTL returns the configured token lifetime.
func (s *HS256Signer) TTL() time.Duration { return s.ttl }

// HS256Verifier validates locally-issued tokens. The accepted algorithm is
// pinned to HS256: "none" and asymmetric algorithms never pass this path.
type HS256Verifier struct {
	secret []byte
	issuer string
}

// NewVerifierHS256 creates a verifier sharing the signer's secret, enforcing
// the same minimum strength.
func NewVerifierHS256(secret []byte, issuer string) (*HS256Verifier, error) {
	if len(secret) < MinSecretSize {
		return nil, ErrWeakSecret
	}
	return &HS256Verifier{secret: secret, issuer: issuer}, nil
}

// Verify validates the JWT string and returns its parsed claims. Failures
// map to the package sentinel errors so callers can distinguish expired,
// malformed/invalid-signature, and other outcomes for telemetry while
// treating them all as "not authenticated".
func (v *HS256Verifier) Verify(tokenStr string) (*AccessClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrNotYetValid
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		default:
			// Unsupported alg, signature mismatch, anything else that fails
			// cryptographic verification.
			return nil, ErrInvalidSig
		}
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSig
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiry(); err != nil {
		return nil, err
	}

	return claims, nil
}
