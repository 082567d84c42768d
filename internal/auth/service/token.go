// Package service implements the auth use cases on top of the store and
// the token primitives.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commercekit/authcore/internal/auth/domain"
	"github.com/commercekit/authcore/internal/auth/store"
	"github.com/commercekit/authcore/pkg/cryptox"
	"github.com/commercekit/authcore/pkg/jwtx"
)

var (
	// ErrTokenRevoked means the token's version no longer matches the
	// user's current one, typically after a logout-everywhere.
	ErrTokenRevoked = errors.New("token revoked")

	ErrUserNotFound = errors.New("user not found")
)

// IssuedToken bundles a signed access token with the fingerprint minted
// alongside it. The Fingerprint.Raw value goes into a hardened cookie and
// is never persisted server side.
type IssuedToken struct {
	Token       string
	Fingerprint cryptox.Fingerprint
	ExpiresAt   time.Time
}

// TokenService issues and verifies locally signed access tokens.
type TokenService struct {
	signer   *jwtx.HS256Signer
	verifier *jwtx.HS256Verifier
	users    store.Users
}

func NewTokenService(signer *jwtx.HS256Signer, verifier *jwtx.HS256Verifier, users store.Users) *TokenService {
	return &TokenService{signer: signer, verifier: verifier, users: users}
}

// TTL reports the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration { return s.signer.TTL() }

// Issue mints an access token for the user, bound to a fresh fingerprint.
func (s *TokenService) Issue(ctx context.Context, userID string) (*IssuedToken, error) {
	return s.issue(ctx, userID)
}

// IssueImpersonated mints an access token for userID carrying the id of the
// operator acting on their behalf.
func (s *TokenService) IssueImpersonated(ctx context.Context, userID, impersonatorID string) (*IssuedToken, error) {
	return s.issue(ctx, userID, jwtx.WithImpersonator(impersonatorID))
}

func (s *TokenService) issue(ctx context.Context, userID string, extra ...jwtx.SignOption) (*IssuedToken, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	fp, err := cryptox.NewFingerprint()
	if err != nil {
		return nil, fmt.Errorf("mint fingerprint: %w", err)
	}

	opts := append([]jwtx.SignOption{jwtx.WithFingerprintHash(fp.Hash)}, extra...)
	token, expiresAt, err := s.signer.Sign(user.ID, user.TokenVersion, opts...)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &IssuedToken{Token: token, Fingerprint: fp, ExpiresAt: expiresAt}, nil
}

// VerifyLocal checks the token's signature and standard claims, then
// compares its version against the user's current one. A version behind the
// stored value, or a subject that no longer exists, yields ErrTokenRevoked.
func (s *TokenService) VerifyLocal(ctx context.Context, token string) (*jwtx.AccessClaims, error) {
	claims, err := s.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTokenRevoked
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if claims.TokenVersion != user.TokenVersion {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// RevokeAll invalidates every outstanding token for the user by bumping the
// token version, and records the logout time. Returns the new version.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) (int, error) {
	version, err := s.users.IncrementTokenVersion(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("bump token version: %w", err)
	}
	if err := s.users.RecordLogout(ctx, userID, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("record logout: %w", err)
	}
	return version, nil
}

// Identity builds the request identity carried by a verified local token.
func Identity(claims *jwtx.AccessClaims) *domain.Identity {
	return &domain.Identity{
		UserID:       claims.Subject,
		TokenVersion: claims.TokenVersion,
		Impersonator: claims.Impersonator,
	}
}
