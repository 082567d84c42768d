package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/commercekit/authcore/internal/auth/domain"
	"github.com/commercekit/authcore/pkg/jwtx"
)

// validMethods lists the asymmetric algorithms accepted from external
// providers. Symmetric algorithms are never accepted remotely.
var validMethods = []string{
	"RS256", "RS384", "RS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

type remoteClaims struct {
	jwt.RegisteredClaims

	Roles []string `json:"roles,omitempty"`
}

// Verifier validates tokens against the registered providers.
type Verifier struct {
	registry *Registry
	keys     *KeyCache
}

func NewVerifier(registry *Registry, keys *KeyCache) *Verifier {
	return &Verifier{registry: registry, keys: keys}
}

// Registry exposes the configured providers.
func (v *Verifier) Registry() *Registry { return v.registry }

// Keyfunc builds a jwt keyfunc resolving keys from the provider's JWKS.
func (v *Verifier) Keyfunc(ctx context.Context, p Provider) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return v.keys.KeyFor(ctx, p.JWKSURI, kid)
	}
}

// Verify checks the token's signature and standard claims against the
// provider named in its iss claim, and returns the resulting identity.
func (v *Verifier) Verify(ctx context.Context, raw string) (*domain.Identity, error) {
	issuer, _, err := PeekToken(raw)
	if err != nil {
		return nil, err
	}

	provider, ok := v.registry.Lookup(issuer)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIssuer, NormalizeIssuer(issuer))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(validMethods),
		jwt.WithExpirationRequired(),
	}
	if provider.Audience != "" {
		opts = append(opts, jwt.WithAudience(provider.Audience))
	}

	claims := &remoteClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, v.Keyfunc(ctx, provider), opts...); err != nil {
		return nil, mapParseError(err)
	}

	// The peeked issuer routed us here unverified; re-check it against the
	// parsed claims.
	if NormalizeIssuer(claims.Issuer) != provider.Issuer {
		return nil, jwtx.ErrIssuer
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", jwtx.ErrMalformed)
	}

	return &domain.Identity{
		UserID: claims.Subject,
		Roles:  claims.Roles,
		Remote: true,
	}, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return jwtx.ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return jwtx.ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return jwtx.ErrMalformed
	default:
		return fmt.Errorf("%w: %v", jwtx.ErrInvalidSig, err)
	}
}
