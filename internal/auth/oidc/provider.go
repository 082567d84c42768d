// Package oidc verifies access tokens issued by external OpenID Connect
// providers. Providers are registered up front; signing keys are fetched
// from each provider's JWKS endpoint and cached.
package oidc

import (
	"errors"
	"strings"
)

var ErrUnknownIssuer = errors.New("oidc: unknown issuer")

// Provider describes one trusted external issuer.
type Provider struct {
	// Issuer is the value expected in the token's iss claim. Compared
	// after normalization, so a trailing slash does not matter.
	Issuer string

	// JWKSURI overrides the conventional {issuer}/.well-known/jwks.json.
	JWKSURI string

	// Audience, when set, must appear in the token's aud claim.
	Audience string
}

func (p Provider) withDefaults() Provider {
	p.Issuer = NormalizeIssuer(p.Issuer)
	if p.JWKSURI == "" {
		p.JWKSURI = p.Issuer + "/.well-known/jwks.json"
	}
	return p
}

// NormalizeIssuer trims whitespace and any trailing slash so issuer values
// from config and from token claims compare equal.
func NormalizeIssuer(issuer string) string {
	return strings.TrimSuffix(strings.TrimSpace(issuer), "/")
}

// Registry holds the configured providers keyed by normalized issuer.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		p = p.withDefaults()
		r.providers[p.Issuer] = p
	}
	return r
}

// Lookup resolves a provider by issuer, normalizing before matching.
func (r *Registry) Lookup(issuer string) (Provider, bool) {
	p, ok := r.providers[NormalizeIssuer(issuer)]
	return p, ok
}

// Empty reports whether no providers are configured.
func (r *Registry) Empty() bool { return len(r.providers) == 0 }
