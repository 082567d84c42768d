package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// refreshCooldown bounds how often an unknown kid may force a JWKS refetch,
// so a flood of tokens with bogus kids cannot hammer the provider.
const refreshCooldown = 30 * time.Second

// fetchTimeout bounds a single JWKS fetch.
const fetchTimeout = 10 * time.Second

// Background refresh cadence. Cache-Control headers steer within these
// bounds; a provider can never push refreshes faster than minRefreshInterval.
const (
	minRefreshInterval = 30 * time.Second
	maxRefreshInterval = 10 * time.Minute
)

// KeyCache resolves signing keys from JWKS endpoints. Fetched sets are
// cached and refreshed in the background; a lookup for a kid that is not in
// the cached set triggers at most one cooldown-limited forced refresh, which
// covers provider key rotation.
type KeyCache struct {
	cache *jwk.Cache

	mu         sync.Mutex
	registered map[string]struct{}
	lastForced map[string]time.Time
}

// NewKeyCache creates the cache. The context controls the lifetime of the
// background refresh workers.
func NewKeyCache(ctx context.Context) (*KeyCache, error) {
	httpClient := &http.Client{Timeout: fetchTimeout}
	cache, err := jwk.NewCache(ctx, httprc.NewClient(httprc.WithHTTPClient(httpClient)))
	if err != nil {
		return nil, fmt.Errorf("oidc: create jwks cache: %w", err)
	}
	return &KeyCache{
		cache:      cache,
		registered: make(map[string]struct{}),
		lastForced: make(map[string]time.Time),
	}, nil
}

// KeyFor returns the public key with the given kid from the JWKS at url,
// in a form usable by the jwt parser.
func (kc *KeyCache) KeyFor(ctx context.Context, url, kid string) (any, error) {
	if err := kc.ensure(ctx, url); err != nil {
		return nil, fmt.Errorf("oidc: register jwks %s: %w", url, err)
	}

	set, err := kc.cache.Lookup(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("oidc: fetch jwks %s: %w", url, err)
	}

	key, ok := set.LookupKeyID(kid)
	if !ok && kc.allowForced(url) {
		set, err = kc.cache.Refresh(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("oidc: refresh jwks %s: %w", url, err)
		}
		key, ok = set.LookupKeyID(kid)
	}
	if !ok {
		return nil, fmt.Errorf("oidc: key %q not found in jwks", kid)
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("oidc: export key %q: %w", kid, err)
	}
	return raw, nil
}

// ensure lazily registers url with the underlying cache.
func (kc *KeyCache) ensure(ctx context.Context, url string) error {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	if _, ok := kc.registered[url]; ok {
		return nil
	}
	if err := kc.cache.Register(ctx, url,
		jwk.WithMinInterval(minRefreshInterval),
		jwk.WithMaxInterval(maxRefreshInterval),
	); err != nil {
		return err
	}
	kc.registered[url] = struct{}{}
	return nil
}

// allowForced reports whether a forced refresh for url is outside the
// cooldown window, and records the attempt when it is.
func (kc *KeyCache) allowForced(url string) bool {
	kc.mu.Lock()
	defer kc.mu.Unlock()

	now := time.Now()
	if last, ok := kc.lastForced[url]; ok && now.Sub(last) < refreshCooldown {
		return false
	}
	kc.lastForced[url] = now
	return true
}
