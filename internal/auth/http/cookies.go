package http

import (
	"net/http"
	"time"

	"github.com/commercekit/authcore/pkg/cryptox"
)

// Default cookie names. The fingerprint cookie carries the __Secure- prefix
// so browsers refuse it over plain http.
const (
	DefaultTokenCookie       = "unchained_token"
	DefaultFingerprintCookie = "__Secure-fgp"
)

// CookieConfig controls the pair of cookies issued on login: the access
// token and its binding fingerprint.
type CookieConfig struct {
	TokenName       string
	FingerprintName string
	Path            string
	Domain          string

	// SameSite applies to the token cookie only. The fingerprint cookie is
	// always Strict.
	SameSite http.SameSite

	// Insecure drops the Secure attribute on the token cookie for local
	// development. The fingerprint cookie keeps it regardless.
	Insecure bool
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.TokenName == "" {
		c.TokenName = DefaultTokenCookie
	}
	if c.FingerprintName == "" {
		c.FingerprintName = DefaultFingerprintCookie
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}

// setAuth writes the token and fingerprint cookies. The raw fingerprint
// lives only here; the token carries its hash.
func (c CookieConfig) setAuth(w http.ResponseWriter, token string, fp cryptox.Fingerprint, ttl time.Duration) {
	maxAge := int(ttl.Seconds())

	http.SetCookie(w, &http.Cookie{
		Name:     c.TokenName,
		Value:    token,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !c.Insecure,
		SameSite: c.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     c.FingerprintName,
		Value:    fp.Raw,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearAuth expires both cookies.
func (c CookieConfig) clearAuth(w http.ResponseWriter) {
	for _, name := range []string{c.TokenName, c.FingerprintName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     c.Path,
			Domain:   c.Domain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   name == c.FingerprintName || !c.Insecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
