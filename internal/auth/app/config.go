package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/commercekit/authcore/internal/auth/oidc"
)

// Config is populated from the environment.
type Config struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	Port          int           `env:"PORT" envDefault:"8080"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`

	// SigningSecret signs local access tokens. Shorter than 32 bytes is a
	// fatal startup error, never a warning.
	SigningSecret string        `env:"AUTH_SIGNING_SECRET,required,unset"`
	Issuer        string        `env:"AUTH_ISSUER" envDefault:"authcore"`
	TokenTTL      time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"1h"`

	TokenCookie       string `env:"AUTH_TOKEN_COOKIE" envDefault:"unchained_token"`
	FingerprintCookie string `env:"AUTH_FGP_COOKIE" envDefault:"__Secure-fgp"`
	CookieDomain      string `env:"AUTH_COOKIE_DOMAIN"`
	CookieInsecure    bool   `env:"AUTH_COOKIE_INSECURE" envDefault:"false"`

	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"file:authcore.db"`

	// OIDCProviders is a JSON array of trusted external issuers, e.g.
	// [{"issuer":"https://id.example.com","audience":"shop-api"}].
	OIDCProviders string `env:"OIDC_PROVIDERS"`

	// SessionBackend selects the session store: sqlite, redis or disabled.
	SessionBackend    string        `env:"SESSION_BACKEND" envDefault:"sqlite"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"336h"`
	SessionTouchAfter time.Duration `env:"SESSION_TOUCH_AFTER" envDefault:"1m"`
	SessionSecret     string        `env:"SESSION_SECRET,unset"`
	SessionCookie     string        `env:"SESSION_COOKIE" envDefault:"sid"`
	SessionTable      string        `env:"SESSION_SQLITE_TABLE" envDefault:"sessions"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD,unset"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_KEY_PREFIX" envDefault:"authcore:sess:"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Providers parses the configured external issuers.
func (c Config) Providers() ([]oidc.Provider, error) {
	if c.OIDCProviders == "" {
		return nil, nil
	}
	var raw []struct {
		Issuer   string `json:"issuer"`
		JWKSURI  string `json:"jwks_uri"`
		Audience string `json:"audience"`
	}
	if err := json.Unmarshal([]byte(c.OIDCProviders), &raw); err != nil {
		return nil, fmt.Errorf("parse OIDC_PROVIDERS: %w", err)
	}
	providers := make([]oidc.Provider, 0, len(raw))
	for _, p := range raw {
		if p.Issuer == "" {
			return nil, fmt.Errorf("OIDC_PROVIDERS entry missing issuer")
		}
		providers = append(providers, oidc.Provider{
			Issuer:   p.Issuer,
			JWKSURI:  p.JWKSURI,
			Audience: p.Audience,
		})
	}
	return providers, nil
}
