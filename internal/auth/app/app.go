// Package app assembles the auth service from its parts and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	authhttp "github.com/commercekit/authcore/internal/auth/http"
	"github.com/commercekit/authcore/internal/auth/oidc"
	"github.com/commercekit/authcore/internal/auth/service"
	"github.com/commercekit/authcore/internal/auth/store"
	"github.com/commercekit/authcore/internal/auth/store/drivers/sqlite"
	"github.com/commercekit/authcore/internal/session"
	"github.com/commercekit/authcore/internal/session/redisstore"
	"github.com/commercekit/authcore/internal/session/sqlitestore"
	"github.com/commercekit/authcore/pkg/cryptox"
	"github.com/commercekit/authcore/pkg/jwtx"
	"github.com/commercekit/authcore/pkg/slogx"
)

// Version is stamped at build time.
var Version = "dev"

// Option adjusts the application before it starts.
type Option func(*Application)

// WithAuthenticator installs a credential checker, enabling the login
// route.
func WithAuthenticator(a authhttp.Authenticator) Option {
	return func(app *Application) { app.authenticator = a }
}

type Application struct {
	cfg Config
	log *slog.Logger

	db       store.Store
	sessions session.Store
	srv      *http.Server

	authenticator authhttp.Authenticator
}

// New wires the service. The context bounds background workers such as the
// JWKS refresher; cancel it on shutdown.
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	log := slogx.New(slogx.Config{
		Service: "authcore",
		Version: Version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	app := &Application{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(app)
	}

	db, err := sqlite.NewStore(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	app.db = db

	signer, err := jwtx.NewSignerHS256([]byte(cfg.SigningSecret), cfg.Issuer, cfg.TokenTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("token signer: %w", err)
	}
	verifier, err := jwtx.NewVerifierHS256([]byte(cfg.SigningSecret), cfg.Issuer)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("token verifier: %w", err)
	}

	tokens := service.NewTokenService(signer, verifier, db.Users())

	remote, err := buildRemoteVerifier(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	sessions, err := app.buildSessionStore(log)
	if err != nil {
		db.Close()
		return nil, err
	}
	app.sessions = sessions

	backchannel := service.NewBackchannelService(remote, tokens, db.Users(), sessions, log)

	cookies := authhttp.CookieConfig{
		TokenName:       cfg.TokenCookie,
		FingerprintName: cfg.FingerprintCookie,
		Domain:          cfg.CookieDomain,
		Insecure:        cfg.CookieInsecure,
	}

	handlers := authhttp.NewHandlers(tokens, backchannel, app.authenticator, db.Users(), cookies)

	router := authhttp.NewRouter(authhttp.RouterConfig{
		Handlers: handlers,
		Tokens:   tokens,
		Remote:   remote,
		Cookies:  cookies,
		DB:       db,
		Sessions: sessions,
		SessionCookie: session.CookieConfig{
			Name:     cfg.SessionCookie,
			Domain:   cfg.CookieDomain,
			Insecure: cfg.CookieInsecure,
		},
		Log: log,
	})

	app.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return app, nil
}

func buildRemoteVerifier(ctx context.Context, cfg Config) (*oidc.Verifier, error) {
	providers, err := cfg.Providers()
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, nil
	}
	keys, err := oidc.NewKeyCache(ctx)
	if err != nil {
		return nil, err
	}
	return oidc.NewVerifier(oidc.NewRegistry(providers...), keys), nil
}

func (a *Application) buildSessionStore(log *slog.Logger) (session.Store, error) {
	opts := session.Options{
		TTL:        a.cfg.SessionTTL,
		TouchAfter: a.cfg.SessionTouchAfter,
	}
	if a.cfg.SessionSecret != "" {
		sealer, err := cryptox.NewSealer(a.cfg.SessionSecret, cryptox.AlgorithmAESGCM)
		if err != nil {
			return nil, fmt.Errorf("session sealer: %w", err)
		}
		opts.Sealer = sealer
	}

	switch a.cfg.SessionBackend {
	case "sqlite":
		opts.AutoRemove = session.RemoveInterval
		return sqlitestore.New(a.cfg.DatabaseDSN, a.cfg.SessionTable, opts, log)
	case "redis":
		opts.AutoRemove = session.RemoveNative
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return redisstore.New(ctx, redisstore.Config{
			Addr:      a.cfg.RedisAddr,
			Password:  a.cfg.RedisPassword,
			DB:        a.cfg.RedisDB,
			KeyPrefix: a.cfg.RedisPrefix,
		}, opts)
	case "disabled":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", a.cfg.SessionBackend)
	}
}

// Run serves until the context is canceled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the stores.
func (a *Application) Close() error {
	var firstErr error
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			firstErr = err
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
