package http

import (
	"log/slog"
	"net/http"

	"github.com/commercekit/authcore/internal/auth/oidc"
	"github.com/commercekit/authcore/internal/auth/service"
	"github.com/commercekit/authcore/internal/session"
	"github.com/commercekit/authcore/pkg/httpx"
	"github.com/commercekit/authcore/pkg/slogx"
)

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Handlers *Handlers
	Tokens   *service.TokenService
	Remote   *oidc.Verifier
	Cookies  CookieConfig
	DB       Pinger

	// Sessions is optional; when nil no session middleware is installed.
	Sessions      session.Store
	SessionCookie session.CookieConfig

	Log *slog.Logger
}

// NewRouter mounts the HTTP surface. The login route is only registered
// when an Authenticator is configured; deployments fronted entirely by
// external providers run without it.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	h := cfg.Handlers

	authed := func(handler http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(handler,
			httpx.RateLimitByUser(limit),
			RequireAuth,
		)
	}

	if h.authenticator != nil {
		mux.Handle("POST /v1/login", httpx.Chain(
			http.HandlerFunc(h.Login),
			httpx.RateLimitByIP(httpx.StrictLimit),
		))
	}
	mux.Handle("POST /v1/logout", httpx.Chain(
		http.HandlerFunc(h.Logout),
		httpx.RateLimitByIP(httpx.LenientLimit),
	))
	mux.Handle("POST /v1/logout-all", authed(h.LogoutAll, httpx.ModerateLimit))
	mux.Handle("GET /v1/me", authed(h.Me, httpx.LenientLimit))

	mux.Handle("POST /backchannel-logout", httpx.Chain(
		http.HandlerFunc(h.BackchannelLogout),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	))

	mux.HandleFunc("GET /livez", Livez)
	mux.Handle("GET /readyz", Readyz(cfg.DB))

	middlewares := []httpx.Middleware{
		slogx.HTTPMiddleware(cfg.Log),
	}
	if cfg.Sessions != nil {
		middlewares = append(middlewares, session.Middleware(cfg.Sessions, cfg.SessionCookie))
	}
	middlewares = append(middlewares, AuthContext(cfg.Tokens, cfg.Remote, cfg.Cookies))

	return httpx.Chain(mux, middlewares...)
}
