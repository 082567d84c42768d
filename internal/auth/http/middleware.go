package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/commercekit/authcore/internal/auth/domain"
	"github.com/commercekit/authcore/internal/auth/oidc"
	"github.com/commercekit/authcore/internal/auth/service"
	"github.com/commercekit/authcore/pkg/cryptox"
	"github.com/commercekit/authcore/pkg/httpx"
	"github.com/commercekit/authcore/pkg/jwtx"
	"github.com/commercekit/authcore/pkg/slogx"
)

type identityCtxKey struct{}

// IdentityFromCtx returns the verified identity for the request, or nil for
// anonymous requests.
func IdentityFromCtx(ctx context.Context) *domain.Identity {
	id, _ := ctx.Value(identityCtxKey{}).(*domain.Identity)
	return id
}

// AuthContext resolves the request's identity from a bearer header or the
// token cookie. A bearer header wins when both are present. Verification is
// tried in order: local tokens first, then registered external providers;
// a token neither understands is passed through as an opaque api key
// candidate. Failures never abort the request, they leave it anonymous.
func AuthContext(tokens *service.TokenService, remote *oidc.Verifier, cookies CookieConfig) httpx.Middleware {
	cookies = cookies.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractToken(r, cookies.TokenName)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := resolve(r, raw, tokens, remote, cookies)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken pulls the credential from the Authorization header or,
// failing that, the token cookie.
func extractToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		fields := strings.Fields(h)
		if len(fields) == 2 && strings.EqualFold(fields[0], "bearer") {
			return fields[1]
		}
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

func resolve(
	r *http.Request,
	raw string,
	tokens *service.TokenService,
	remote *oidc.Verifier,
	cookies CookieConfig,
) context.Context {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	claims, err := tokens.VerifyLocal(ctx, raw)
	if err == nil {
		if !fingerprintBound(r, claims, cookies.FingerprintName, log) {
			return ctx
		}
		return withIdentity(ctx, service.Identity(claims))
	}

	switch {
	case errors.Is(err, jwtx.ErrExpired),
		errors.Is(err, jwtx.ErrNotYetValid),
		errors.Is(err, jwtx.ErrIssuer),
		errors.Is(err, service.ErrTokenRevoked):
		// One of ours, just not acceptable. No other verifier will do
		// better.
		return ctx
	}

	if remote != nil && !remote.Registry().Empty() {
		identity, rerr := remote.Verify(ctx, raw)
		if rerr == nil {
			return withIdentity(ctx, identity)
		}
		if !errors.Is(rerr, oidc.ErrUnknownIssuer) && !errors.Is(rerr, jwtx.ErrMalformed) {
			log.Warn("external token rejected", "error", rerr)
			return ctx
		}
	}

	// Credentials that are not JWTs at all may be opaque api keys;
	// surface them for a downstream lookup without granting identity.
	return context.WithValue(ctx, httpx.CtxKeyAPIKeyCandidate, raw)
}

// fingerprintBound enforces the token-to-browser binding: a token minted
// with a fingerprint hash is only honored when the fingerprint cookie
// hashes back to it.
func fingerprintBound(r *http.Request, claims *jwtx.AccessClaims, cookieName string, log *slog.Logger) bool {
	if claims.FingerprintHash == "" {
		return true
	}

	c, err := r.Cookie(cookieName)
	if err != nil || c.Value == "" {
		log.Warn("token presented without fingerprint cookie", "subject", claims.Subject)
		return false
	}
	if !cryptox.VerifyFingerprint(c.Value, claims.FingerprintHash) {
		log.Warn("token fingerprint mismatch", "subject", claims.Subject)
		return false
	}
	return true
}

func withIdentity(ctx context.Context, id *domain.Identity) context.Context {
	ctx = context.WithValue(ctx, identityCtxKey{}, id)
	ctx = context.WithValue(ctx, httpx.CtxKeyUserID, id.UserID)
	if id.Impersonator != "" {
		ctx = context.WithValue(ctx, httpx.CtxKeyImpersonator, id.Impersonator)
	}
	return ctx
}

// RequireAuth rejects anonymous requests with a bearer challenge.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromCtx(r.Context()) == nil {
			httpx.WriteBearerChallenge(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
