// Package http exposes the auth service over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/commercekit/authcore/internal/auth/domain"
	"github.com/commercekit/authcore/internal/auth/service"
	"github.com/commercekit/authcore/internal/auth/store"
	"github.com/commercekit/authcore/internal/session"
	"github.com/commercekit/authcore/pkg/httpx"
	"github.com/commercekit/authcore/pkg/slogx"
)

// Authenticator checks primary credentials. Credential storage is owned by
// the surrounding application; this service only mints tokens for subjects
// an Authenticator vouches for.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
}

// ErrBadCredentials is what an Authenticator returns for a wrong username
// or password.
var ErrBadCredentials = errors.New("bad credentials")

type Handlers struct {
	tokens        *service.TokenService
	backchannel   *service.BackchannelService
	authenticator Authenticator
	users         store.Users
	cookies       CookieConfig
}

func NewHandlers(
	tokens *service.TokenService,
	backchannel *service.BackchannelService,
	authenticator Authenticator,
	users store.Users,
	cookies CookieConfig,
) *Handlers {
	return &Handlers{
		tokens:        tokens,
		backchannel:   backchannel,
		authenticator: authenticator,
		users:         users,
		cookies:       cookies.withDefaults(),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login verifies credentials, mints a token bound to a fresh fingerprint,
// and sets both cookies. The token is also returned in the body for api
// clients that prefer the Authorization header.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	user, err := h.authenticator.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		log.Error("authenticate failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error")
		return
	}

	issued, err := h.tokens.Issue(ctx, user.ID)
	if err != nil {
		log.Error("token issue failed", "user_id", user.ID, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error")
		return
	}

	h.cookies.setAuth(w, issued.Token, issued.Fingerprint, h.tokens.TTL())
	if st := session.FromContext(ctx); st != nil {
		st.Put("user_id", user.ID)
	}

	log.Info("login", "user_id", user.ID)
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	})
}

// Logout is the soft variant: it clears the cookies and drops the session
// but leaves other devices' tokens valid.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clearAuth(w)
	if st := session.FromContext(r.Context()); st != nil {
		st.Delete("user_id")
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll revokes every outstanding token for the caller by bumping the
// token version, then clears the cookies.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	identity := IdentityFromCtx(ctx)
	if identity == nil {
		httpx.WriteBearerChallenge(w, "authentication required")
		return
	}

	if _, err := h.tokens.RevokeAll(ctx, identity.UserID); err != nil {
		log.Error("revoke failed", "user_id", identity.UserID, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error")
		return
	}

	h.cookies.clearAuth(w)
	if st := session.FromContext(ctx); st != nil {
		st.Delete("user_id")
	}

	log.Info("logout everywhere", "user_id", identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	ID           string     `json:"id"`
	Username     string     `json:"username,omitempty"`
	Roles        []string   `json:"roles,omitempty"`
	Impersonator string     `json:"impersonator,omitempty"`
	Remote       bool       `json:"remote,omitempty"`
	LastLogoutAt *time.Time `json:"last_logout_at,omitempty"`
}

// Me returns the caller's identity. Externally verified subjects have no
// local user row, so the response is built from the identity alone.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity := IdentityFromCtx(ctx)
	if identity == nil {
		httpx.WriteBearerChallenge(w, "authentication required")
		return
	}

	resp := meResponse{
		ID:           identity.UserID,
		Roles:        identity.Roles,
		Impersonator: identity.Impersonator,
		Remote:       identity.Remote,
	}
	if !identity.Remote {
		if user, err := h.users.GetUserByID(ctx, identity.UserID); err == nil {
			resp.Username = user.Username
			resp.LastLogoutAt = user.LastLogoutAt
		}
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, resp)
}
