package http

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/commercekit/authcore/internal/auth/oidc"
	"github.com/commercekit/authcore/internal/auth/service"
	"github.com/commercekit/authcore/pkg/httpx"
	"github.com/commercekit/authcore/pkg/slogx"
)

// BackchannelLogout receives logout tokens pushed by external providers,
// per OpenID Connect Back-Channel Logout 1.0. Providers post the token
// form-encoded in a logout_token field; a JSON body with the same field is
// accepted as well.
func (h *Handlers) BackchannelLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	httpx.NoCache(w)

	token := logoutTokenFrom(r)
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_logout_token")
		return
	}

	if err := h.backchannel.HandleLogoutToken(ctx, token); err != nil {
		code, status := logoutErrorCode(err)
		if status == http.StatusInternalServerError {
			log.Error("backchannel logout failed", "error", err)
		}
		httpx.WriteError(w, status, code)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func logoutTokenFrom(r *http.Request) string {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body struct {
			LogoutToken string `json:"logout_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return ""
		}
		return body.LogoutToken
	}

	if err := r.ParseForm(); err != nil {
		return ""
	}
	return r.PostFormValue("logout_token")
}

func logoutErrorCode(err error) (code string, status int) {
	switch {
	case errors.Is(err, oidc.ErrUnknownIssuer):
		return "unknown_issuer", http.StatusBadRequest
	case errors.Is(err, service.ErrLogoutExpired):
		return "token_expired", http.StatusBadRequest
	case errors.Is(err, service.ErrLogoutSignature):
		return "invalid_signature", http.StatusBadRequest
	case errors.Is(err, service.ErrLogoutTokenType):
		return "invalid_token_type", http.StatusBadRequest
	case errors.Is(err, service.ErrLogoutSubject):
		return "missing_subject", http.StatusBadRequest
	case errors.Is(err, service.ErrLogoutClaims):
		return "invalid_claims", http.StatusBadRequest
	default:
		return "server_error", http.StatusInternalServerError
	}
}
