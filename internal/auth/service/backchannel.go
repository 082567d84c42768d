package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/commercekit/authcore/internal/auth/oidc"
	"github.com/commercekit/authcore/internal/auth/store"
	"github.com/commercekit/authcore/internal/session"
)

// LogoutEventClaim is the member that must appear in a logout token's
// events claim, per OpenID Connect Back-Channel Logout 1.0.
const LogoutEventClaim = "http://schemas.openid.net/event/backchannel-logout"

// logoutTokenMaxAge bounds how old a logout token's iat may be. Providers
// send these immediately, so a large skew indicates replay.
const logoutTokenMaxAge = 5 * time.Minute

var (
	ErrLogoutExpired   = errors.New("logout token expired")
	ErrLogoutSignature = errors.New("logout token signature invalid")
	ErrLogoutClaims    = errors.New("logout token claims invalid")
	ErrLogoutTokenType = errors.New("token is not a logout token")
	ErrLogoutSubject   = errors.New("logout token missing subject")
)

type logoutClaims struct {
	jwt.RegisteredClaims

	Events map[string]any `json:"events"`
	SID    string         `json:"sid,omitempty"`
	Nonce  string         `json:"nonce,omitempty"`
}

// BackchannelService processes back-channel logout tokens pushed by
// external providers and revokes the affected user's credentials.
type BackchannelService struct {
	verifier *oidc.Verifier
	tokens   *TokenService
	users    store.Users
	sessions session.Store
	log      *slog.Logger
}

// NewBackchannelService wires the logout pipeline. sessions may be nil when
// no session store is deployed.
func NewBackchannelService(
	verifier *oidc.Verifier,
	tokens *TokenService,
	users store.Users,
	sessions session.Store,
	log *slog.Logger,
) *BackchannelService {
	return &BackchannelService{
		verifier: verifier,
		tokens:   tokens,
		users:    users,
		sessions: sessions,
		log:      log,
	}
}

// HandleLogoutToken validates a logout token and revokes the subject's
// tokens and sessions. An unknown subject is not an error; the provider
// only needs to know the notification was accepted.
func (s *BackchannelService) HandleLogoutToken(ctx context.Context, raw string) error {
	issuer, subject, err := oidc.PeekToken(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLogoutClaims, err)
	}

	if s.verifier == nil {
		return fmt.Errorf("%w: no providers configured", oidc.ErrUnknownIssuer)
	}
	provider, ok := s.verifier.Registry().Lookup(issuer)
	if !ok {
		return fmt.Errorf("%w: %q", oidc.ErrUnknownIssuer, oidc.NormalizeIssuer(issuer))
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA"}),
	}
	if provider.Audience != "" {
		opts = append(opts, jwt.WithAudience(provider.Audience))
	}

	claims := &logoutClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, s.verifier.Keyfunc(ctx, provider), opts...)
	if err != nil {
		return s.mapLogoutError(err, issuer, subject)
	}

	if oidc.NormalizeIssuer(claims.Issuer) != provider.Issuer {
		return fmt.Errorf("%w: issuer mismatch", ErrLogoutClaims)
	}
	if _, ok := claims.Events[LogoutEventClaim]; !ok {
		return ErrLogoutTokenType
	}
	// Logout tokens must not carry a nonce; its presence suggests an ID
	// token was replayed here.
	if claims.Nonce != "" {
		return fmt.Errorf("%w: nonce present", ErrLogoutClaims)
	}
	if claims.Subject == "" {
		return ErrLogoutSubject
	}
	if claims.IssuedAt != nil && time.Since(claims.IssuedAt.Time) > logoutTokenMaxAge {
		return ErrLogoutExpired
	}

	return s.revokeSubject(ctx, claims.Subject)
}

func (s *BackchannelService) mapLogoutError(err error, issuer, subject string) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrLogoutExpired
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", ErrLogoutClaims, err)
	default:
		s.log.Warn("backchannel logout token failed signature check",
			"issuer", oidc.NormalizeIssuer(issuer),
			"subject", subject,
		)
		return fmt.Errorf("%w: %v", ErrLogoutSignature, err)
	}
}

func (s *BackchannelService) revokeSubject(ctx context.Context, subject string) error {
	if _, err := s.users.GetUserByID(ctx, subject); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.Info("backchannel logout for unknown subject", "subject", subject)
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}

	if _, err := s.tokens.RevokeAll(ctx, subject); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}

	if s.sessions != nil {
		if err := s.destroySessions(ctx, subject); err != nil {
			// Tokens are already revoked; stale session rows only hold
			// data until their TTL runs out.
			s.log.Warn("backchannel session cleanup failed", "subject", subject, "error", err)
		}
	}

	s.log.Info("backchannel logout processed", "subject", subject)
	return nil
}

// destroySessions removes every stored session whose user_id matches the
// subject.
func (s *BackchannelService) destroySessions(ctx context.Context, subject string) error {
	records, err := s.sessions.All(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, rec := range records {
		if uid, _ := rec.Data["user_id"].(string); uid != subject {
			continue
		}
		if err := s.sessions.Destroy(ctx, rec.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
