package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/commercekit/authcore/internal/auth/domain"
	"github.com/commercekit/authcore/internal/auth/store"
	"github.com/commercekit/authcore/internal/auth/store/drivers/sqlite"
	"github.com/commercekit/authcore/pkg/cryptox"
	"github.com/commercekit/authcore/pkg/idx"
	"github.com/commercekit/authcore/pkg/jwtx"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestUsers(t *testing.T) store.Users {
	t.Helper()
	db, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations())
	t.Cleanup(func() { _ = db.Close() })
	return db.Users()
}

func newTestTokenService(t *testing.T, users store.Users) *TokenService {
	t.Helper()
	signer, err := jwtx.NewSignerHS256(testSecret, "authcore", time.Hour)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierHS256(testSecret, "authcore")
	require.NoError(t, err)
	return NewTokenService(signer, verifier, users)
}

func createUser(t *testing.T, users store.Users, username string) domain.User {
	t.Helper()
	u := domain.User{ID: idx.New().String(), Username: username}
	require.NoError(t, users.CreateUser(context.Background(), u))
	return u
}

func TestIssueAndVerify(t *testing.T) {
	users := newTestUsers(t)
	svc := newTestTokenService(t, users)
	ctx := context.Background()

	user := createUser(t, users, "ada")

	issued, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
	require.NotEmpty(t, issued.Fingerprint.Raw)
	require.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, 5*time.Second)

	claims, err := svc.VerifyLocal(ctx, issued.Token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Zero(t, claims.TokenVersion)

	// The token carries the fingerprint hash, never the raw value.
	require.Equal(t, cryptox.HashFingerprint(issued.Fingerprint.Raw), claims.FingerprintHash)
	require.NotContains(t, issued.Token, issued.Fingerprint.Raw)
}

func TestIssueUnknownUser(t *testing.T) {
	svc := newTestTokenService(t, newTestUsers(t))

	_, err := svc.Issue(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestIssueImpersonated(t *testing.T) {
	users := newTestUsers(t)
	svc := newTestTokenService(t, users)
	ctx := context.Background()

	user := createUser(t, users, "ada")
	admin := createUser(t, users, "ops")

	issued, err := svc.IssueImpersonated(ctx, user.ID, admin.ID)
	require.NoError(t, err)

	claims, err := svc.VerifyLocal(ctx, issued.Token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, admin.ID, claims.Impersonator)
}

func TestRevokeAllInvalidatesOutstandingTokens(t *testing.T) {
	users := newTestUsers(t)
	svc := newTestTokenService(t, users)
	ctx := context.Background()

	user := createUser(t, users, "ada")

	issued, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)

	_, err = svc.VerifyLocal(ctx, issued.Token)
	require.NoError(t, err)

	version, err := svc.RevokeAll(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, version)

	// The old token fails the version comparison.
	_, err = svc.VerifyLocal(ctx, issued.Token)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// A token issued after the bump is good.
	fresh, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)
	claims, err := svc.VerifyLocal(ctx, fresh.Token)
	require.NoError(t, err)
	require.Equal(t, 1, claims.TokenVersion)

	// And the logout time was recorded.
	stored, err := users.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogoutAt)
}

func TestVerifyLocalDeletedUser(t *testing.T) {
	users := newTestUsers(t)
	svc := newTestTokenService(t, users)
	ctx := context.Background()

	user := createUser(t, users, "ada")
	issued, err := svc.Issue(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, users.DeleteUser(ctx, user.ID))

	_, err = svc.VerifyLocal(ctx, issued.Token)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestVerifyLocalGarbage(t *testing.T) {
	svc := newTestTokenService(t, newTestUsers(t))

	_, err := svc.VerifyLocal(context.Background(), "not-a-token")
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}
