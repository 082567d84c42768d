package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/authcore/pkg/jwtx"
)

// jwksServer serves a mutable key set at the conventional well-known path.
type jwksServer struct {
	srv *httptest.Server

	mu   sync.Mutex
	keys map[string]*rsa.PrivateKey
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	js := &jwksServer{keys: map[string]*rsa.PrivateKey{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		js.mu.Lock()
		defer js.mu.Unlock()

		set := jwk.NewSet()
		for kid, priv := range js.keys {
			key, err := jwk.Import(priv.Public())
			require.NoError(t, err)
			require.NoError(t, key.Set(jwk.KeyIDKey, kid))
			require.NoError(t, key.Set(jwk.AlgorithmKey, "RS256"))
			require.NoError(t, set.AddKey(key))
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(set))
	})

	js.srv = httptest.NewServer(mux)
	t.Cleanup(js.srv.Close)
	return js
}

func (js *jwksServer) addKey(t *testing.T, kid string) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	js.mu.Lock()
	js.keys[kid] = priv
	js.mu.Unlock()
	return priv
}

func (js *jwksServer) issuer() string { return js.srv.URL }

func (js *jwksServer) sign(t *testing.T, kid string, priv *rsa.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	require.NoError(t, err)
	return signed
}

func newTestVerifier(t *testing.T, providers ...Provider) *Verifier {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	keys, err := NewKeyCache(ctx)
	require.NoError(t, err)
	return NewVerifier(NewRegistry(providers...), keys)
}

func baseClaims(issuer, subject string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": issuer,
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

func TestVerifyExternalToken(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.addKey(t, "kid-1")
	v := newTestVerifier(t, Provider{Issuer: js.issuer()})

	claims := baseClaims(js.issuer(), "auth0|user-1")
	claims["roles"] = []string{"customer", "vip"}
	token := js.sign(t, "kid-1", priv, claims)

	identity, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "auth0|user-1", identity.UserID)
	require.Equal(t, []string{"customer", "vip"}, identity.Roles)
	require.True(t, identity.Remote)
}

func TestVerifyNormalizesIssuer(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.addKey(t, "kid-1")

	// Provider configured with a trailing slash; token issued without.
	v := newTestVerifier(t, Provider{Issuer: js.issuer() + "/"})

	token := js.sign(t, "kid-1", priv, baseClaims(js.issuer(), "u-1"))
	identity, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "u-1", identity.UserID)
}

func TestVerifyUnknownIssuer(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.addKey(t, "kid-1")
	v := newTestVerifier(t, Provider{Issuer: "https://id.example.com"})

	token := js.sign(t, "kid-1", priv, baseClaims(js.issuer(), "u-1"))
	_, err := v.Verify(context.Background(), token)
	require.ErrorIs(t, err, ErrUnknownIssuer)
}

func TestVerifyTamperedSignature(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.addKey(t, "kid-1")
	v := newTestVerifier(t, Provider{Issuer: js.issuer()})

	token := js.sign(t, "kid-1", priv, baseClaims(js.issuer(), "u-1"))
	tampered := token[:len(token)-2] + "xx"

	_, err := v.Verify(context.Background(), tampered)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)
}

func TestVerifyExpired(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.addKey(t, "kid-1")
	v := newTestVerifier(t, Provider{Issuer: js.issuer()})

	claims := baseClaims(js.issuer(), "u-1")
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	token := js.sign(t, "kid-1", priv, claims)

	_, err := v.Verify(context.Background(), token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestVerifyAudience(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.addKey(t, "kid-1")
	v := newTestVerifier(t, Provider{Issuer: js.issuer(), Audience: "shop-api"})

	t.Run("matching", func(t *testing.T) {
		claims := baseClaims(js.issuer(), "u-1")
		claims["aud"] = "shop-api"
		token := js.sign(t, "kid-1", priv, claims)

		_, err := v.Verify(context.Background(), token)
		require.NoError(t, err)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := baseClaims(js.issuer(), "u-1")
		claims["aud"] = "someone-else"
		token := js.sign(t, "kid-1", priv, claims)

		_, err := v.Verify(context.Background(), token)
		require.Error(t, err)
	})
}

func TestVerifyMissingSubject(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.addKey(t, "kid-1")
	v := newTestVerifier(t, Provider{Issuer: js.issuer()})

	claims := baseClaims(js.issuer(), "u-1")
	delete(claims, "sub")
	token := js.sign(t, "kid-1", priv, claims)

	_, err := v.Verify(context.Background(), token)
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}

func TestVerifyMissingKid(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.addKey(t, "kid-1")
	v := newTestVerifier(t, Provider{Issuer: js.issuer()})

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, baseClaims(js.issuer(), "u-1"))
	signed, err := token.SignedString(priv)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signed)
	require.Error(t, err)
}

func TestVerifyKeyRotation(t *testing.T) {
	js := newJWKSServer(t)
	priv1 := js.addKey(t, "kid-1")
	v := newTestVerifier(t, Provider{Issuer: js.issuer()})

	// Warm the cache with the original key.
	token := js.sign(t, "kid-1", priv1, baseClaims(js.issuer(), "u-1"))
	_, err := v.Verify(context.Background(), token)
	require.NoError(t, err)

	// Rotate: a token signed with a key the cache has not seen forces one
	// refetch.
	priv2 := js.addKey(t, "kid-2")
	token = js.sign(t, "kid-2", priv2, baseClaims(js.issuer(), "u-2"))
	identity, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "u-2", identity.UserID)
}

func TestPeekToken(t *testing.T) {
	js := newJWKSServer(t)
	priv := js.addKey(t, "kid-1")
	token := js.sign(t, "kid-1", priv, baseClaims("https://id.example.com", "u-1"))

	iss, sub, err := PeekToken(token)
	require.NoError(t, err)
	require.Equal(t, "https://id.example.com", iss)
	require.Equal(t, "u-1", sub)

	_, _, err = PeekToken("not-a-jwt")
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}

func TestNormalizeIssuer(t *testing.T) {
	require.Equal(t, "https://id.example.com", NormalizeIssuer(" https://id.example.com/ "))
	require.Equal(t, "https://id.example.com", NormalizeIssuer("https://id.example.com"))
}
