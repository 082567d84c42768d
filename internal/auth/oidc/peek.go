package oidc

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/commercekit/authcore/pkg/jwtx"
)

// PeekToken decodes the payload of a compact JWT without verifying it and
// returns the iss and sub claims. This is a routing hint only; callers must
// still verify the token before trusting anything in it.
func PeekToken(raw string) (issuer, subject string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return "", "", jwtx.ErrMalformed
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", "", jwtx.ErrMalformed
	}

	var claims struct {
		Issuer  string `json:"iss"`
		Subject string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", "", jwtx.ErrMalformed
	}
	return claims.Issuer, claims.Subject, nil
}
