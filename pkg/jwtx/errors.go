package jwtx

import "errors"

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrInvalidSig = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")

	// ErrWeakSecret is a configuration error: it must fail startup, never be
	// downgraded to a runtime warning.
	ErrWeakSecret = errors.New("jwtx: signing secret must be at least 32 bytes")
)
