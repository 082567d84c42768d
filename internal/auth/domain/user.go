package domain

import "time"

// User is the minimal account record the auth core needs: identity plus the
// token-version counter and logout bookkeeping. Credential material lives
// with the user-credential collaborator, not here.
type User struct {
	ID       string
	Username string

	// TokenVersion is the current per-subject counter. Access tokens carry
	// the version they were issued at; a token whose version differs from
	// this value is no longer trusted.
	TokenVersion int

	// LastLogoutAt records the most recent forced logout (back-channel push
	// or explicit logout-all), for audit.
	LastLogoutAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
