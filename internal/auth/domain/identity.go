package domain

// Identity is the outcome of a successful token verification, local or
// remote. It carries no credential material - only who the request is acting
// as and how we came to believe it.
type Identity struct {
	UserID string

	// TokenVersion is set for locally-issued tokens only.
	TokenVersion int

	// Impersonator is the administrator id when this identity is being
	// impersonated.
	Impersonator string

	// Roles are claims relayed from an external identity provider, when any.
	Roles []string

	// Remote marks identities established via an external provider token
	// rather than a locally-issued one.
	Remote bool
}
