package httpx

import "context"

type ctxKey string

const (
	// CtxKeyUserID holds the authenticated subject id, when any.
	CtxKeyUserID ctxKey = "user_id"

	// CtxKeyImpersonator holds the administrator id acting as the subject.
	CtxKeyImpersonator ctxKey = "impersonator"

	// CtxKeyAPIKeyCandidate holds a presented token that no verifier
	// understood. It grants no identity; a downstream collaborator may look
	// it up as an opaque API key.
	CtxKeyAPIKeyCandidate ctxKey = "api_key_candidate"
)

// UserIDFromCtx returns the authenticated subject id, or "" for anonymous
// requests.
func UserIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// APIKeyCandidateFromCtx returns the opaque token passed through by the auth
// middleware, or "".
func APIKeyCandidateFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyAPIKeyCandidate).(string); ok {
		return v
	}
	return ""
}
