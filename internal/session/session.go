// Package session defines a generic server-side session store contract plus
// the shared serialization, encryption, and expiry policy used by its
// drivers. The store persists session documents keyed by session id; it is
// independent of the token-based auth path and can back any session
// middleware.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports a touch on a session that does not exist (or has
	// already expired). Get deliberately returns (nil, nil) instead: absent
	// and expired sessions are indistinguishable to callers.
	ErrNotFound = errors.New("session: not found")

	// ErrBadRemovalMode reports a removal mode a driver cannot provide.
	ErrBadRemovalMode = errors.New("session: unsupported removal mode")
)

// Record is a stored session document.
type Record struct {
	ID           string
	Data         map[string]any
	Expires      time.Time
	LastModified time.Time
}

// Store is the generic session-store contract. I/O errors always propagate
// to the caller; no driver may swallow them, since a silent failure here can
// mask data loss or tampering.
type Store interface {
	// Get fetches a session by id, filtering out documents whose expiry has
	// passed even if they have not been physically removed yet. Returns
	// (nil, nil) when no live session exists.
	Get(ctx context.Context, id string) (*Record, error)

	// Set upserts the session payload and recomputes its expiry.
	Set(ctx context.Context, id string, data map[string]any) error

	// Touch refreshes the session's expiry without rewriting the payload.
	// When a touch-after threshold is configured and the session was
	// modified more recently than the threshold, the touch is a successful
	// no-op.
	Touch(ctx context.Context, id string, data map[string]any) error

	// Destroy removes the session.
	Destroy(ctx context.Context, id string) error

	// All returns every live session, applying the same expiry filter as Get.
	All(ctx context.Context) ([]Record, error)

	// Len returns the number of stored session documents.
	Len(ctx context.Context) (int, error)

	// Clear removes all session documents.
	Clear(ctx context.Context) error

	// Close stops background maintenance and releases resources.
	Close() error
}

// RemovalMode selects how expired sessions are physically removed.
type RemovalMode string

const (
	// RemoveNative relies on the backend's own expiry (e.g. a redis key
	// TTL). Removal is passive and eventual.
	RemoveNative RemovalMode = "native"

	// RemoveInterval runs an explicit periodic sweep, for backends without
	// native expiry.
	RemoveInterval RemovalMode = "interval"

	// RemoveDisabled leaves removal to the caller; reads still filter
	// expired documents.
	RemoveDisabled RemovalMode = "disabled"
)

const (
	// DefaultTTL applies when the session payload carries no cookie expiry.
	DefaultTTL = 14 * 24 * time.Hour

	// DefaultRemoveInterval is the sweep period for RemoveInterval.
	DefaultRemoveInterval = 10 * time.Minute

	// MaxRemoveInterval bounds the sweep period. Timers built from
	// unbounded config values can overflow their internal representation.
	MaxRemoveInterval = 24 * time.Hour
)
