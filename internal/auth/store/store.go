package store

import (
	"context"
	"errors"
	"time"

	"github.com/commercekit/authcore/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface for the user/token-version
// collaborator. Concrete drivers (sqlite today) implement this.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername returns a user by username.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// IncrementTokenVersion bumps the per-subject token-version counter and
	// returns the new value. Every access token issued before the bump fails
	// the version comparison on its next presentation.
	IncrementTokenVersion(ctx context.Context, userID string) (int, error)

	// RecordLogout stamps the last forced-logout time for audit.
	RecordLogout(ctx context.Context, userID string, at time.Time) error

	// DeleteUser removes a user.
	DeleteUser(ctx context.Context, userID string) error
}
