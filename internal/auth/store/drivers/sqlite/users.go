package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/commercekit/authcore/internal/auth/domain"
	"github.com/commercekit/authcore/internal/auth/store"
)

type usersRepo struct {
	db *sql.DB
}

const userColumns = `id, username, token_version, last_logout_at, created_at, updated_at`

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, token_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.TokenVersion, now.Unix(), now.Unix())
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) IncrementTokenVersion(ctx context.Context, userID string) (int, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET token_version = token_version + 1, updated_at = ?
		 WHERE id = ?
		 RETURNING token_version`,
		time.Now().UTC().Unix(), userID)

	var version int
	if err := row.Scan(&version); err != nil {
		return 0, mapNotFound(err)
	}
	return version, nil
}

func (r *usersRepo) RecordLogout(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_logout_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC().Unix(), time.Now().UTC().Unix(), userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	return err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u          domain.User
		lastLogout sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.TokenVersion, &lastLogout, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	if lastLogout.Valid {
		t := time.Unix(lastLogout.Int64, 0).UTC()
		u.LastLogoutAt = &t
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return u, nil
}
