// Package sqlitestore persists session documents in a sqlite table. Sqlite
// has no native TTL, so expired rows are removed by a periodic sweep (or
// left to the caller in disabled mode); reads filter them out either way.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/commercekit/authcore/internal/session"
	_ "modernc.org/sqlite"
)

// reapTimeout bounds a single sweep so a wedged database cannot pin the
// reaper goroutine.
const reapTimeout = 30 * time.Second

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Store struct {
	db    *sql.DB
	table string
	opts  session.Options
	log   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// New opens (or reuses) the sqlite database at dsn and prepares the session
// table. The removal mode must be interval or disabled; sqlite has no native
// expiry.
func New(dsn, table string, opts session.Options, log *slog.Logger) (*Store, error) {
	opts = opts.WithDefaults()
	if opts.AutoRemove == session.RemoveNative {
		return nil, fmt.Errorf("%w: sqlite has no native TTL", session.ErrBadRemovalMode)
	}
	if table == "" {
		table = "sessions"
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("sqlitestore: invalid table name %q", table)
	}
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:    db,
		table: table,
		opts:  opts,
		log:   log,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	if _, err := db.ExecContext(context.Background(), fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			id            TEXT PRIMARY KEY,
			payload       BLOB NOT NULL,
			expires       INTEGER NOT NULL,
			last_modified INTEGER
		)`, table)); err != nil {
		_ = db.Close()
		return nil, err
	}

	if opts.AutoRemove == session.RemoveInterval {
		go s.reapLoop()
	} else {
		close(s.done)
	}

	return s, nil
}

func (s *Store) Get(ctx context.Context, id string) (*session.Record, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT payload, expires, last_modified FROM %s WHERE id = ? AND expires > ?`,
		s.table), id, time.Now().UTC().Unix())

	rec, err := s.scan(id, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) Set(ctx context.Context, id string, data map[string]any) error {
	now := time.Now().UTC()

	payload, err := s.opts.Encode(data)
	if err != nil {
		return err
	}
	expires := s.opts.ExpiresFrom(data, now)

	var lastModified sql.NullInt64
	if s.opts.TouchAfter > 0 {
		lastModified = sql.NullInt64{Int64: now.Unix(), Valid: true}
	}

	// Existence probe only informs the create/update notification; the
	// write itself is a last-write-wins upsert.
	var exists bool
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)`, s.table), id).Scan(&exists)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, payload, expires, last_modified) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			expires = excluded.expires,
			last_modified = excluded.last_modified`,
		s.table), id, payload, expires.Unix(), lastModified)
	if err != nil {
		return err
	}

	s.opts.Notify(id, exists)
	return nil
}

func (s *Store) Touch(ctx context.Context, id string, data map[string]any) error {
	now := time.Now().UTC()

	// An expired but unswept row is logically absent; touching it must not
	// bring it back.
	var lastModified sql.NullInt64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT last_modified FROM %s WHERE id = ? AND expires > ?`, s.table),
		id, now.Unix()).Scan(&lastModified)
	if errors.Is(err, sql.ErrNoRows) {
		return session.ErrNotFound
	}
	if err != nil {
		return err
	}

	if lastModified.Valid && !s.opts.TouchDue(time.Unix(lastModified.Int64, 0).UTC(), now) {
		// Within the debounce window: report success without writing.
		return nil
	}

	expires := s.opts.ExpiresFrom(data, now)
	stamp := lastModified
	if s.opts.TouchAfter > 0 {
		stamp = sql.NullInt64{Int64: now.Unix(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET expires = ?, last_modified = ? WHERE id = ?`, s.table),
		expires.Unix(), stamp, id)
	return err
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = ?`, s.table), id)
	return err
}

func (s *Store) All(ctx context.Context) ([]session.Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, payload, expires, last_modified FROM %s WHERE expires > ?`,
		s.table), time.Now().UTC().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []session.Record
	for rows.Next() {
		var (
			id           string
			payload      []byte
			expires      int64
			lastModified sql.NullInt64
		)
		if err := rows.Scan(&id, &payload, &expires, &lastModified); err != nil {
			return nil, err
		}
		rec, err := s.build(id, payload, expires, lastModified)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n)
	return n, err
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table))
	return err
}

// Close stops the reaper and closes the database handle.
func (s *Store) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	return s.db.Close()
}

func (s *Store) reapLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.RemoveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
			res, err := s.db.ExecContext(ctx, fmt.Sprintf(
				`DELETE FROM %s WHERE expires <= ?`, s.table),
				time.Now().UTC().Unix())
			cancel()
			if err != nil {
				s.log.Warn("session reap failed", "err", err)
				continue
			}
			if n, err := res.RowsAffected(); err == nil && n > 0 {
				s.log.Debug("session reap", "removed", n)
			}
		case <-s.stop:
			return
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(id string, row rowScanner) (*session.Record, error) {
	var (
		payload      []byte
		expires      int64
		lastModified sql.NullInt64
	)
	if err := row.Scan(&payload, &expires, &lastModified); err != nil {
		return nil, err
	}
	return s.build(id, payload, expires, lastModified)
}

func (s *Store) build(id string, payload []byte, expires int64, lastModified sql.NullInt64) (*session.Record, error) {
	data, err := s.opts.Decode(payload)
	if err != nil {
		return nil, err
	}
	rec := &session.Record{
		ID:      id,
		Data:    data,
		Expires: time.Unix(expires, 0).UTC(),
	}
	if lastModified.Valid {
		rec.LastModified = time.Unix(lastModified.Int64, 0).UTC()
	}
	return rec, nil
}
