// Package redisstore persists session documents in redis hashes, one key per
// session. Expiry is enforced natively through key TTLs; a stored expires
// field backs the same query-time filter the other drivers apply, which is
// what disabled-removal mode relies on.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/commercekit/authcore/internal/session"
	"github.com/redis/go-redis/v9"
)

const (
	fieldPayload      = "session"
	fieldExpires      = "expires"
	fieldLastModified = "last_modified"
)

// Default timeouts for dedicated connections.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Config holds connection settings for a dedicated redis client.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces this deployment's sessions, e.g. "authcore:sess:".
	KeyPrefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Store struct {
	client     redis.UniversalClient
	prefix     string
	opts       session.Options
	ownsClient bool
}

// New connects to redis and returns a session store. The removal mode must
// be native or disabled; redis expires keys itself, so an interval sweep
// would be redundant.
func New(ctx context.Context, cfg Config, opts session.Options) (*Store, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: connect: %w", err)
	}

	s, err := NewWithClient(client, cfg.KeyPrefix, opts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.ownsClient = true
	return s, nil
}

// NewWithClient wraps a pre-configured client. Useful for tests (miniredis)
// and shared connection pools; Close leaves the client open.
func NewWithClient(client redis.UniversalClient, keyPrefix string, opts session.Options) (*Store, error) {
	if opts.AutoRemove == "" {
		opts.AutoRemove = session.RemoveNative
	}
	opts = opts.WithDefaults()
	if opts.AutoRemove == session.RemoveInterval {
		return nil, fmt.Errorf("%w: redis expires keys natively", session.ErrBadRemovalMode)
	}
	if keyPrefix == "" {
		keyPrefix = "sessions:"
	}
	return &Store{client: client, prefix: keyPrefix, opts: opts}, nil
}

func (s *Store) key(id string) string { return s.prefix + id }

func (s *Store) Get(ctx context.Context, id string) (*session.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	rec, err := s.build(id, fields)
	if err != nil {
		return nil, err
	}
	if !rec.Expires.After(time.Now().UTC()) {
		return nil, nil
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

	key := s.key(id)
	existed, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}

	values := map[string]any{
		fieldPayload: payload,
		fieldExpires: expires.Unix(),
	}
	if s.opts.TouchAfter > 0 {
		values[fieldLastModified] = now.Unix()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, values)
	if s.opts.AutoRemove == session.RemoveNative {
		pipe.ExpireAt(ctx, key, expires)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	s.opts.Notify(id, existed > 0)
	return nil
}

func (s *Store) Touch(ctx context.Context, id string, data map[string]any) error {
	now := time.Now().UTC()
	key := s.key(id)

	fields, err := s.client.HMGet(ctx, key, fieldExpires, fieldLastModified).Result()
	if err != nil {
		return err
	}

	// An expired hash that native expiry has not removed yet is logically
	// absent; touching it must not bring it back.
	exp, ok := fields[0].(string)
	if !ok {
		return session.ErrNotFound
	}
	if at, parseErr := strconv.ParseInt(exp, 10, 64); parseErr == nil && !time.Unix(at, 0).After(now) {
		return session.ErrNotFound
	}

	if lm, ok := fields[1].(string); ok {
		stamp, parseErr := strconv.ParseInt(lm, 10, 64)
		if parseErr == nil && !s.opts.TouchDue(time.Unix(stamp, 0).UTC(), now) {
			return nil
		}
	}

	expires := s.opts.ExpiresFrom(data, now)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fieldExpires, expires.Unix())
	if s.opts.TouchAfter > 0 {
		pipe.HSet(ctx, key, fieldLastModified, now.Unix())
	}
	if s.opts.AutoRemove == session.RemoveNative {
		pipe.ExpireAt(ctx, key, expires)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *Store) All(ctx context.Context) ([]session.Record, error) {
	var records []session.Record
	now := time.Now().UTC()

	err := s.scanKeys(ctx, func(key string) error {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			// Expired between SCAN and HGETALL.
			return nil
		}
		rec, err := s.build(key[len(s.prefix):], fields)
		if err != nil {
			return err
		}
		if rec.Expires.After(now) {
			records = append(records, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	n := 0
	err := s.scanKeys(ctx, func(string) error {
		n++
		return nil
	})
	return n, err
}

func (s *Store) Clear(ctx context.Context) error {
	return s.scanKeys(ctx, func(key string) error {
		return s.client.Del(ctx, key).Err()
	})
}

// Close releases the client when this store owns it.
func (s *Store) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}

func (s *Store) scanKeys(ctx context.Context, fn func(key string) error) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *Store) build(id string, fields map[string]string) (*session.Record, error) {
	payload, ok := fields[fieldPayload]
	if !ok {
		return nil, fmt.Errorf("redisstore: session %q missing payload field", id)
	}

	data, err := s.opts.Decode([]byte(payload))
	if err != nil {
		return nil, err
	}

	rec := &session.Record{ID: id, Data: data}

	if v, ok := fields[fieldExpires]; ok {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redisstore: session %q bad expires: %w", id, err)
		}
		rec.Expires = time.Unix(ts, 0).UTC()
	}
	if v, ok := fields[fieldLastModified]; ok {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.LastModified = time.Unix(ts, 0).UTC()
		}
	}
	return rec, nil
}
