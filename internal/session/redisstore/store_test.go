package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/authcore/internal/session"
	"github.com/commercekit/authcore/pkg/cryptox"
)

func newTestStore(t *testing.T, opts session.Options) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := NewWithClient(client, "test:sess:", opts)
	require.NoError(t, err)
	return s, mr
}

func TestSetGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, session.Options{})
	ctx := context.Background()

	data := map[string]any{"user_id": "u_1", "cart_items": float64(2)}
	require.NoError(t, s.Set(ctx, "sid-1", data))

	rec, err := s.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "sid-1", rec.ID)
	require.Equal(t, data, rec.Data)
	require.WithinDuration(t, time.Now().Add(session.DefaultTTL), rec.Expires, 5*time.Second)
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t, session.Options{})

	rec, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestNativeExpiry(t *testing.T) {
	s, mr := newTestStore(t, session.Options{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sid-1", map[string]any{"k": "v"}))

	mr.FastForward(2 * time.Minute)

	rec, err := s.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestDisabledModeFiltersExpired(t *testing.T) {
	s, _ := newTestStore(t, session.Options{AutoRemove: session.RemoveDisabled})
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	require.NoError(t, s.Set(ctx, "sid-old", map[string]any{
		"cookie": map[string]any{"expires": past},
	}))

	// Key survives in redis (no native TTL in disabled mode) but reads
	// filter it out.
	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rec, err := s.Get(ctx, "sid-old")
	require.NoError(t, err)
	require.Nil(t, rec)

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestDestroyClearLen(t *testing.T) {
	s, _ := newTestStore(t, session.Options{})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, id, map[string]any{"k": id}))
	}

	require.NoError(t, s.Destroy(ctx, "a"))
	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, s.Clear(ctx))
	n, err = s.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAll(t *testing.T) {
	s, _ := newTestStore(t, session.Options{})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", map[string]any{"k": "1"}))
	require.NoError(t, s.Set(ctx, "b", map[string]any{"k": "2"}))

	records, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	ids := map[string]bool{}
	for _, rec := range records {
		ids[rec.ID] = true
	}
	require.True(t, ids["a"] && ids["b"])
}

func TestTouchIgnoresExpired(t *testing.T) {
	s, _ := newTestStore(t, session.Options{AutoRemove: session.RemoveDisabled, TTL: time.Hour})
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	require.NoError(t, s.Set(ctx, "sid-old", map[string]any{
		"cookie": map[string]any{"expires": past},
	}))

	// Touching the stale hash must not resurrect it with a fresh TTL.
	err := s.Touch(ctx, "sid-old", map[string]any{})
	require.ErrorIs(t, err, session.ErrNotFound)

	rec, err := s.Get(ctx, "sid-old")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestTouchMissing(t *testing.T) {
	s, _ := newTestStore(t, session.Options{})
	err := s.Touch(context.Background(), "nope", map[string]any{})
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestTouchExtendsExpiry(t *testing.T) {
	s, _ := newTestStore(t, session.Options{TTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sid-1", map[string]any{"k": "v"}))
	longer := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	require.NoError(t, s.Touch(ctx, "sid-1", map[string]any{
		"cookie": map[string]any{"expires": longer.Format(time.RFC3339)},
	}))

	rec, err := s.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.True(t, longer.Equal(rec.Expires))
}

func TestTouchDebounce(t *testing.T) {
	s, _ := newTestStore(t, session.Options{TTL: time.Hour, TouchAfter: time.Hour})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sid-1", map[string]any{"k": "v"}))
	before, err := s.Get(ctx, "sid-1")
	require.NoError(t, err)

	longer := time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
	require.NoError(t, s.Touch(ctx, "sid-1", map[string]any{
		"cookie": map[string]any{"expires": longer},
	}))

	after, err := s.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.True(t, before.Expires.Equal(after.Expires))
	require.True(t, before.LastModified.Equal(after.LastModified))
}

func TestLifecycleNotifications(t *testing.T) {
	var created, updated []string
	s, _ := newTestStore(t, session.Options{
		OnCreate: func(id string) { created = append(created, id) },
		OnUpdate: func(id string) { updated = append(updated, id) },
	})
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sid-1", map[string]any{"k": "v1"}))
	require.NoError(t, s.Set(ctx, "sid-1", map[string]any{"k": "v2"}))

	require.Equal(t, []string{"sid-1"}, created)
	require.Equal(t, []string{"sid-1"}, updated)
}

func TestEncryptedPayloads(t *testing.T) {
	sealer, err := cryptox.NewSealer("session-secret", cryptox.AlgorithmAESGCM)
	require.NoError(t, err)
	s, mr := newTestStore(t, session.Options{Sealer: sealer})
	ctx := context.Background()

	data := map[string]any{"user_id": "u_1"}
	require.NoError(t, s.Set(ctx, "sid-1", data))

	rec, err := s.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.Equal(t, data, rec.Data)

	mr.HSet("test:sess:sid-1", fieldPayload, "junk")
	_, err = s.Get(ctx, "sid-1")
	require.ErrorIs(t, err, cryptox.ErrDecrypt)
}

func TestRejectsIntervalMode(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewWithClient(client, "", session.Options{AutoRemove: session.RemoveInterval})
	require.ErrorIs(t, err, session.ErrBadRemovalMode)
}
