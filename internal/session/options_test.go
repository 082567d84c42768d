package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/commercekit/authcore/pkg/cryptox"
)

func TestWithDefaults(t *testing.T) {
	o := Options{}.WithDefaults()
	require.Equal(t, DefaultTTL, o.TTL)
	require.Equal(t, RemoveInterval, o.AutoRemove)
	require.Equal(t, DefaultRemoveInterval, o.RemoveInterval)
	require.NotNil(t, o.Serializer)
}

func TestWithDefaultsClampsInterval(t *testing.T) {
	o := Options{RemoveInterval: 48 * time.Hour}.WithDefaults()
	require.Equal(t, MaxRemoveInterval, o.RemoveInterval)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	o := Options{}.WithDefaults()

	data := map[string]any{"user_id": "u_1", "count": float64(3)}
	b, err := o.Encode(data)
	require.NoError(t, err)

	got, err := o.Decode(b)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestEncodeDecodeSealed(t *testing.T) {
	sealer, err := cryptox.NewSealer("session-secret", cryptox.AlgorithmAESGCM)
	require.NoError(t, err)
	o := Options{Sealer: sealer}.WithDefaults()

	data := map[string]any{"user_id": "u_1"}
	b, err := o.Encode(data)
	require.NoError(t, err)
	require.NotContains(t, string(b), "u_1")

	got, err := o.Decode(b)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestDecodeFailurePropagates(t *testing.T) {
	sealer, err := cryptox.NewSealer("session-secret", cryptox.AlgorithmAESGCM)
	require.NoError(t, err)
	o := Options{Sealer: sealer}.WithDefaults()

	_, err = o.Decode([]byte("garbage"))
	require.ErrorIs(t, err, cryptox.ErrDecrypt)

	other := Options{}.WithDefaults()
	_, err = other.Decode([]byte("garbage"))
	require.Error(t, err)
}

func TestExpiresFrom(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cookieExpiry := now.Add(48 * time.Hour)
	o := Options{TTL: time.Hour}.WithDefaults()

	tests := []struct {
		name string
		data map[string]any
		want time.Time
	}{
		{"no cookie", map[string]any{}, now.Add(time.Hour)},
		{"cookie without expires", map[string]any{"cookie": map[string]any{}}, now.Add(time.Hour)},
		{
			"time.Time expiry",
			map[string]any{"cookie": map[string]any{"expires": cookieExpiry}},
			cookieExpiry,
		},
		{
			"RFC3339 string expiry",
			map[string]any{"cookie": map[string]any{"expires": cookieExpiry.Format(time.RFC3339)}},
			cookieExpiry,
		},
		{
			"unparseable string",
			map[string]any{"cookie": map[string]any{"expires": "tomorrow"}},
			now.Add(time.Hour),
		},
		{
			"zero time.Time",
			map[string]any{"cookie": map[string]any{"expires": time.Time{}}},
			now.Add(time.Hour),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.want.Equal(o.ExpiresFrom(tt.data, now)))
		})
	}
}

func TestTouchDue(t *testing.T) {
	now := time.Now().UTC()

	o := Options{TouchAfter: time.Minute}
	require.False(t, o.TouchDue(now.Add(-30*time.Second), now))
	require.True(t, o.TouchDue(now.Add(-2*time.Minute), now))

	// Zero disables the debounce entirely.
	o = Options{}
	require.True(t, o.TouchDue(now, now))
}

func TestNotify(t *testing.T) {
	var created, updated []string
	o := Options{
		OnCreate: func(id string) { created = append(created, id) },
		OnUpdate: func(id string) { updated = append(updated, id) },
	}

	o.Notify("a", false)
	o.Notify("b", true)
	require.Equal(t, []string{"a"}, created)
	require.Equal(t, []string{"b"}, updated)

	// Nil hooks are fine.
	Options{}.Notify("c", true)
	Options{}.Notify("c", false)
}
