package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/commercekit/authcore/pkg/cryptox"
)

// Serializer converts session payloads to and from stored bytes. The default
// is JSON; replace it when payloads carry types JSON cannot round-trip.
type Serializer interface {
	Marshal(data map[string]any) ([]byte, error)
	Unmarshal(b []byte) (map[string]any, error)
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(data map[string]any) ([]byte, error) {
	return json.Marshal(data)
}

func (jsonSerializer) Unmarshal(b []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// Options is the shared driver configuration.
type Options struct {
	// TTL is the fallback session lifetime when the payload carries no
	// cookie expiry. Zero means DefaultTTL.
	TTL time.Duration

	// TouchAfter suppresses touches that arrive within this window of the
	// last modification (write-amplification control). Zero disables the
	// debounce and also disables lastModified stamping.
	TouchAfter time.Duration

	// AutoRemove selects native TTL, interval sweep, or caller-managed
	// removal. Empty means RemoveInterval for drivers that support it.
	AutoRemove RemovalMode

	// RemoveInterval is the sweep period for RemoveInterval mode, clamped
	// to MaxRemoveInterval.
	RemoveInterval time.Duration

	// Serializer defaults to JSON.
	Serializer Serializer

	// Sealer, when set, encrypts serialized payloads at rest.
	Sealer *cryptox.Sealer

	// OnCreate and OnUpdate are lifecycle notifications: Set calls OnCreate
	// when it inserts a new document and OnUpdate when it replaces one.
	OnCreate func(id string)
	OnUpdate func(id string)
}

func (o Options) WithDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.AutoRemove == "" {
		o.AutoRemove = RemoveInterval
	}
	if o.RemoveInterval <= 0 {
		o.RemoveInterval = DefaultRemoveInterval
	}
	if o.RemoveInterval > MaxRemoveInterval {
		o.RemoveInterval = MaxRemoveInterval
	}
	if o.Serializer == nil {
		o.Serializer = jsonSerializer{}
	}
	return o
}

// Notify invokes the create/update lifecycle hooks after a successful Set.
func (o Options) Notify(id string, existed bool) {
	if existed {
		if o.OnUpdate != nil {
			o.OnUpdate(id)
		}
		return
	}
	if o.OnCreate != nil {
		o.OnCreate(id)
	}
}

// Encode serializes and, when a sealer is configured, encrypts a payload.
func (o Options) Encode(data map[string]any) ([]byte, error) {
	b, err := o.Serializer.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("session: serialize: %w", err)
	}
	if o.Sealer != nil {
		if b, err = o.Sealer.Seal(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Decode reverses Encode. Decrypt failures propagate as errors - an empty
// session result here could silently mask tampering.
func (o Options) Decode(b []byte) (map[string]any, error) {
	if o.Sealer != nil {
		var err error
		if b, err = o.Sealer.Open(b); err != nil {
			return nil, err
		}
	}
	data, err := o.Serializer.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("session: deserialize: %w", err)
	}
	return data, nil
}

// ExpiresFrom computes a session's expiry: the payload's own cookie expiry
// when present, else now + TTL. Cookie metadata lives under data["cookie"]
// with an "expires" entry carrying either a time.Time or an RFC 3339 string
// (the latter is what a JSON round-trip produces).
func (o Options) ExpiresFrom(data map[string]any, now time.Time) time.Time {
	cookie, ok := data["cookie"].(map[string]any)
	if !ok {
		return now.Add(o.TTL)
	}

	switch v := cookie["expires"].(type) {
	case time.Time:
		if !v.IsZero() {
			return v
		}
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return now.Add(o.TTL)
}

// TouchDue reports whether a touch should actually write, given the stored
// lastModified stamp.
func (o Options) TouchDue(lastModified, now time.Time) bool {
	if o.TouchAfter <= 0 {
		return true
	}
	return now.Sub(lastModified) >= o.TouchAfter
}
