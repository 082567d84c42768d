package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/commercekit/authcore/pkg/cryptox"
	"github.com/commercekit/authcore/pkg/slogx"
)

type ctxKey string

const stateKey ctxKey = "session_state"

// State is the per-request view of a session. Handlers mutate Data through
// Put/Delete; the middleware persists changes after the handler returns.
type State struct {
	ID   string
	Data map[string]any

	isNew bool
	dirty bool
}

// FromContext returns the request's session state, or nil when the session
// middleware is not installed.
func FromContext(ctx context.Context) *State {
	st, _ := ctx.Value(stateKey).(*State)
	return st
}

// Get reads a value from the session data.
func (st *State) Get(key string) (any, bool) {
	v, ok := st.Data[key]
	return v, ok
}

// Put stores a value and marks the session for persistence.
func (st *State) Put(key string, value any) {
	st.Data[key] = value
	st.dirty = true
}

// Delete removes a value and marks the session for persistence.
func (st *State) Delete(key string) {
	if _, ok := st.Data[key]; ok {
		delete(st.Data, key)
		st.dirty = true
	}
}

// IsNew reports whether the session was created for this request.
func (st *State) IsNew() bool { return st.isNew }

// CookieConfig controls the session id cookie issued by the middleware.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	SameSite http.SameSite
	Insecure bool
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.Name == "" {
		c.Name = "sid"
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}

// Middleware loads the request's session from the store and saves it back
// after the handler runs. Dirty sessions are written with Set; clean ones
// get a debounced Touch to slide the expiry window.
func Middleware(store Store, cookie CookieConfig) func(http.Handler) http.Handler {
	cookie = cookie.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			st := load(ctx, store, cookie.Name, r, log)
			if st.isNew {
				http.SetCookie(w, &http.Cookie{
					Name:     cookie.Name,
					Value:    st.ID,
					Path:     cookie.Path,
					Domain:   cookie.Domain,
					HttpOnly: true,
					Secure:   !cookie.Insecure,
					SameSite: cookie.SameSite,
				})
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, stateKey, st)))

			persist(ctx, store, st, log)
		})
	}
}

func load(ctx context.Context, store Store, cookieName string, r *http.Request, log *slog.Logger) *State {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		rec, err := store.Get(ctx, c.Value)
		if err != nil {
			log.Warn("session load failed", "error", err)
		} else if rec != nil {
			return &State{ID: rec.ID, Data: rec.Data}
		}
	}

	return &State{
		ID:    cryptox.MustGenerateToken(cryptox.TokenSize128),
		Data:  map[string]any{},
		isNew: true,
	}
}

func persist(ctx context.Context, store Store, st *State, log *slog.Logger) {
	// The request context may already be done; give the write its own
	// deadline so in-flight data is not lost on client disconnect.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	switch {
	case st.dirty:
		if err := store.Set(ctx, st.ID, st.Data); err != nil {
			log.Error("session save failed", "error", err)
		}
	case !st.isNew:
		if err := store.Touch(ctx, st.ID, st.Data); err != nil && err != ErrNotFound {
			log.Warn("session touch failed", "error", err)
		}
	}
}
