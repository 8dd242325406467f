// internal/session/session.go
//
// Knit – Browsing sessions.
//
// Context
//   Lead enrichment needs a small session-scoped key-value store: the
//   session id, landing page, session start, and page-view counter.  The
//   browser keeps only an opaque cookie named “knit_session” holding a
//   UUID; the values live server-side in a Store (memory or Redis).
//
//   The cookie carries no Expires attribute, so it dies with the browsing
//   session just like the storage it replaces.
//
// Workflow
//   •  Manager.Middleware reads or mints the cookie, loads the Bucket, and
//      puts it on the request context.
//   •  Handlers read and write through FromContext(ctx), which satisfies
//      lead.Storage.
//   •  After the handler returns, only the keys it changed are saved, so
//      concurrent requests on one session do not overwrite each other.
//
// Style
//   Two-space sentence spacing, Oxford comma, terse inline notes.
//
//------------------------------------------------------------------------------

package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/knit/internal/metrics"
)

// CookieName is the session cookie.
const CookieName = "knit_session"

// -----------------------------------------------------------------------------
// Bucket
// -----------------------------------------------------------------------------

// Bucket is one session's values.  Safe for concurrent use within a request.
type Bucket struct {
	ID string

	mu      sync.Mutex
	values  map[string]string
	changed map[string]bool
}

// NewBucket wraps a copy of values.
func NewBucket(id string, values map[string]string) *Bucket {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &Bucket{ID: id, values: cp, changed: make(map[string]bool)}
}

// Get implements lead.Storage.
func (b *Bucket) Get(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	return v, ok
}

// Set implements lead.Storage.
func (b *Bucket) Set(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.values[key]; ok && old == value {
		return
	}
	b.values[key] = value
	b.changed[key] = true
}

// Values returns a copy of every key.
func (b *Bucket) Values() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make(map[string]string, len(b.values))
	for k, v := range b.values {
		cp[k] = v
	}
	return cp
}

// Changes returns a copy of the keys Set changed since load.
func (b *Bucket) Changes() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make(map[string]string, len(b.changed))
	for k := range b.changed {
		cp[k] = b.values[k]
	}
	return cp
}

// Dirty reports whether Set changed anything since load.
func (b *Bucket) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.changed) > 0
}

// -----------------------------------------------------------------------------
// Context helpers
// -----------------------------------------------------------------------------

type ctxKey struct{}

// WithBucket returns a context carrying b.
func WithBucket(ctx context.Context, b *Bucket) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// FromContext returns the request's Bucket, or nil when the middleware has
// not run.
func FromContext(ctx context.Context) *Bucket {
	b, _ := ctx.Value(ctxKey{}).(*Bucket)
	return b
}

// -----------------------------------------------------------------------------
// Manager
// -----------------------------------------------------------------------------

// Manager binds a Store to HTTP requests.
type Manager struct {
	store  Store
	secure bool
	log    *zap.SugaredLogger
	sfg    singleflight.Group
}

// NewManager returns a Manager.  secure forces the Secure cookie flag even
// behind a TLS-terminating proxy.
func NewManager(store Store, secure bool, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.S()
	}
	return &Manager{store: store, secure: secure, log: log}
}

// Middleware attaches the session Bucket and saves it after next returns.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, fresh := m.sessionID(r)
		if fresh {
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    sid,
				Path:     "/",
				HttpOnly: true,
				Secure:   m.secure || r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}

		b := m.load(r.Context(), sid, fresh)
		next.ServeHTTP(w, r.WithContext(WithBucket(r.Context(), b)))

		if b.Dirty() {
			if err := m.store.Save(context.WithoutCancel(r.Context()), sid, b.Changes()); err != nil {
				metrics.SessionLoadErrorsTotal.Inc()
				m.log.Warnw("session save failed", "error", err)
			}
		}
	})
}

// sessionID returns the cookie's UUID, or a new one when the cookie is
// missing or malformed.
func (m *Manager) sessionID(r *http.Request) (string, bool) {
	if c, err := r.Cookie(CookieName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String(), false
		}
	}
	return uuid.NewString(), true
}

// load fetches the stored values.  Concurrent first loads of one session
// (a page firing several API calls at once) share a single store round trip.
// A store failure degrades to an empty bucket.
func (m *Manager) load(ctx context.Context, sid string, fresh bool) *Bucket {
	if fresh {
		return NewBucket(sid, nil)
	}
	v, err, _ := m.sfg.Do(sid, func() (any, error) {
		return m.store.Load(ctx, sid)
	})
	if err != nil {
		metrics.SessionLoadErrorsTotal.Inc()
		m.log.Warnw("session load failed", "error", err)
		return NewBucket(sid, nil)
	}
	vals, _ := v.(map[string]string)
	return NewBucket(sid, vals)
}
