// internal/lead/env.go
//
// Ambient inputs for enrichment.
//
// Context
// -------
// The formatter never touches a request, a cookie, or a clock directly.
// Everything ambient (page URL with UTM tags, User-Agent, the session
// bucket, the current time, geo) reaches it through Environment.
// internal/requestinfo supplies the HTTP implementation; StaticEnv below is
// the fixed implementation used by tests and tooling.
package lead

import (
	"net/url"
	"sync"
	"time"
)

// Storage is a session-scoped key-value bucket.  Values survive page-to-page
// navigation within one browsing session.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Environment exposes the read-only context of the current visit.
type Environment interface {
	PageURL() *url.URL
	Referrer() string
	UserAgent() string
	Platform() string
	Storage() Storage
	Location() *Location
	Now() time.Time
}

// MapStorage is an in-memory Storage.  Safe for concurrent use.
type MapStorage struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMapStorage returns an empty bucket.
func NewMapStorage() *MapStorage { return &MapStorage{m: map[string]string{}} }

// Get implements Storage.
func (s *MapStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

// Set implements Storage.
func (s *MapStorage) Set(key, value string) {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

// StaticEnv is an Environment with fixed answers.  A nil Store gets a fresh
// MapStorage on first use; a zero Clock means time.Now.
type StaticEnv struct {
	URL   string
	Ref   string
	UA    string
	Plat  string
	Store Storage
	Geo   *Location
	Clock func() time.Time

	once     sync.Once
	fallback Storage
}

// PageURL implements Environment.  An unparsable URL yields an empty one.
func (e *StaticEnv) PageURL() *url.URL {
	u, err := url.Parse(e.URL)
	if err != nil {
		return &url.URL{}
	}
	return u
}

func (e *StaticEnv) Referrer() string    { return e.Ref }
func (e *StaticEnv) UserAgent() string   { return e.UA }
func (e *StaticEnv) Platform() string    { return e.Plat }
func (e *StaticEnv) Location() *Location { return e.Geo }

// Storage implements Environment.
func (e *StaticEnv) Storage() Storage {
	if e.Store != nil {
		return e.Store
	}
	e.once.Do(func() { e.fallback = NewMapStorage() })
	return e.fallback
}

// Now implements Environment.
func (e *StaticEnv) Now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}
