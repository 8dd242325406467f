// internal/session/store.go
//
// Session stores.
//
// Context
// -------
// Memory suits a single process and tests.  Redis keeps one hash per
// session so several knit processes behind a load balancer share state.
// Both expire a session after TTL without activity.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long an idle session survives server-side.
const DefaultTTL = 30 * time.Minute

// Store loads and saves one session's values.  Load of an unknown session
// returns an empty map and no error.  Save merges values into the session:
// keys it does not name keep their stored value.
type Store interface {
	Load(ctx context.Context, sid string) (map[string]string, error)
	Save(ctx context.Context, sid string, values map[string]string) error
}

// -----------------------------------------------------------------------------
// Memory
// -----------------------------------------------------------------------------

type memEntry struct {
	values  map[string]string
	expires time.Time
}

// Memory is an in-process Store.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu sync.Mutex
	m  map[string]memEntry
}

// NewMemory returns an empty Memory store.  ttl ≤ 0 selects DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, m: make(map[string]memEntry)}
}

// Load implements Store.
func (s *Memory) Load(_ context.Context, sid string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[sid]
	if !ok || s.now().After(e.expires) {
		delete(s.m, sid)
		return map[string]string{}, nil
	}
	cp := make(map[string]string, len(e.values))
	for k, v := range e.values {
		cp[k] = v
	}
	return cp, nil
}

// Save implements Store.
func (s *Memory) Save(_ context.Context, sid string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e, ok := s.m[sid]
	if !ok || now.After(e.expires) {
		e = memEntry{values: make(map[string]string, len(values))}
	}
	for k, v := range values {
		e.values[k] = v
	}
	e.expires = now.Add(s.ttl)
	s.m[sid] = e
	return nil
}

// Sweep drops expired sessions and returns how many it removed.
func (s *Memory) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now, n := s.now(), 0
	for k, e := range s.m {
		if now.After(e.expires) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------
// Redis
// -----------------------------------------------------------------------------

// Redis stores each session as a hash under Prefix+sid.
type Redis struct {
	Client *redis.Client
	Prefix string        // default "knit:session:"
	TTL    time.Duration // default DefaultTTL
}

func (s *Redis) key(sid string) string {
	p := s.Prefix
	if p == "" {
		p = "knit:session:"
	}
	return p + sid
}

// Load implements Store.
func (s *Redis) Load(ctx context.Context, sid string) (map[string]string, error) {
	vals, err := s.Client.HGetAll(ctx, s.key(sid)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis load: %w", err)
	}
	return vals, nil
}

// Save implements Store.  Values merge into the hash and the TTL restarts.
func (s *Redis) Save(ctx context.Context, sid string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := s.key(sid)
	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}
	_, err := s.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, fields)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis save: %w", err)
	}
	return nil
}
