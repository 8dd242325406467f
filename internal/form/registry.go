// internal/form/registry.go
//
// Knit – Forms subsystem: live instance registry.
//
// Context
//   Controllers live in memory between API calls.  The registry keys them
//   by signed handle in a sync.Map and evicts them on idle TTL or LRU
//   pressure.  Eviction is a teardown: the controller's Close fires the
//   abandonment event when the visitor touched the form but never
//   submitted.
//
//------------------------------------------------------------------------------

package form

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/knit/internal/metrics"
)

// Static defaults.  Override via config.
const (
	IdleTTL       = 30 * time.Minute
	MaxEntries    = 10000
	EvictInterval = time.Minute
)

// ErrNotFound is returned for an unknown, expired, or forged handle.
var ErrNotFound = errors.New("form: instance not found")

type entry struct {
	ctrl     *Controller
	lastSeen int64 // unix nanos
}

// Registry holds live controllers.
type Registry struct {
	signer     *Signer
	m          sync.Map
	size       atomic.Int64
	idleTTL    time.Duration
	maxEntries int
	log        *zap.SugaredLogger
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// RegistryOptions configures NewRegistry.  Zero values pick the package
// defaults; a negative EvictInterval disables the background loop.
type RegistryOptions struct {
	IdleTTL       time.Duration
	MaxEntries    int
	EvictInterval time.Duration
	Logger        *zap.SugaredLogger
}

// NewRegistry constructs a Registry and starts the background evictor.
func NewRegistry(signer *Signer, o RegistryOptions) *Registry {
	if o.IdleTTL <= 0 {
		o.IdleTTL = IdleTTL
	}
	if o.MaxEntries == 0 {
		o.MaxEntries = MaxEntries
	}
	if o.EvictInterval == 0 {
		o.EvictInterval = EvictInterval
	}
	if o.Logger == nil {
		o.Logger = zap.S()
	}
	r := &Registry{
		signer:     signer,
		idleTTL:    o.IdleTTL,
		maxEntries: o.MaxEntries,
		log:        o.Logger,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if o.EvictInterval > 0 {
		r.wg.Add(1)
		go r.evictLoop(o.EvictInterval)
	}
	return r
}

// Add stores ctrl and returns its handle.
func (r *Registry) Add(ctrl *Controller) (string, error) {
	id, err := r.signer.Issue()
	if err != nil {
		return "", err
	}
	r.m.Store(id, &entry{ctrl: ctrl, lastSeen: r.now().UnixNano()})
	r.size.Add(1)
	metrics.InstanceCreateTotal.Inc()
	metrics.ActiveInstances.Inc()
	return id, nil
}

// Get returns the controller for id and refreshes its idle timer.
func (r *Registry) Get(id string) (*Controller, error) {
	if !r.signer.Verify(id) {
		return nil, ErrNotFound
	}
	v, ok := r.m.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	ent := v.(*entry)
	atomic.StoreInt64(&ent.lastSeen, r.now().UnixNano())
	return ent.ctrl, nil
}

// Delete tears the instance down and forgets it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	v, ok := r.m.LoadAndDelete(id)
	if !ok {
		return ErrNotFound
	}
	r.size.Add(-1)
	metrics.ActiveInstances.Dec()
	v.(*entry).ctrl.Close(ctx)
	return nil
}

// Len reports how many instances are live.
func (r *Registry) Len() int { return int(r.size.Load()) }

// Close stops the evictor and tears every instance down.  Used during
// graceful shutdown so abandonment still reaches analytics.
func (r *Registry) Close(ctx context.Context) {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
	r.m.Range(func(key, _ any) bool {
		_ = r.Delete(ctx, key.(string))
		return true
	})
}

// -----------------------------------------------------------------------------
// Eviction
// -----------------------------------------------------------------------------

func (r *Registry) evictLoop(every time.Duration) {
	defer r.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.Sweep(context.Background())
		case <-r.stop:
			return
		}
	}
}

// Sweep runs one eviction pass and returns how many instances it removed:
//
//   - instances idle longer than idleTTL
//   - least-recently-used instances while the map exceeds maxEntries
func (r *Registry) Sweep(ctx context.Context) int {
	now := r.now().UnixNano()
	evicted := 0

	// ----------------------------------------------------------------
	// Idle eviction pass
	// ----------------------------------------------------------------
	r.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		idle := time.Duration(now - atomic.LoadInt64(&ent.lastSeen))
		if idle > r.idleTTL {
			if r.Delete(ctx, key.(string)) == nil {
				evicted++
				metrics.InstanceEvictTotal.WithLabelValues("idle").Inc()
				r.log.Debugw("form instance evicted", "form", ent.ctrl.def.ID,
					"idle", idle.Truncate(time.Second))
			}
		}
		return true
	})

	// ----------------------------------------------------------------
	// LRU eviction pass
	// ----------------------------------------------------------------
	count := r.Len()
	if r.maxEntries > 0 && count > r.maxEntries {
		type kv struct {
			key string
			at  int64
		}
		var all []kv
		r.m.Range(func(key, value any) bool {
			all = append(all, kv{key: key.(string), at: atomic.LoadInt64(&value.(*entry).lastSeen)})
			return true
		})
		sort.Slice(all, func(i, j int) bool { return all[i].at < all[j].at })
		for i := 0; i < len(all)-r.maxEntries; i++ {
			if r.Delete(ctx, all[i].key) == nil {
				evicted++
				metrics.InstanceEvictTotal.WithLabelValues("lru").Inc()
			}
		}
		r.log.Infow("form instances evicted (LRU pressure)", "count", len(all)-r.maxEntries)
	}
	return evicted
}
