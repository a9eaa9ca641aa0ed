package registry

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"swarmorch/internal/check"
)

const (
	DefaultCacheTTL     = 60 * time.Second
	DefaultCacheEntries = 256
	defaultFetchTimeout = 30 * time.Second
)

type cached[V any] struct {
	value   V
	expires time.Time
}

// Cache is a TTL cache with single-flight fills. Every key carries a
// generation that Invalidate bumps; a fill started under an older
// generation is returned to its callers but never stored.
type Cache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]cached[V]
	gens       map[string]uint64
	epoch      uint64
	ttl        time.Duration
	maxEntries int
	clock      Clock
	group      singleflight.Group
}

type CacheOption func(*cacheConfig)

type cacheConfig struct {
	ttl        time.Duration
	maxEntries int
	clock      Clock
}

func WithTTL(d time.Duration) CacheOption {
	return func(c *cacheConfig) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func WithMaxEntries(n int) CacheOption {
	return func(c *cacheConfig) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithClock(clock Clock) CacheOption {
	return func(c *cacheConfig) { c.clock = clock }
}

func NewCache[V any](opts ...CacheOption) *Cache[V] {
	cfg := cacheConfig{ttl: DefaultCacheTTL, maxEntries: DefaultCacheEntries, clock: SystemClock{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	check.Assert(cfg.clock != nil, "registry.NewCache: clock must not be nil")
	return &Cache[V]{
		entries:    make(map[string]cached[V]),
		gens:       make(map[string]uint64),
		ttl:        cfg.ttl,
		maxEntries: cfg.maxEntries,
		clock:      cfg.clock,
	}
}

// Lookup returns a fresh cached value without filling.
func (c *Cache[V]) Lookup(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(e.expires) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Get returns the cached value for key or fills it with fetch. Concurrent
// misses on the same key and generation share one fetch. The fetch runs
// detached from the caller's cancellation so an abandoned caller does not
// fail the others; a caller whose ctx ends returns early with ctx.Err().
func (c *Cache[V]) Get(ctx context.Context, key string, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Lookup(key); ok {
		return v, nil
	}

	c.mu.RLock()
	gen, epoch := c.gens[key], c.epoch
	c.mu.RUnlock()

	flightKey := key + "\x00" + strconv.FormatUint(epoch, 10) + "\x00" + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultFetchTimeout)
		defer cancel()

		v, err := fetch(fetchCtx)
		if err != nil {
			return v, err
		}
		c.store(key, gen, epoch, v)
		return v, nil
	})

	select {
	case res := <-ch:
		v, _ := res.Val.(V)
		return v, res.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (c *Cache[V]) store(key string, gen, epoch uint64, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[key] != gen || c.epoch != epoch {
		return
	}
	now := c.clock.Now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = cached[V]{value: v, expires: now.Add(c.ttl)}
}

// evictLocked drops expired entries, or the one closest to expiry when none
// have expired.
func (c *Cache[V]) evictLocked(now time.Time) {
	var (
		victim  string
		soonest time.Time
	)
	removed := false
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			removed = true
			continue
		}
		if victim == "" || e.expires.Before(soonest) {
			victim, soonest = k, e.expires
		}
	}
	if !removed && victim != "" {
		delete(c.entries, victim)
	}
}

// Invalidate removes key and prevents fills already in flight from
// storing their result.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
}

// InvalidateAll empties the cache and discards every fill in flight.
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cached[V])
	c.epoch++
	c.mu.Unlock()
}

// Len reports the number of stored entries, fresh or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
