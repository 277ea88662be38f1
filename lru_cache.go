package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apicache "github.com/krisalay/apod-cache/api"
	"github.com/krisalay/apod-cache/engine"
	evict "github.com/krisalay/apod-cache/eviction"
	"github.com/krisalay/apod-cache/janitor"
	"github.com/krisalay/apod-cache/types"
)

/*
LRUCache is a bounded, time-expiring map from opaque string keys to values.

It connects:
- storage (a plain map)
- eviction (least recently used, from the eviction package)
- expiration and metrics (through the engine)
- optional miss coalescing and background sweeping

Every operation runs under one mutex. Get promotes recency and Set may evict,
so both mutate shared ordering state; a read lock would not be enough.
*/
type LRUCache struct {
	mu sync.Mutex

	// entries holds the stored values by key.
	entries map[string]*types.CacheEntry

	// eviction keeps the recency order of the keys in entries.
	eviction evict.Policy

	// engine holds the rules: TTL, clock, metrics.
	engine *engine.CacheEngine

	// capacity is the maximum number of entries.
	capacity int

	// coalesce routes concurrent misses on one key through a single load.
	coalesce bool
	sf       singleflight.Group

	sweepEvery time.Duration
	janitor    *janitor.Janitor
}

// Option configures an LRUCache.
type Option func(*LRUCache)

// WithCoalescing makes concurrent Load misses on the same key share one
// loader call. Off by default: without it every miss calls the loader.
func WithCoalescing() Option {
	return func(c *LRUCache) {
		c.coalesce = true
	}
}

// WithSweep starts a janitor that purges expired entries every interval.
// A non-positive interval leaves expiry purely lazy.
func WithSweep(interval time.Duration) Option {
	return func(c *LRUCache) {
		c.sweepEvery = interval
	}
}

// NewLRUCache builds a cache holding at most capacity entries. Capacities
// below one are raised to one.
func NewLRUCache(capacity int, engine *engine.CacheEngine, opts ...Option) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}

	c := &LRUCache{
		entries:  make(map[string]*types.CacheEntry, capacity),
		eviction: evict.NewLRU(),
		engine:   engine,
		capacity: capacity,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.sweepEvery > 0 {
		c.janitor = janitor.New(c.sweepEvery, c)
		c.janitor.Start()
	}

	return c
}

/*
Has reports whether key is stored and fresh.

It is a pure check: it neither promotes the key nor purges it, so calling
it any number of times cannot change what Get returns or which key is
evicted next.
*/
func (c *LRUCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	return ok && !c.engine.IsExpired(ent)
}

/*
Get returns the value for key and marks it most recently used.
An expired entry is purged and reported as absent.
*/
func (c *LRUCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.engine.Metrics.Miss()
		return nil, false
	}

	if c.engine.IsExpired(ent) {
		c.engine.Metrics.Expire()
		c.removeLocked(key)
		c.engine.Metrics.Miss()
		return nil, false
	}

	c.engine.Metrics.Hit()
	c.engine.OnRead(ent)
	c.eviction.OnGet(key)

	return ent.Value, true
}

/*
Set stores value under key, restarting its TTL and making it the most
recently used key. Overwriting does not grow the cache. If a new key pushes
the count over capacity, the least recently used key is evicted.
*/
func (c *LRUCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		ent = &types.CacheEntry{Key: key}
		c.entries[key] = ent
	}

	ent.Value = value
	c.engine.OnWrite(ent)
	c.eviction.OnPut(key)

	if len(c.entries) > c.capacity {
		if victim := c.eviction.Evict(); victim != "" {
			delete(c.entries, victim)
			c.engine.Metrics.Eviction()
		}
	}
}

/*
Load is the read-through path used by request handlers.

On a hit it returns the stored value with cached=true. On a miss it calls
loader and stores the result. A loader error is returned and nothing is
stored, so the next request retries. A nil value is returned but not stored.

With coalescing enabled, the shared load runs detached from any one caller's
cancellation, so a caller that goes away does not fail the others waiting on
the same key. Each caller still stops waiting when its own ctx is done. The
loader is expected to bound itself, as the upstream client does with its
timeout.
*/
func (c *LRUCache) Load(ctx context.Context, key string, loader types.Loader) (value any, cached bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	load := func(ctx context.Context) (any, error) {
		v, err := c.engine.Load(ctx, loader, key)
		if err != nil {
			return nil, err
		}
		if v != nil {
			c.Set(key, v)
		}
		return v, nil
	}

	if !c.coalesce {
		v, err := load(ctx)
		return v, false, err
	}

	shared := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(key, func() (any, error) {
		return load(shared)
	})

	select {
	case res := <-ch:
		return res.Val, false, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Remove deletes key. Removing a missing key is a no-op.
func (c *LRUCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(key)
}

// Len returns the number of stored entries, including expired ones that
// have not been purged yet.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Capacity returns the configured maximum number of entries.
func (c *LRUCache) Capacity() int {
	return c.capacity
}

// PurgeExpired drops every expired entry and returns how many went.
func (c *LRUCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, ent := range c.entries {
		if c.engine.IsExpired(ent) {
			c.removeLocked(key)
			c.engine.Metrics.Expire()
			n++
		}
	}
	return n
}

// Close stops the background sweep, if any. The cache stays usable.
func (c *LRUCache) Close() {
	if c.janitor != nil {
		c.janitor.Stop()
	}
}

var _ apicache.Cache = (*LRUCache)(nil)

func (c *LRUCache) removeLocked(key string) {
	delete(c.entries, key)
	c.eviction.Remove(key)
}
