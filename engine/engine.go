package engine

import (
	"context"
	"time"

	"github.com/krisalay/apod-cache/expiration"
	"github.com/krisalay/apod-cache/types"
)

/*
CacheEngine is the policy layer of the cache.
It decides when data is stale and how events are reported, NOT where data lives.

It decides:
- When data is expired
- How timestamps change on reads/writes
- How a miss is loaded
- How metrics are recorded

It does NOT:
- Store data
- Handle locking
- Decide eviction order
*/
type CacheEngine struct {

	// Expiration controls when an entry is considered too old.
	// If this is nil, entries never expire based on time.
	Expiration expiration.Strategy

	// Metrics receives hits, misses, evictions, expirations and load errors.
	Metrics types.Metrics

	// Clock returns the current time. Tests replace it to step time by hand.
	Clock func() time.Time
}

/*
NewCacheEngine creates a CacheEngine. A nil metrics sink is replaced by
NoopMetrics so callers never nil-check it.
*/
func NewCacheEngine(exp expiration.Strategy, metrics types.Metrics) *CacheEngine {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}

	return &CacheEngine{
		Expiration: exp,
		Metrics:    metrics,
		Clock:      time.Now,
	}
}

// Now returns the engine's notion of the current time.
func (e *CacheEngine) Now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

// IsExpired checks whether ent is stale. Without a strategy nothing expires.
func (e *CacheEngine) IsExpired(ent *types.CacheEntry) bool {
	return e.Expiration != nil &&
		e.Expiration.IsExpired(ent, e.Now())
}

// OnRead is called every time the cache returns a value.
func (e *CacheEngine) OnRead(ent *types.CacheEntry) {
	if e.Expiration != nil {
		e.Expiration.OnAccess(ent, e.Now())
	} else {
		ent.LastAccessedAt = e.Now()
	}
}

// OnWrite stamps a freshly written or overwritten entry.
func (e *CacheEngine) OnWrite(ent *types.CacheEntry) {
	now := e.Now()

	if e.Expiration != nil {
		e.Expiration.OnWrite(ent, now)
		return
	}

	ent.CreatedAt = now
	ent.LastAccessedAt = now
	ent.ExpireAt = time.Time{}
}

/*
Load asks loader for key on a miss. A failure is counted and returned
untouched; deciding not to cache it is the caller's job.
*/
func (e *CacheEngine) Load(ctx context.Context, loader types.Loader, key string) (any, error) {
	val, err := loader.Load(ctx, key)
	if err != nil {
		e.Metrics.LoadError()
		return nil, err
	}
	return val, nil
}
