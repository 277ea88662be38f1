package cache

import (
	"context"

	"github.com/krisalay/apod-cache/types"
)

/*
Cache defines the PUBLIC API of the response cache.
Eviction, expiration, locking and miss coalescing are hidden behind it.
Request handlers depend on this interface, not on the concrete type.
*/
type Cache interface {

	/*
		Has reports whether key is stored and not expired.

		BEHAVIOR:
		---------
		- Pure check: does NOT promote recency and does NOT purge
		- Calling it repeatedly never changes what Get returns
	*/
	Has(key string) bool

	/*
		Get retrieves the value associated with key.

		BEHAVIOR:
		---------
		1. Key stored and fresh: return it and mark it most recently used
		2. Key missing or expired: return (nil, false); expired entries are purged
	*/
	Get(key string) (any, bool)

	/*
		Set stores a value, overwriting any previous one.

		BEHAVIOR:
		---------
		- Restarts the entry's TTL clock
		- Marks it most recently used
		- Evicts the least recently used key if a NEW key exceeds capacity
	*/
	Set(key string, value any)

	/*
		Load is a read-through Get.

		On a miss the loader is called; its result is stored only if it
		succeeded. cached reports whether the value came from memory.
	*/
	Load(ctx context.Context, key string, loader types.Loader) (value any, cached bool, err error)

	// Remove deletes key. Idempotent.
	Remove(key string)

	// Len returns the number of stored entries.
	Len() int

	// PurgeExpired drops expired entries and returns the count.
	PurgeExpired() int

	// Close stops background work. Call on shutdown.
	Close()
}
