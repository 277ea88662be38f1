// This file defines how cache entries expire over time.

package expiration

import (
	"time"

	"github.com/krisalay/apod-cache/types"
)

/*
Strategy is the interface that all expiration rules must follow. The cache
keeps no expiry logic of its own; it asks the strategy at read time.
*/
type Strategy interface {

	// IsExpired reports whether the entry must be treated as absent at now.
	IsExpired(*types.CacheEntry, time.Time) bool

	// OnAccess is called whenever a cache entry is read successfully.
	OnAccess(*types.CacheEntry, time.Time)

	// OnWrite is called whenever a cache entry is written or overwritten.
	OnWrite(*types.CacheEntry, time.Time)
}
