package types

import "time"

// CacheEntry is one stored response. ExpireAt is derived from CreatedAt by
// the expiration strategy; a zero ExpireAt never expires.
type CacheEntry struct {
	Key            string
	Value          any
	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpireAt       time.Time
}
