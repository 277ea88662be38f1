package expiration

import (
	"time"

	"github.com/krisalay/apod-cache/types"
)

/*
ExpireAfterWrite gives every entry a fixed lifetime measured from its last
write. Reads never extend it: an APOD response fetched at T is stale at T+TTL
no matter how often it was served in between. Writing the key again restarts
the clock.
*/
type ExpireAfterWrite struct {

	// TTL is the lifetime of an entry. Zero or negative disables expiry.
	TTL time.Duration
}

// IsExpired reports whether now is past the entry's deadline.
func (e *ExpireAfterWrite) IsExpired(ent *types.CacheEntry, now time.Time) bool {
	return !ent.ExpireAt.IsZero() && now.After(ent.ExpireAt)
}

// OnAccess only records the read time; the deadline is untouched.
func (e *ExpireAfterWrite) OnAccess(ent *types.CacheEntry, now time.Time) {
	ent.LastAccessedAt = now
}

// OnWrite stamps the insertion time and resets the deadline.
func (e *ExpireAfterWrite) OnWrite(ent *types.CacheEntry, now time.Time) {
	ent.CreatedAt = now
	ent.LastAccessedAt = now

	if e.TTL > 0 {
		ent.ExpireAt = now.Add(e.TTL)
	} else {
		ent.ExpireAt = time.Time{}
	}
}
