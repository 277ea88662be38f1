package eviction

/*
This file defines how the cache decides what to remove when it runs out of space.
*/

/*
Policy is the interface an eviction strategy must follow.

The cache does NOT care how ordering works internally. It only reports reads,
writes and removals, and asks for a victim when it is over capacity.
Policies are not safe for concurrent use; the cache calls them under its lock.
*/
type Policy interface {

	// OnGet is called whenever a key is read successfully from the cache.
	// It must NOT be called for existence checks (Has), which are pure.
	OnGet(string)

	// OnPut is called whenever a key is written, new or overwritten.
	// An overwrite counts as a use: the key becomes the most recent one.
	OnPut(string)

	// Remove is called when a key leaves the cache for any reason other
	// than Evict (explicit removal, TTL purge).
	Remove(string)

	// Evict picks the key to drop, forgets it, and returns it.
	// It returns "" when nothing is tracked.
	Evict() string

	// Len reports how many keys are tracked.
	Len() int
}
