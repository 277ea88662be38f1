package types

import "context"

// Loader is the contract between the cache and whatever produces values on a miss.
type Loader interface {

	/*
		Load is called when the cache misses.
		1. Cache checks memory → key not found or expired
		2. Cache calls Load(ctx, key)
		3. Loader fetches from the upstream API
		4. Cache stores the result in memory, unless Load failed
		5. Cache returns the value

		A returned error is never cached, so the next request retries upstream.
	*/
	Load(ctx context.Context, key string) (any, error)
}

// LoaderFunc adapts a plain function to a Loader.
type LoaderFunc func(ctx context.Context, key string) (any, error)

// Load calls f(ctx, key).
func (f LoaderFunc) Load(ctx context.Context, key string) (any, error) {
	return f(ctx, key)
}
