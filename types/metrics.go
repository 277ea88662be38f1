package types

/*
Metrics is the sink for cache lifecycle events.
Each method represents an event; the cache calls it while the event happens,
so implementations must be cheap and safe for concurrent use.
*/
type Metrics interface {

	// Hit is called when Get or Load returns a fresh stored value.
	Hit()

	// Miss is called when the key is absent or expired.
	Miss()

	// Eviction is called when a key is dropped because the cache is over capacity.
	Eviction()

	// Expire is called when an expired key is purged, lazily or by a sweep.
	Expire()

	// LoadError is called when a Loader fails. Nothing is cached in that case.
	LoadError()
}

// NoopMetrics ignores every event. It lets callers that don't care about
// metrics construct a cache without nil checks on the hot path.
type NoopMetrics struct{}

func (NoopMetrics) Hit()       {}
func (NoopMetrics) Miss()      {}
func (NoopMetrics) Eviction()  {}
func (NoopMetrics) Expire()    {}
func (NoopMetrics) LoadError() {}
