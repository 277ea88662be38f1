package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cache "github.com/krisalay/apod-cache"
	"github.com/krisalay/apod-cache/engine"
	"github.com/krisalay/apod-cache/expiration"
	"github.com/krisalay/apod-cache/types"
)

//
// ================= TEST CLOCK =================
//

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

//
// ================= TEST METRICS =================
//

type countingMetrics struct {
	hits, misses, evictions, expires, loadErrors atomic.Int64
}

func (m *countingMetrics) Hit()       { m.hits.Add(1) }
func (m *countingMetrics) Miss()      { m.misses.Add(1) }
func (m *countingMetrics) Eviction()  { m.evictions.Add(1) }
func (m *countingMetrics) Expire()    { m.expires.Add(1) }
func (m *countingMetrics) LoadError() { m.loadErrors.Add(1) }

//
// ================= HELPER: CREATE CACHE =================
//

func newTestCache(capacity int, ttl time.Duration, opts ...cache.Option) (*cache.LRUCache, *fakeClock, *countingMetrics) {
	clock := newFakeClock()
	metrics := &countingMetrics{}

	eng := engine.NewCacheEngine(&expiration.ExpireAfterWrite{TTL: ttl}, metrics)
	eng.Clock = clock.Now

	return cache.NewLRUCache(capacity, eng, opts...), clock, metrics
}

//
// ================= BASIC OPERATIONS =================
//

func TestSetAndGet(t *testing.T) {
	c, _, m := newTestCache(10, time.Hour)

	c.Set("apod:2024-01-01", "value1")

	v, ok := c.Get("apod:2024-01-01")
	require.True(t, ok)
	assert.Equal(t, "value1", v)
	assert.Equal(t, int64(1), m.hits.Load())
}

func TestAbsenceOnUnknownKey(t *testing.T) {
	c, _, m := newTestCache(10, time.Hour)

	v, ok := c.Get("never-set")
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.False(t, c.Has("never-set"))
	assert.Equal(t, int64(1), m.misses.Load())
}

func TestOverwriteDoesNotGrow(t *testing.T) {
	c, _, _ := newTestCache(10, time.Hour)

	c.Set("k", "v1")
	c.Set("k", "v2")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 1, c.Len())
}

func TestRemove(t *testing.T) {
	c, _, _ := newTestCache(10, time.Hour)

	c.Set("k", "v")
	c.Remove("k")
	c.Remove("k")

	assert.False(t, c.Has("k"))
	assert.Equal(t, 0, c.Len())
}

//
// ================= CAPACITY & EVICTION =================
//

func TestCapacityBound(t *testing.T) {
	c, _, m := newTestCache(5, time.Hour)

	for i := 0; i < 50; i++ {
		c.Set(fmt.Sprintf("apod_recent:%d", i), i)
		assert.LessOrEqual(t, c.Len(), 5)
	}
	assert.Equal(t, int64(45), m.evictions.Load())
}

func TestLRUEvictionOrder(t *testing.T) {
	c, _, _ := newTestCache(2, time.Hour)

	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("c"))
}

func TestOverwritePromotesRecency(t *testing.T) {
	c, _, _ := newTestCache(2, time.Hour)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)
	c.Set("c", 3)

	assert.False(t, c.Has("b"))
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestHasDoesNotPromote(t *testing.T) {
	c, _, _ := newTestCache(2, time.Hour)

	c.Set("a", 1)
	c.Set("b", 2)
	for i := 0; i < 5; i++ {
		assert.True(t, c.Has("a"))
	}
	c.Set("c", 3)

	// a was only checked, never read, so it is still the oldest use
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
}

func TestZeroCapacityIsClamped(t *testing.T) {
	c, _, _ := newTestCache(0, time.Hour)
	assert.Equal(t, 1, c.Capacity())

	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Has("b"))
}

//
// ================= TTL =================
//

func TestTTLExpiry(t *testing.T) {
	c, clock, m := newTestCache(10, time.Second)

	c.Set("k", "v")

	clock.Advance(500 * time.Millisecond)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(501 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is purged on read")
	assert.Equal(t, int64(1), m.expires.Load())
}

func TestReadsDoNotExtendTTL(t *testing.T) {
	c, clock, _ := newTestCache(10, time.Second)

	c.Set("k", "v")
	for i := 0; i < 4; i++ {
		clock.Advance(250 * time.Millisecond)
		_, _ = c.Get("k")
	}

	clock.Advance(time.Millisecond)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestOverwriteResetsTTL(t *testing.T) {
	c, clock, _ := newTestCache(10, time.Second)

	c.Set("k", "v1")
	clock.Advance(999 * time.Millisecond)
	c.Set("k", "v2")
	clock.Advance(501 * time.Millisecond)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestHasIsIdempotent(t *testing.T) {
	c, clock, _ := newTestCache(10, time.Second)

	c.Set("k", "v")
	for i := 0; i < 10; i++ {
		assert.True(t, c.Has("k"))
	}

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(2 * time.Second)
	assert.False(t, c.Has("k"))
	assert.Equal(t, 1, c.Len(), "Has does not purge")
}

func TestPurgeExpired(t *testing.T) {
	c, clock, _ := newTestCache(10, time.Second)

	c.Set("old1", 1)
	c.Set("old2", 2)
	clock.Advance(700 * time.Millisecond)
	c.Set("new", 3)
	clock.Advance(400 * time.Millisecond)

	assert.Equal(t, 2, c.PurgeExpired())
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Has("new"))
}

func TestSweepPurgesInBackground(t *testing.T) {
	eng := engine.NewCacheEngine(&expiration.ExpireAfterWrite{TTL: time.Millisecond}, nil)
	c := cache.NewLRUCache(10, eng, cache.WithSweep(5*time.Millisecond))
	defer c.Close()

	c.Set("k", "v")

	assert.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

//
// ================= READ-THROUGH =================
//

func TestLoadStoresOnSuccess(t *testing.T) {
	c, _, _ := newTestCache(10, time.Hour)
	ctx := context.Background()

	calls := 0
	loader := types.LoaderFunc(func(_ context.Context, key string) (any, error) {
		calls++
		return "payload-for-" + key, nil
	})

	v, cached, err := c.Load(ctx, "apod:2024-01-01", loader)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "payload-for-apod:2024-01-01", v)

	v, cached, err = c.Load(ctx, "apod:2024-01-01", loader)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "payload-for-apod:2024-01-01", v)
	assert.Equal(t, 1, calls)
}

func TestNoNegativeCaching(t *testing.T) {
	c, _, m := newTestCache(10, time.Hour)
	ctx := context.Background()

	boom := errors.New("upstream timeout")
	_, _, err := c.Load(ctx, "apod:2024-01-01", types.LoaderFunc(func(context.Context, string) (any, error) {
		return nil, boom
	}))
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Has("apod:2024-01-01"))
	assert.Equal(t, int64(1), m.loadErrors.Load())

	// prior legitimate data survives a failed refetch of another key
	c.Set("apod:2024-01-02", "good")
	_, _, err = c.Load(ctx, "apod:2024-01-03", types.LoaderFunc(func(context.Context, string) (any, error) {
		return nil, boom
	}))
	require.Error(t, err)
	v, ok := c.Get("apod:2024-01-02")
	require.True(t, ok)
	assert.Equal(t, "good", v)
}

func TestLoadDoesNotStoreNil(t *testing.T) {
	c, _, _ := newTestCache(10, time.Hour)

	v, _, err := c.Load(context.Background(), "k", types.LoaderFunc(func(context.Context, string) (any, error) {
		return nil, nil
	}))
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.False(t, c.Has("k"))
}

func TestLoadWithoutCoalescingCallsEveryMiss(t *testing.T) {
	c, _, _ := newTestCache(10, time.Hour)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	loader := types.LoaderFunc(func(context.Context, string) (any, error) {
		calls.Add(1)
		<-release
		return "v", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.Load(ctx, "k", loader)
		}()
	}

	assert.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
}

func TestLoadWithCoalescingSharesOneCall(t *testing.T) {
	c, _, _ := newTestCache(10, time.Hour, cache.WithCoalescing())
	ctx := context.Background()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	loader := types.LoaderFunc(func(context.Context, string) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "v", nil
	})

	var wg sync.WaitGroup
	results := make([]any, 5)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _, _ = c.Load(ctx, "k", loader)
	}()
	<-started

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, _ = c.Load(ctx, "k", loader)
		}(i)
	}

	// give the followers time to join the in-flight call
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "v", r)
	}
}

func TestCoalescedLoadSurvivesFirstCallerCancel(t *testing.T) {
	c, _, _ := newTestCache(10, time.Hour, cache.WithCoalescing())

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	loader := types.LoaderFunc(func(ctx context.Context, _ string) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return "v", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.Load(firstCtx, "k", loader)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   any
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, _, err := c.Load(context.Background(), "k", loader)
		second <- result{v, err}
	}()

	// give the second caller time to join the in-flight call
	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "v", res.v)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, c.Has("k"))
}

//
// ================= CONCURRENCY =================
//

func TestConcurrentAccess(t *testing.T) {
	c, _, _ := newTestCache(50, time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("apod_recent:%d", (g*31+i)%200)
				c.Set(key, i)
				c.Get(key)
				c.Has(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
