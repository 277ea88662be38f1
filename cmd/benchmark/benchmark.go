package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	cache "github.com/krisalay/apod-cache"
	"github.com/krisalay/apod-cache/apod"
	"github.com/krisalay/apod-cache/engine"
	"github.com/krisalay/apod-cache/expiration"
	"github.com/krisalay/apod-cache/metrics"
	"github.com/krisalay/apod-cache/types"
)

// ================= BENCHMARK =================

func main() {
	ctx := context.Background()

	const (
		capacity   = 200
		days       = 365
		goroutines = 200
		opsPerG    = 5000
		fetchDelay = time.Millisecond
	)

	fmt.Println("\n================ APOD CACHE LOAD BENCHMARK =================")

	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Capacity     :", capacity)
	fmt.Println("Distinct Days:", days)
	fmt.Println("Goroutines   :", goroutines)
	fmt.Println("Ops/Goroutine:", humanize.Comma(opsPerG))
	fmt.Println("Fetch Delay  :", fetchDelay)
	fmt.Println("---------------------------------")

	// ---------------- Cache ----------------
	m := metrics.NewMetrics("bench")
	eng := engine.NewCacheEngine(&expiration.ExpireAfterWrite{TTL: time.Hour}, m)
	c := cache.NewLRUCache(capacity, eng, cache.WithCoalescing())
	defer c.Close()

	// ---------------- Fake upstream ----------------
	var fetches atomic.Int64
	loader := types.LoaderFunc(func(_ context.Context, key string) (any, error) {
		fetches.Add(1)
		time.Sleep(fetchDelay)
		return json.RawMessage(fmt.Sprintf(`{"key":%q}`, key)), nil
	})

	// Requests skew to recent days the way gallery traffic does.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	keys := make([]string, days)
	for i := range keys {
		keys[i] = apod.KeyForDate(start.AddDate(0, 0, i).Format(apod.DateLayout))
	}
	pick := func(j int) string {
		if j%4 == 0 {
			return keys[j%days]
		}
		return keys[days-1-j%(capacity/2)]
	}

	// ---------------- Warmup ----------------
	fmt.Println("Warming up cache...")
	for i := 0; i < capacity; i++ {
		_, _, _ = c.Load(ctx, pick(i), loader)
	}
	fmt.Println("Warmup complete.")

	// ---------------- Load Test ----------------
	fmt.Println("Running concurrency benchmark...")

	began := time.Now()

	wg := sync.WaitGroup{}
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerG; j++ {
				_, _, _ = c.Load(ctx, pick(id+j), loader)
			}
		}(i)
	}

	wg.Wait()

	duration := time.Since(began)
	totalOps := goroutines * opsPerG
	hitRate := 100 * (1 - float64(fetches.Load())/float64(totalOps+capacity))

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %s\n", humanize.Comma(int64(totalOps)))
	fmt.Printf("Total Time       : %v\n", duration)
	fmt.Printf("Throughput       : %s ops/sec\n", humanize.CommafWithDigits(float64(totalOps)/duration.Seconds(), 2))
	fmt.Printf("Upstream Fetches : %s\n", humanize.Comma(fetches.Load()))
	fmt.Printf("Hit Rate         : %.2f%%\n", hitRate)
	fmt.Printf("Entries Held     : %d / %d\n", c.Len(), c.Capacity())
	fmt.Println("=========================================")
}
