// Package janitor runs a periodic sweep of expired cache entries.
//
// Expiry is lazy: an entry that is never read again would otherwise stay in
// memory until it reaches the LRU tail. The janitor bounds that without
// changing what readers observe.
package janitor

import (
	"sync"
	"time"

	"github.com/apex/log"
)

// Purger is anything that can drop its expired entries and report how many went.
type Purger interface {
	PurgeExpired() int
}

// Janitor calls PurgeExpired on a fixed interval until stopped.
type Janitor struct {
	interval time.Duration
	target   Purger

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// New returns a stopped Janitor. Call Start to begin sweeping.
func New(interval time.Duration, target Purger) *Janitor {
	return &Janitor{
		interval: interval,
		target:   target,
		stop:     make(chan struct{}),
	}
}

// Start launches the background sweep. A non-positive interval does nothing.
func (j *Janitor) Start() {
	if j.interval <= 0 {
		return
	}

	j.wg.Add(1)
	go j.run()
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-j.stop:
			return
		}
	}
}

// Sweep purges once, synchronously.
func (j *Janitor) Sweep() int {
	n := j.target.PurgeExpired()
	if n > 0 {
		log.WithField("purged", n).Debug("swept expired cache entries")
	}
	return n
}

// Stop ends the sweep loop and waits for it. Safe to call more than once.
func (j *Janitor) Stop() {
	j.once.Do(func() {
		close(j.stop)
	})
	j.wg.Wait()
}
