package janitor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePurger struct {
	calls atomic.Int32
}

func (f *fakePurger) PurgeExpired() int {
	f.calls.Add(1)
	return 1
}

func TestSweepRunsPeriodically(t *testing.T) {
	p := &fakePurger{}
	j := New(5*time.Millisecond, p)
	j.Start()
	defer j.Stop()

	assert.Eventually(t, func() bool {
		return p.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	p := &fakePurger{}
	j := New(time.Hour, p)
	j.Start()
	j.Stop()
	j.Stop()
}

func TestZeroIntervalNeverStarts(t *testing.T) {
	p := &fakePurger{}
	j := New(0, p)
	j.Start()
	j.Stop()

	assert.Equal(t, int32(0), p.calls.Load())
	assert.Equal(t, 1, j.Sweep())
	assert.Equal(t, int32(1), p.calls.Load())
}
