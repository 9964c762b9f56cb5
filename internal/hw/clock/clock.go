// Package clock provides the blocking delay the sequencer paces half-steps with.
package clock

import (
	"sync"
	"time"
)

// Clock blocks the caller for a duration.
type Clock interface {
	Sleep(d time.Duration)
}

// System sleeps on the wall clock.
type System struct{}

func (System) Sleep(d time.Duration) {
	time.Sleep(d)
}

// Fake records sleeps without blocking, for simulated-time tests.
type Fake struct {
	mu     sync.Mutex
	calls  int
	total  time.Duration
	last   time.Duration
	OnTick func(d time.Duration) // optional, called after each recorded sleep
}

func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.calls++
	f.total += d
	f.last = d
	tick := f.OnTick
	f.mu.Unlock()
	if tick != nil {
		tick(d)
	}
}

// Calls returns the number of Sleep calls.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Elapsed returns the simulated time slept so far.
func (f *Fake) Elapsed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// Last returns the duration of the most recent Sleep.
func (f *Fake) Last() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
