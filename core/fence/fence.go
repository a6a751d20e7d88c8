// Package fence implements the shared interruption timestamp.
//
// Every cancellable operation captures a start stamp with Begin and, before
// each externally visible action, asks Stale whether an interruption was
// raised since. Interrupt only moves the fence forward and never waits for
// the operations it invalidates.
package fence

import (
	"sync"
	"sync/atomic"
	"time"
)

type Fence struct {
	value atomic.Int64
	clock func() int64
	epoch time.Time

	mu      sync.Mutex
	changed chan struct{}
}

type Option func(*Fence)

// WithClock replaces the monotonic clock. The clock returns nanoseconds and
// is only used to derive stamps, the fence still never moves backwards.
func WithClock(clock func() int64) Option {
	return func(f *Fence) {
		f.clock = clock
	}
}

func New(opts ...Option) *Fence {
	f := &Fence{
		epoch:   time.Now(),
		changed: make(chan struct{}),
	}
	f.clock = func() int64 { return int64(time.Since(f.epoch)) }

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Now returns the current clock reading without touching the fence.
func (f *Fence) Now() int64 {
	return f.clock()
}

// Load returns the current fence value.
func (f *Fence) Load() int64 {
	return f.value.Load()
}

// Begin captures a start stamp that is strictly newer than the current
// fence, so an operation started after an interruption is never considered
// stale by it.
func (f *Fence) Begin() int64 {
	now := f.clock()
	if current := f.value.Load(); now <= current {
		now = current + 1
	}
	return now
}

// Interrupt raises the fence to now and wakes everyone waiting on Changed.
// It returns the new fence value.
func (f *Fence) Interrupt() int64 {
	now := f.clock()
	for {
		current := f.value.Load()
		if now <= current {
			now = current + 1
		}
		if f.value.CompareAndSwap(current, now) {
			break
		}
	}

	f.mu.Lock()
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()

	return now
}

// Stale reports whether an operation that started at start has been
// interrupted.
func (f *Fence) Stale(start int64) bool {
	return start <= f.value.Load()
}

// Changed returns a channel closed by the next Interrupt.
func (f *Fence) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.changed
}

// Since converts a stamp into the elapsed duration between it and now.
func (f *Fence) Since(stamp int64) time.Duration {
	return time.Duration(f.clock() - stamp)
}
