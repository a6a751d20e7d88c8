// Package handoff bridges backend callback goroutines and consumer-side
// iteration with a closeable FIFO queue.
package handoff

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("handoff queue closed")

// Queue is an unbounded FIFO that can be closed by its producer. Consumers
// keep receiving buffered items after Close until the queue is drained.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	killed  bool
	updated chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{updated: make(chan struct{})}
}

// Put appends an item and wakes every waiting consumer. It fails with
// ErrClosed once the queue has been closed or killed.
func (q *Queue[T]) Put(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.items = append(q.items, item)
	q.signalUpdateLocked()
	return nil
}

// Close stops further puts. Items already in the queue are still delivered.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.signalUpdateLocked()
}

// Kill closes the queue and drops anything not yet consumed.
func (q *Queue[T]) Kill() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.killed {
		return
	}
	q.closed = true
	q.killed = true
	clear(q.items)
	q.items = nil
	q.signalUpdateLocked()
}

// Updated returns a channel that is closed on the next state change (put,
// pop, close or kill).
func (q *Queue[T]) Updated() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.updated
}

// TryPop returns the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.popLocked()
}

// Pop blocks until an item is available. It returns ErrClosed once the queue
// is closed and drained (or killed) and the context error if ctx ends first.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if item, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		updated := q.updated
		q.mu.Unlock()

		select {
		case <-updated:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Items yields queued items in FIFO order until the queue is closed and
// drained, killed, or ctx is done.
func (q *Queue[T]) Items(ctx context.Context) func(func(T) bool) {
	return func(yield func(T) bool) {
		for {
			item, err := q.Pop(ctx)
			if err != nil {
				return
			}
			if !yield(item) {
				return
			}
		}
	}
}

// Finished reports whether the queue is closed and has nothing left to
// deliver.
func (q *Queue[T]) Finished() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.closed && len(q.items) == 0
}

func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.closed
}

func (q *Queue[T]) Killed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.killed
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if q.killed || len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	q.signalUpdateLocked()
	return item, true
}

func (q *Queue[T]) signalUpdateLocked() {
	close(q.updated)
	q.updated = make(chan struct{})
}
