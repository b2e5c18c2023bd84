// Package queue provides the unbounded FIFO used for every channel in the
// engine: the command channel and each store subscription.
//
// The queue is unbounded so that publishers (a store writer holding its lock,
// a reconcile task submitting commands) never block on a slow consumer.
// Availability is signalled through a buffered channel of size 1, which lets
// consumers wait in a select alongside ctx.Done() and other channels.
//
// Thread-safety model:
//   - Push, Len, Close: safe from any goroutine
//   - TryPop, Pop, Wait: intended for exactly one consumer goroutine
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Push and Pop once the queue is closed (and, for
// Pop, drained).
var ErrClosed = errors.New("queue closed")

// Queue is a thread-safe unbounded FIFO.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // buffered, size 1; closed by Close
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Push appends v to the back of the queue.
// Returns ErrClosed if the queue has been closed.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.items = append(q.items, v)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return nil
}

// TryPop removes and returns the front item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]

	// Clear the slot so the backing array does not retain the item.
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return v, true
}

// Pop removes and returns the front item, blocking until one is available,
// the queue is closed and drained (ErrClosed), or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}

		if q.Drained() {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.signal:
		}
	}
}

// Wait returns a channel that fires when items may be available. The channel
// is closed by Close, so a waiter on a closed queue wakes immediately.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // TryPop, then check Drained
//	}
func (q *Queue[T]) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drained reports whether the queue is closed and holds no more items.
func (q *Queue[T]) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Close signals that no more items will be pushed. Items already queued can
// still be popped. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
