package store

import (
	"context"
	"errors"

	"github.com/roach88/steady/internal/queue"
	"github.com/roach88/steady/pkg/object"
)

// Change classifies a store mutation.
type Change int

const (
	// Create is published when a name is inserted for the first time.
	Create Change = iota + 1
	// Update is published when an existing name is inserted again.
	Update
	// Delete is published when a name is removed.
	Delete
)

// String returns the lower-case change name.
func (c Change) String() string {
	switch c {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event notifies subscribers of one applied mutation. For Delete, Manifest is
// the removed manifest.
type Event[P object.Props] struct {
	Change   Change
	Manifest object.Manifest[P]
}

// Subscription is one subscriber's view of a store's event stream. Every
// subscription receives every event published after it was created.
//
// A subscription is consumed by a single goroutine.
type Subscription[P object.Props] struct {
	q      *queue.Queue[Event[P]]
	cancel func()
}

// Next blocks until the next event, ctx is done, or the store is closed and
// every queued event has been consumed (CLOSED error).
func (s *Subscription[P]) Next(ctx context.Context) (Event[P], error) {
	ev, err := s.q.Pop(ctx)
	if errors.Is(err, queue.ErrClosed) {
		return ev, &object.Error{Code: object.ErrCodeClosed, Message: "store subscription closed", Kind: object.KindOf[P]()}
	}
	return ev, err
}

// TryNext returns the next queued event without blocking.
func (s *Subscription[P]) TryNext() (Event[P], bool) {
	return s.q.TryPop()
}

// Ready fires when events may be available, and is closed once the
// subscription is closed. Use with TryNext and Done inside a select loop.
func (s *Subscription[P]) Ready() <-chan struct{} {
	return s.q.Wait()
}

// Done reports whether the subscription is closed and drained.
func (s *Subscription[P]) Done() bool {
	return s.q.Drained()
}

// Pending returns the number of queued, unconsumed events.
func (s *Subscription[P]) Pending() int {
	return s.q.Len()
}

// Close detaches the subscription from its store. Queued events can still be
// consumed.
func (s *Subscription[P]) Close() {
	s.cancel()
}
