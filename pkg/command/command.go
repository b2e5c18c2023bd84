// Package command is the single entry point for mutating engine-managed
// state. Insert and remove requests for every kind travel through one
// channel to the engine, which applies them to the owning store.
//
// Every request can be sent unacknowledged (returns once enqueued; failures
// only reach the engine's error sink) or acknowledged (the ...AndWait
// variants block until the engine has applied the request and return the
// outcome).
package command

import (
	"context"
	"fmt"

	"github.com/roach88/steady/pkg/object"
)

// Action is the mutation a command event requests.
type Action int

const (
	// ActionInsert upserts a manifest, optionally recording an owner.
	ActionInsert Action = iota + 1
	// ActionRemove removes a manifest and everything it owns.
	ActionRemove
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is one mutation request.
type Event struct {
	Action Action
	Kind   object.Kind

	// Manifest is the boxed manifest to insert (ActionInsert).
	Manifest object.AnyManifest

	// Owner, when set, is recorded as the owner of Manifest (ActionInsert).
	Owner *object.Ref

	// Name is the object to remove (ActionRemove).
	Name string

	// Ack, when set, receives exactly one value once the event is applied.
	// It must be buffered so the engine never blocks on it.
	Ack chan<- error
}

// Target returns the object the event mutates.
func (e Event) Target() object.Ref {
	if e.Action == ActionInsert && e.Manifest != nil {
		return e.Manifest.Ref()
	}
	return object.Ref{Kind: e.Kind, Name: e.Name}
}

// String describes the event for logs.
func (e Event) String() string {
	if e.Owner != nil {
		return fmt.Sprintf("%s %s (owner %s)", e.Action, e.Target(), e.Owner)
	}
	return fmt.Sprintf("%s %s", e.Action, e.Target())
}

// Sink accepts command events. The engine's command queue implements it.
type Sink interface {
	Submit(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

// Submit implements Sink.
func (f SinkFunc) Submit(ev Event) error { return f(ev) }

// Command is a handle for submitting mutations. It is cheap to copy and safe
// for concurrent use; controllers receive one in Reconcile.
type Command struct {
	sink Sink
}

// New creates a command handle submitting to sink.
func New(sink Sink) *Command {
	return &Command{sink: sink}
}

// Insert enqueues an upsert of m.
func (c *Command) Insert(m object.AnyManifest) error {
	ev, err := insertEvent(nil, m)
	if err != nil {
		return err
	}
	return c.sink.Submit(ev)
}

// InsertOwned enqueues an upsert of m owned by owner. A manifest named like
// its owner is rejected immediately, before anything is enqueued.
func (c *Command) InsertOwned(owner object.Ref, m object.AnyManifest) error {
	ev, err := insertEvent(&owner, m)
	if err != nil {
		return err
	}
	return c.sink.Submit(ev)
}

// Remove enqueues removal of kind/name and everything it owns.
func (c *Command) Remove(kind object.Kind, name string) error {
	return c.sink.Submit(Event{Action: ActionRemove, Kind: kind, Name: name})
}

// InsertAndWait upserts m and waits until the engine has applied it.
func (c *Command) InsertAndWait(ctx context.Context, m object.AnyManifest) error {
	ev, err := insertEvent(nil, m)
	if err != nil {
		return err
	}
	return c.submitAndWait(ctx, ev)
}

// InsertOwnedAndWait upserts m owned by owner and waits until the engine has
// applied it, returning ownership or store failures.
func (c *Command) InsertOwnedAndWait(ctx context.Context, owner object.Ref, m object.AnyManifest) error {
	ev, err := insertEvent(&owner, m)
	if err != nil {
		return err
	}
	return c.submitAndWait(ctx, ev)
}

// RemoveAndWait removes kind/name and what it owns, and waits until the
// engine has applied the removal.
func (c *Command) RemoveAndWait(ctx context.Context, kind object.Kind, name string) error {
	return c.submitAndWait(ctx, Event{Action: ActionRemove, Kind: kind, Name: name})
}

// RemoveOf enqueues removal of name for kind P.
func RemoveOf[P object.Props](c *Command, name string) error {
	return c.Remove(object.KindOf[P](), name)
}

// RemoveOfAndWait removes name for kind P and waits for the engine.
func RemoveOfAndWait[P object.Props](ctx context.Context, c *Command, name string) error {
	return c.RemoveAndWait(ctx, object.KindOf[P](), name)
}

func (c *Command) submitAndWait(ctx context.Context, ev Event) error {
	ack := make(chan error, 1)
	ev.Ack = ack

	if err := c.sink.Submit(ev); err != nil {
		return err
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return fmt.Errorf("wait for %s: %w", ev, ctx.Err())
	}
}

func insertEvent(owner *object.Ref, m object.AnyManifest) (Event, error) {
	if m == nil {
		return Event{}, &object.Error{Code: object.ErrCodeInvalidManifest, Message: "manifest is required"}
	}
	if owner != nil && owner.Name == m.Name() {
		return Event{}, &object.Error{
			Code:    object.ErrCodeSelfOwnership,
			Message: fmt.Sprintf("owner %s cannot own a manifest with its own name", owner),
			Kind:    m.Kind(),
			Name:    m.Name(),
		}
	}
	return Event{Action: ActionInsert, Kind: m.Kind(), Manifest: m, Owner: owner}, nil
}
