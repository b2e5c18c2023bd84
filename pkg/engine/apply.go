package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/steady/pkg/command"
	"github.com/roach88/steady/pkg/object"
	"github.com/roach88/steady/pkg/ownership"
	"github.com/roach88/steady/pkg/store"
)

// apply runs one command and acknowledges it.
// Called only from the Run loop.
func (e *Engine) apply(ev command.Event) {
	e.logger.Debug("applying command", "command", ev.String())

	var err error
	switch ev.Action {
	case command.ActionInsert:
		err = e.insert(ev)
	case command.ActionRemove:
		err = e.remove(ev.Target())
	default:
		err = fmt.Errorf("unknown command action %d", ev.Action)
	}

	if err != nil {
		e.report(err, "command failed", "command", ev.String())
	}
	e.acknowledge(ev, err)
}

// acknowledge sends exactly one value on ev.Ack, if set.
func (e *Engine) acknowledge(ev command.Event, err error) {
	if ev.Ack == nil {
		return
	}
	select {
	case ev.Ack <- err:
	default:
		e.logger.Warn("acknowledgment dropped, ack channel full", "command", ev.String())
	}
}

func (e *Engine) insert(ev command.Event) error {
	if ev.Manifest == nil {
		return &object.Error{Code: object.ErrCodeInvalidManifest, Message: "insert without manifest", Kind: ev.Kind}
	}

	target := ev.Manifest.Ref()
	st, err := e.storeFor(target.Kind)
	if err != nil {
		return err
	}

	if ev.Owner == nil {
		return st.InsertAny(ev.Manifest)
	}

	edge := ownership.Edge{Owner: *ev.Owner, Owned: target}
	if err := e.owners.Own(edge.Owner, edge.Owned); err != nil {
		return err
	}
	if e.journal != nil {
		if err := e.journal.RecordOwn(edge); err != nil {
			e.owners.Release(edge.Owner, edge.Owned)
			return fmt.Errorf("journal edge %s -> %s: %w", edge.Owner, edge.Owned, err)
		}
	}

	if err := st.InsertAny(ev.Manifest); err != nil {
		if e.owners.Release(edge.Owner, edge.Owned) {
			e.recordDisown(edge)
		}
		return err
	}

	e.logger.Debug("owned manifest inserted", "owner", edge.Owner, "kind", target.Kind, "name", target.Name)
	return nil
}

// remove removes ref after removing, recursively, everything it owns. Edges
// are detached before recursing, so an ownership cycle terminates. Removing
// an unknown kind fails before anything is touched; removing a missing name
// is a no-op.
func (e *Engine) remove(ref object.Ref) error {
	st, err := e.storeFor(ref.Kind)
	if err != nil {
		return err
	}

	var errs []error
	for _, child := range e.owners.RemoveOwner(ref) {
		e.recordDisown(ownership.Edge{Owner: ref, Owned: child})
		e.logger.Debug("cascading removal", "owner", ref, "kind", child.Kind, "name", child.Name)
		if err := e.remove(child); err != nil {
			errs = append(errs, fmt.Errorf("cascade from %s: %w", ref, err))
		}
	}

	e.disown(ref)

	if err := st.Remove(ref.Name); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// disown detaches ref from every owner it has.
func (e *Engine) disown(ref object.Ref) {
	for _, owner := range e.owners.Disown(ref) {
		e.recordDisown(ownership.Edge{Owner: owner, Owned: ref})
	}
}

func (e *Engine) recordDisown(edge ownership.Edge) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordDisown(edge); err != nil {
		e.report(err, "journal disown failed", "owner", edge.Owner, "owned", edge.Owned)
	}
}

func (e *Engine) storeFor(kind object.Kind) (store.AnyStore, error) {
	st, ok := e.Store(kind)
	if !ok {
		return nil, object.UnknownKind(kind)
	}
	return st, nil
}
