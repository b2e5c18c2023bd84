package engine

import (
	"github.com/roach88/steady/pkg/controller"
	"github.com/roach88/steady/pkg/object"
	"github.com/roach88/steady/pkg/operator"
	"github.com/roach88/steady/pkg/store"
)

// RegisterObject creates the store for kind P if it does not exist yet and
// returns it. Registering the same kind again returns the existing store.
func RegisterObject[P object.Props](e *Engine) (*store.Store[P], error) {
	kind := object.KindOf[P]()

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.stores[kind]; ok {
		return store.Typed[P](existing)
	}
	if e.started.Load() {
		return nil, &object.Error{Code: object.ErrCodeAlreadyStarted, Message: "cannot register a kind after start", Kind: kind}
	}

	var opts []store.Option
	if e.journal != nil {
		opts = append(opts, store.WithJournal(e.journal))
	}
	st := store.New[P](opts...)
	e.stores[kind] = st

	e.logger.Debug("kind registered", "kind", kind)
	return st, nil
}

// RegisterController registers kind P, if needed, and builds an operator
// running ctl against its store. The operator subscribes immediately and is
// started by Run together with every other operator.
func RegisterController[P object.Props, S any](e *Engine, ctl controller.Controller[P, S]) (*operator.Operator[P, S], error) {
	if e.started.Load() {
		return nil, &object.Error{Code: object.ErrCodeAlreadyStarted, Message: "cannot register a controller after start", Kind: object.KindOf[P]()}
	}

	st, err := RegisterObject[P](e)
	if err != nil {
		return nil, err
	}

	op := operator.New(ctl, st, e.command,
		operator.WithLogger(e.logger),
		operator.WithIDGenerator(e.ids),
		operator.WithErrorSink(e.sink),
	)

	e.mu.Lock()
	e.operators = append(e.operators, op)
	e.mu.Unlock()

	e.logger.Debug("controller registered", "kind", op.Kind())
	return op, nil
}

// StoreOf returns the typed store for kind P.
func StoreOf[P object.Props](e *Engine) (*store.Store[P], error) {
	kind := object.KindOf[P]()
	st, ok := e.Store(kind)
	if !ok {
		return nil, object.UnknownKind(kind)
	}
	return store.Typed[P](st)
}
