// Package operator turns a store's event stream into controller calls.
//
// An Operator owns the live object table of one kind. It subscribes to the
// kind's store when constructed and, once Run, handles events one at a time:
//
//   - Create: admit, patch the store, initialize state, record the object,
//     then reconcile if the controller wants to.
//   - Update: admit, patch the store, replace the record's manifest, then
//     reconcile if the controller wants to.
//   - Delete: drop the record and call Terminate with the last manifest.
//
// An error aborts the handling of that single event; it is logged, reported
// to the error sink, and the loop continues. Reconciles run on their own
// goroutines through the Reconciler, and requeue requests come back to the
// loop through a delay queue.
package operator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/roach88/steady/pkg/command"
	"github.com/roach88/steady/pkg/controller"
	"github.com/roach88/steady/pkg/object"
	"github.com/roach88/steady/pkg/store"
)

// Option configures an Operator.
type Option func(*options)

type options struct {
	logger *slog.Logger
	ids    object.IDGenerator
	sink   func(error)
}

// WithLogger sets the operator's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithIDGenerator sets how object ids are assigned. Default: UUIDv7.
func WithIDGenerator(g object.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithErrorSink receives every event-handling error after it is logged.
func WithErrorSink(sink func(error)) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// Operator drives controller C for kind P with runtime state S.
type Operator[P object.Props, S any] struct {
	controller controller.Controller[P, S]
	store      *store.Store[P]
	sub        *store.Subscription[P]
	objects    *objects[P, S]
	reconciler *Reconciler[P, S]
	requeue    *delayQueue
	ids        object.IDGenerator
	logger     *slog.Logger
	sink       func(error)

	running  atomic.Bool
	handling atomic.Bool
}

// New builds an operator for ctl bound to st. It subscribes to st
// immediately, so no event published after New returns is missed.
func New[P object.Props, S any](ctl controller.Controller[P, S], st *store.Store[P], cmd *command.Command, opts ...Option) *Operator[P, S] {
	o := options{
		logger: slog.Default(),
		ids:    object.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.With("kind", object.KindOf[P]())
	op := &Operator[P, S]{
		controller: ctl,
		store:      st,
		sub:        st.Events(),
		objects:    newObjects[P, S](),
		reconciler: NewReconciler(ctl, cmd, logger),
		requeue:    newDelayQueue(),
		ids:        o.ids,
		logger:     logger,
		sink:       o.sink,
	}
	op.reconciler.requeue = op.requeue.Schedule

	return op
}

// Kind returns the operator's kind.
func (o *Operator[P, S]) Kind() object.Kind {
	return object.KindOf[P]()
}

// Run processes store events and requeues until the store is closed and its
// events are drained (returns nil) or ctx is done (returns ctx.Err()). Before
// returning it cancels pending requeues and waits for in-flight reconciles.
//
// Run must be called at most once.
func (o *Operator[P, S]) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return &object.Error{Code: object.ErrCodeAlreadyStarted, Message: "operator already running", Kind: o.Kind()}
	}

	o.logger.Info("operator starting")
	defer func() {
		o.requeue.Stop()
		o.reconciler.Wait()
		o.sub.Close()
		o.logger.Info("operator stopped", "objects", o.objects.len())
	}()

	for {
		o.handling.Store(true)
		if ev, ok := o.sub.TryNext(); ok {
			if err := o.handleEvent(ctx, ev); err != nil {
				o.report(err, "store event handling failed",
					"change", ev.Change,
					"name", ev.Manifest.Name(),
				)
			}
			continue
		}
		if id, ok := o.requeue.TryNext(); ok {
			o.requeued(ctx, id)
			continue
		}
		o.handling.Store(false)

		if o.sub.Done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.sub.Ready():
		case <-o.requeue.Ready():
		}
	}
}

// handleEvent applies one store event to the object table and controller.
func (o *Operator[P, S]) handleEvent(ctx context.Context, ev store.Event[P]) error {
	name := ev.Manifest.Name()
	o.logger.Debug("received store event", "change", ev.Change, "name", name)

	switch ev.Change {
	case store.Create:
		return o.create(ctx, ev.Manifest)
	case store.Update:
		return o.update(ctx, ev.Manifest)
	case store.Delete:
		return o.delete(ctx, ev.Manifest)
	default:
		return fmt.Errorf("unknown change %d for %s", ev.Change, ev.Manifest.Ref())
	}
}

func (o *Operator[P, S]) create(ctx context.Context, m object.Manifest[P]) error {
	admitted, err := o.admit(ctx, m)
	if err != nil {
		return err
	}

	state, err := o.controller.InitializeState(ctx, admitted)
	if err != nil {
		return fmt.Errorf("initialize state %s: %w", m.Ref(), err)
	}

	obj := newObject(o.ids.NewID(), admitted, state)
	if prev, replaced := o.objects.insert(obj); replaced {
		o.requeue.Cancel(prev.ID())
		o.logger.Warn("create replaced a live object", "name", m.Name(), "previous_id", prev.ID())
	}
	o.logger.Info("object created", "name", m.Name(), "id", obj.ID())

	return o.maybeReconcile(ctx, obj, admitted)
}

func (o *Operator[P, S]) update(ctx context.Context, m object.Manifest[P]) error {
	obj, ok := o.objects.get(m.Name())
	if !ok {
		return object.NotFound(m.Kind(), m.Name(), "update for an object that was never created")
	}

	admitted, err := o.admit(ctx, m)
	if err != nil {
		return err
	}
	obj.setManifest(admitted)

	return o.maybeReconcile(ctx, obj, admitted)
}

func (o *Operator[P, S]) delete(ctx context.Context, m object.Manifest[P]) error {
	obj, ok := o.objects.remove(m.Name())
	if !ok {
		return object.NotFound(m.Kind(), m.Name(), "delete for an object that was never created")
	}
	o.requeue.Cancel(obj.ID())

	if err := o.controller.Terminate(ctx, m); err != nil {
		return fmt.Errorf("terminate %s: %w", m.Ref(), err)
	}
	o.logger.Info("object terminated", "name", m.Name(), "id", obj.ID())

	return nil
}

// admit runs admission and patches the store with the admitted manifest,
// which publishes no event.
func (o *Operator[P, S]) admit(ctx context.Context, m object.Manifest[P]) (object.Manifest[P], error) {
	admitted, err := o.controller.AdmitManifest(ctx, m)
	if err != nil {
		return admitted, fmt.Errorf("admit manifest %s: %w", m.Ref(), err)
	}
	if admitted.Name() != m.Name() {
		return admitted, &object.Error{
			Code:    object.ErrCodeInvalidManifest,
			Message: fmt.Sprintf("admission renamed the manifest to %q", admitted.Name()),
			Kind:    m.Kind(),
			Name:    m.Name(),
		}
	}

	if err := o.store.Patch(admitted); err != nil {
		return admitted, fmt.Errorf("patch admitted manifest: %w", err)
	}
	return admitted, nil
}

func (o *Operator[P, S]) maybeReconcile(ctx context.Context, obj *Object[P, S], m object.Manifest[P]) error {
	should, err := o.controller.ShouldReconcile(ctx, m)
	if err != nil {
		return fmt.Errorf("should reconcile %s: %w", m.Ref(), err)
	}
	if should {
		o.reconciler.Reconcile(ctx, obj)
	}
	return nil
}

// requeued re-reconciles the object a fired timer belongs to. Objects
// deleted since the timer was set are skipped.
func (o *Operator[P, S]) requeued(ctx context.Context, id object.ID) {
	obj, ok := o.objects.getByID(id)
	if !ok {
		o.logger.Debug("requeue for a deleted object, dropping", "id", id)
		return
	}
	o.reconciler.Reconcile(ctx, obj)
}

func (o *Operator[P, S]) report(err error, msg string, args ...any) {
	o.logger.Error(msg, append(args, "error", err)...)
	if o.sink != nil {
		o.sink(err)
	}
}

// Object returns the live record for name.
func (o *Operator[P, S]) Object(name string) (*Object[P, S], bool) {
	return o.objects.get(name)
}

// Names returns the names of live objects, ordered.
func (o *Operator[P, S]) Names() []string {
	names := o.objects.names()
	sort.Strings(names)
	return names
}

// Len returns the number of live objects.
func (o *Operator[P, S]) Len() int {
	return o.objects.len()
}

// Reconciler returns the operator's reconciler.
func (o *Operator[P, S]) Reconciler() *Reconciler[P, S] {
	return o.reconciler
}

// Idle reports whether the operator has no queued or in-progress store
// events, no fired requeues and no running reconciles. Requeue timers that
// have not fired yet do not count.
func (o *Operator[P, S]) Idle() bool {
	return !o.handling.Load() &&
		o.sub.Pending() == 0 &&
		o.requeue.fired.Len() == 0 &&
		o.reconciler.InFlight() == 0
}
