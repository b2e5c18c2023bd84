// Package controller defines the user-supplied half of an operator: the
// hooks that admit manifests, build and reconcile runtime state, and clean
// up when an object is deleted.
//
// Embed Base to inherit the default hooks and implement InitializeState,
// which has no default:
//
//	type FooController struct {
//	    controller.Base[FooProps, FooState]
//	}
//
//	func (FooController) InitializeState(ctx context.Context, m object.Manifest[FooProps]) (FooState, error) {
//	    return FooState{Foo: m.Props.Foo}, nil
//	}
package controller

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/steady/pkg/command"
	"github.com/roach88/steady/pkg/object"
)

// Result is returned by Reconcile. The zero Result means "done until the next
// store event".
type Result struct {
	// Requeue asks for another reconcile after RequeueAfter (immediately when
	// RequeueAfter is zero), even without a new store event.
	Requeue bool

	// RequeueAfter is the requeue delay. A positive value implies Requeue.
	RequeueAfter time.Duration
}

// RequeueAfter returns a Result requeueing after d.
func RequeueAfter(d time.Duration) Result {
	return Result{Requeue: true, RequeueAfter: d}
}

// ShouldRequeue reports whether r asks for another reconcile, and when.
func (r Result) ShouldRequeue() (time.Duration, bool) {
	if r.RequeueAfter > 0 {
		return r.RequeueAfter, true
	}
	return 0, r.Requeue
}

// Controller drives objects of kind P, with runtime state S, toward their
// manifests. Hooks other than Reconcile run on the operator goroutine, one
// event at a time; Reconcile runs on its own goroutine with exclusive access
// to the object's state.
type Controller[P object.Props, S any] interface {
	// AdmitManifest may normalize, mutate, or reject a manifest before it is
	// durably stored. It must not change the manifest's name.
	AdmitManifest(ctx context.Context, m object.Manifest[P]) (object.Manifest[P], error)

	// InitializeState builds the initial runtime state of a new object.
	// An error abandons the object's creation.
	InitializeState(ctx context.Context, m object.Manifest[P]) (S, error)

	// Terminate is called once with the last known manifest after a delete.
	Terminate(ctx context.Context, m object.Manifest[P]) error

	// ShouldReconcile decides whether a create or update triggers Reconcile.
	ShouldReconcile(ctx context.Context, m object.Manifest[P]) (bool, error)

	// Reconcile drives state toward m. cmd lets it create, own, or remove
	// other objects. At most one Reconcile runs per object at a time.
	Reconcile(ctx context.Context, m object.Manifest[P], state *S, cmd *command.Command) (Result, error)

	// ReconcileError receives every Reconcile failure. The error is otherwise
	// absorbed; it is never retried automatically.
	ReconcileError(ctx context.Context, m object.Manifest[P], err error)
}

// Base implements every hook except InitializeState with its default.
type Base[P object.Props, S any] struct {
	// Logger receives ReconcileError reports; nil means slog.Default().
	Logger *slog.Logger
}

// AdmitManifest accepts m unchanged.
func (Base[P, S]) AdmitManifest(_ context.Context, m object.Manifest[P]) (object.Manifest[P], error) {
	return m, nil
}

// Terminate does nothing.
func (Base[P, S]) Terminate(context.Context, object.Manifest[P]) error {
	return nil
}

// ShouldReconcile always reconciles.
func (Base[P, S]) ShouldReconcile(context.Context, object.Manifest[P]) (bool, error) {
	return true, nil
}

// Reconcile does nothing and does not requeue.
func (Base[P, S]) Reconcile(context.Context, object.Manifest[P], *S, *command.Command) (Result, error) {
	return Result{}, nil
}

// ReconcileError logs err and continues.
func (b Base[P, S]) ReconcileError(_ context.Context, m object.Manifest[P], err error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("reconcile failed",
		"kind", m.Kind(),
		"name", m.Name(),
		"error", err,
	)
}
