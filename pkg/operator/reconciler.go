package operator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/steady/pkg/command"
	"github.com/roach88/steady/pkg/controller"
	"github.com/roach88/steady/pkg/object"
)

// Reconciler runs controller reconciles as independent goroutines, with at
// most one in flight per object id. A request for an id that is already
// pending is dropped, not queued: the next store event or requeue after
// completion triggers the next run.
type Reconciler[P object.Props, S any] struct {
	controller controller.Controller[P, S]
	command    *command.Command
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[object.ID]struct{}
	wg      sync.WaitGroup

	// requeue receives completed reconciles that asked to run again.
	requeue func(id object.ID, after time.Duration)

	started atomic.Int64
	failed  atomic.Int64
}

// NewReconciler creates a reconciler for ctl. Reconcile tasks receive cmd.
func NewReconciler[P object.Props, S any](ctl controller.Controller[P, S], cmd *command.Command, logger *slog.Logger) *Reconciler[P, S] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler[P, S]{
		controller: ctl,
		command:    cmd,
		logger:     logger,
		pending:    make(map[object.ID]struct{}),
	}
}

// Reconcile starts a reconcile of obj unless one is already in flight for
// its id. It reports whether a reconcile was started.
//
// The task runs detached from ctx cancellation: once started, a reconcile
// runs to completion.
func (r *Reconciler[P, S]) Reconcile(ctx context.Context, obj *Object[P, S]) bool {
	id := obj.ID()

	r.mu.Lock()
	if _, ok := r.pending[id]; ok {
		r.mu.Unlock()
		r.logger.Debug("reconcile already in flight, skipping",
			"kind", object.KindOf[P](),
			"name", obj.Name(),
			"id", id,
		)
		return false
	}
	r.pending[id] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	r.started.Add(1)
	go r.run(context.WithoutCancel(ctx), obj)

	return true
}

func (r *Reconciler[P, S]) run(ctx context.Context, obj *Object[P, S]) {
	defer r.wg.Done()

	var (
		manifest object.Manifest[P]
		result   controller.Result
		err      error
	)

	obj.State().write(func(state *S) {
		// Read the manifest under the lock so a run that waited for a
		// previous writer sees the latest admitted manifest.
		manifest = obj.Manifest()
		result, err = r.invoke(ctx, manifest, state)
	})

	if err != nil {
		r.failed.Add(1)
		r.controller.ReconcileError(ctx, manifest, err)
	}

	r.mu.Lock()
	delete(r.pending, obj.ID())
	r.mu.Unlock()

	r.logger.Debug("reconcile finished",
		"kind", object.KindOf[P](),
		"name", manifest.Name(),
		"id", obj.ID(),
		"requeue", result.Requeue || result.RequeueAfter > 0,
		"error", err,
	)

	if err != nil || r.requeue == nil {
		return
	}
	if after, ok := result.ShouldRequeue(); ok {
		r.requeue(obj.ID(), after)
	}
}

// invoke calls the controller, converting a panic into an error.
func (r *Reconciler[P, S]) invoke(ctx context.Context, m object.Manifest[P], state *S) (res controller.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reconcile %s panicked: %v", m.Ref(), p)
		}
	}()
	return r.controller.Reconcile(ctx, m, state, r.command)
}

// Pending reports whether a reconcile is in flight for id.
func (r *Reconciler[P, S]) Pending(id object.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// InFlight returns the number of running reconciles.
func (r *Reconciler[P, S]) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Started returns how many reconciles have been started.
func (r *Reconciler[P, S]) Started() int64 {
	return r.started.Load()
}

// Failed returns how many reconciles returned an error.
func (r *Reconciler[P, S]) Failed() int64 {
	return r.failed.Load()
}

// Wait blocks until every in-flight reconcile has finished.
func (r *Reconciler[P, S]) Wait() {
	r.wg.Wait()
}
