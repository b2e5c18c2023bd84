package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/steady/internal/queue"
	"github.com/roach88/steady/pkg/command"
	"github.com/roach88/steady/pkg/object"
	"github.com/roach88/steady/pkg/ownership"
	"github.com/roach88/steady/pkg/store"
)

// runner is the engine's view of an operator.
type runner interface {
	Kind() object.Kind
	Run(ctx context.Context) error
	Idle() bool
}

// Engine owns every store, the ownership index and the command channel.
//
// Thread-safety model:
//   - Command(), Store(), Kinds(), Owners(), Idle(), Stop(): safe from any goroutine
//   - Register*: before Run only
//   - Run(): exactly once, from one goroutine
type Engine struct {
	mu        sync.RWMutex
	stores    map[object.Kind]store.AnyStore
	operators []runner

	owners   *ownership.Owners
	commands *queue.Queue[command.Event]
	command  *command.Command

	logger  *slog.Logger
	ids     object.IDGenerator
	sink    func(error)
	journal Journal

	started  atomic.Bool
	applying atomic.Bool

	// activity counts submitted and applied commands, so Idle can tell a
	// quiet moment from a hand-off between the loop and an operator.
	activity atomic.Uint64
}

// New creates an engine with no registered kinds.
func New(opts ...Option) *Engine {
	e := &Engine{
		stores:   make(map[object.Kind]store.AnyStore),
		owners:   ownership.New(),
		commands: queue.New[command.Event](),
		logger:   slog.Default(),
		ids:      object.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.command = command.New(command.SinkFunc(e.submit))

	return e
}

// Command returns the handle for submitting mutations.
func (e *Engine) Command() *command.Command {
	return e.command
}

// Store returns the store registered for kind.
func (e *Engine) Store(kind object.Kind) (store.AnyStore, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.stores[kind]
	return st, ok
}

// Kinds returns the registered kinds in order.
func (e *Engine) Kinds() []object.Kind {
	e.mu.RLock()
	defer e.mu.RUnlock()

	kinds := make([]object.Kind, 0, len(e.stores))
	for kind := range e.stores {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Owners returns the ownership index.
func (e *Engine) Owners() *ownership.Owners {
	return e.owners
}

// Run starts every registered operator and applies commands until Stop is
// called and the queue is drained (returns nil) or ctx is done (returns
// ctx.Err()). In both cases it closes every store and waits for the
// operators before returning.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return &object.Error{Code: object.ErrCodeAlreadyStarted, Message: "engine already running"}
	}

	e.mu.RLock()
	operators := append([]runner(nil), e.operators...)
	kinds := len(e.stores)
	e.mu.RUnlock()

	e.logger.Info("engine starting", "kinds", kinds, "operators", len(operators))

	var g errgroup.Group
	for _, op := range operators {
		g.Go(func() error {
			err := op.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				e.report(err, "operator failed", "kind", op.Kind())
			}
			return nil
		})
	}

	err := e.loop(ctx)

	e.closeStores()
	_ = g.Wait()

	e.logger.Info("engine stopped", "edges", e.owners.Len())
	return err
}

// loop applies commands until the queue is closed and drained or ctx is done.
func (e *Engine) loop(ctx context.Context) error {
	for {
		e.applying.Store(true)
		if ev, ok := e.commands.TryPop(); ok {
			e.apply(ev)
			e.activity.Add(1)
			continue
		}
		e.applying.Store(false)

		if e.commands.Drained() {
			e.logger.Info("engine stopping: command queue closed")
			return nil
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.abandonQueued()
			return ctx.Err()
		case <-e.commands.Wait():
		}
	}
}

// abandonQueued closes the command queue and fails every command still in it.
func (e *Engine) abandonQueued() {
	e.commands.Close()
	for {
		ev, ok := e.commands.TryPop()
		if !ok {
			return
		}
		e.acknowledge(ev, e.closedError())
	}
}

// Stop closes the command queue. Commands already queued are still applied;
// later submissions fail with CLOSED.
func (e *Engine) Stop() {
	e.commands.Close()
}

// Idle reports whether no command is queued or being applied and every
// operator is idle. Requeue timers that have not fired do not count.
func (e *Engine) Idle() bool {
	before := e.activity.Load()
	if !e.quiet() {
		return false
	}
	// Re-check so a command handed to an operator between the two looks is
	// not missed.
	return e.quiet() && e.activity.Load() == before
}

func (e *Engine) quiet() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, op := range e.operators {
		if !op.Idle() {
			return false
		}
	}
	return e.commands.Len() == 0 && !e.applying.Load()
}

// submit implements command.Sink.
func (e *Engine) submit(ev command.Event) error {
	if err := e.commands.Push(ev); err != nil {
		return e.closedError()
	}
	e.activity.Add(1)
	return nil
}

func (e *Engine) closeStores() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, st := range e.stores {
		st.Close()
	}
}

func (e *Engine) report(err error, msg string, args ...any) {
	e.logger.Error(msg, append(args, "error", err)...)
	if e.sink != nil {
		e.sink(err)
	}
}

func (e *Engine) closedError() error {
	return &object.Error{Code: object.ErrCodeClosed, Message: "command channel closed"}
}
