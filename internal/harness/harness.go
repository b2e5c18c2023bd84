package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/steady/internal/kinds"
	"github.com/roach88/steady/internal/manifest"
	"github.com/roach88/steady/internal/testutil"
	"github.com/roach88/steady/pkg/engine"
	"github.com/roach88/steady/pkg/object"
	"github.com/roach88/steady/pkg/operator"
)

// pollInterval is how often idle and await conditions are checked.
const pollInterval = 2 * time.Millisecond

// Harness is one scenario run: a fresh engine serving the demo kinds, the
// recorder journaling it, and deterministic clock and ids.
type Harness struct {
	engine   *engine.Engine
	ops      *kinds.Operators
	recorder *recorder
	timeout  time.Duration
	logger   *slog.Logger
}

// Run executes a scenario against a fresh engine and returns the result.
//
// Execution flow:
//  1. Build an engine with the demo kinds and a recording journal
//  2. Run each step, check its error code, wait for idle, run its assertions
//  3. Run the scenario assertions
//  4. Stop the engine and return the trace
//
// Step and assertion failures are reported in the result; the returned error
// is reserved for failures of the harness itself.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithLogger(ctx, scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine logs sent to logger.
func RunWithLogger(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	rec := newRecorder(testutil.NewDeterministicClock())

	e := engine.New(
		engine.WithLogger(logger),
		engine.WithIDGenerator(testutil.NewSequentialIDs()),
		engine.WithJournal(rec),
	)
	ops, err := kinds.Register(e, kinds.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to register kinds: %w", err)
	}

	h := &Harness{
		engine:   e,
		ops:      ops,
		recorder: rec,
		timeout:  scenario.timeout(),
		logger:   logger,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(runCtx) }()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, scenario, i, step, result); err != nil {
			h.stop(done, cancel)
			return nil, err
		}
	}

	for _, msg := range h.evaluate(scenario.Assertions, rec.trace()) {
		result.AddError(msg)
	}

	if err := h.stop(done, cancel); err != nil {
		return nil, err
	}
	result.Trace = rec.trace()
	return result, nil
}

// stop stops the engine and waits for it, cancelling it if it does not
// drain in time.
func (h *Harness) stop(done <-chan error, cancel context.CancelFunc) error {
	h.engine.Stop()
	select {
	case err := <-done:
		return err
	case <-time.After(h.timeout):
		cancel()
		<-done
		return fmt.Errorf("engine did not stop within %s", h.timeout)
	}
}

func (h *Harness) executeStep(ctx context.Context, scenario *Scenario, i int, step Step, result *Result) error {
	stepErr := h.act(ctx, scenario, step)

	switch {
	case step.Error == "" && stepErr != nil:
		result.AddError(fmt.Sprintf("step %d: unexpected error: %v", i, stepErr))
	case step.Error != "" && stepErr == nil:
		result.AddError(fmt.Sprintf("step %d: expected error %s, got none", i, step.Error))
	case step.Error != "" && !object.HasCode(stepErr, object.ErrorCode(step.Error)):
		result.AddError(fmt.Sprintf("step %d: expected error %s, got: %v", i, step.Error, stepErr))
	}

	if err := h.waitIdle(ctx); err != nil {
		return fmt.Errorf("step %d: %w", i, err)
	}

	for _, msg := range h.evaluate(step.Assert, h.recorder.trace()) {
		result.AddError(fmt.Sprintf("step %d: %s", i, msg))
	}

	h.logger.Info("step completed", "step", i, "error", stepErr)
	return nil
}

// act performs the step and returns its outcome, which is checked against
// step.Error.
func (h *Harness) act(ctx context.Context, scenario *Scenario, step Step) error {
	cmd := h.engine.Command()

	switch {
	case step.Insert != nil:
		m, err := h.decode(step.Insert)
		if err != nil {
			return err
		}
		if step.Insert.Owner != nil {
			return cmd.InsertOwnedAndWait(ctx, *step.Insert.Owner, m)
		}
		return cmd.InsertAndWait(ctx, m)

	case step.Remove != nil:
		return cmd.RemoveAndWait(ctx, step.Remove.Kind, step.Remove.Name)

	case step.Apply != "":
		loaded, errs := manifest.LoadDir(scenario.resolve(step.Apply), h.engine, manifest.FailFast)
		if len(errs) > 0 {
			return errs[0]
		}
		return manifest.Apply(ctx, cmd, loaded.Manifests)

	case step.Await != nil:
		return h.await(ctx, step.Await)
	}
	return errors.New("empty step")
}

// decode builds a boxed manifest with the store registered for the kind.
func (h *Harness) decode(step *InsertStep) (object.AnyManifest, error) {
	st, ok := h.engine.Store(step.Kind)
	if !ok {
		return nil, object.UnknownKind(step.Kind)
	}

	props := step.Props
	if props == nil {
		props = map[string]any{}
	}
	data, err := json.Marshal(map[string]any{
		"meta":  object.Meta{Name: step.Name},
		"props": props,
	})
	if err != nil {
		return nil, &object.Error{Code: object.ErrCodeInvalidManifest, Message: "encode props", Kind: step.Kind, Name: step.Name, Err: err}
	}
	return st.Decode(data)
}

func (h *Harness) await(ctx context.Context, step *AwaitStep) error {
	var last []string
	err := h.poll(ctx, func() bool {
		var ok bool
		if step.Live {
			last, ok = h.liveNames(step.Kind)
		} else {
			last, ok = h.storedNames(step.Kind)
		}
		return ok && equalNames(last, step.Names)
	})
	if err != nil {
		return fmt.Errorf("await %s names %v (last %v): %w", step.Kind, step.Names, last, err)
	}
	return nil
}

func (h *Harness) waitIdle(ctx context.Context) error {
	if err := h.poll(ctx, h.engine.Idle); err != nil {
		return fmt.Errorf("engine not idle: %w", err)
	}
	return nil
}

// poll checks cond until it holds, the timeout expires, or ctx is done.
func (h *Harness) poll(ctx context.Context, cond func() bool) error {
	deadline := time.NewTimer(h.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if cond() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("timed out after %s", h.timeout)
		case <-ticker.C:
		}
	}
}

func (h *Harness) storedNames(kind object.Kind) ([]string, bool) {
	st, ok := h.engine.Store(kind)
	if !ok {
		return nil, false
	}
	return st.Names(), true
}

func (h *Harness) liveNames(kind object.Kind) ([]string, bool) {
	switch kind {
	case kinds.FooProps{}.Kind():
		return h.ops.Foo.Names(), true
	case kinds.ParentProps{}.Kind():
		return h.ops.Parent.Names(), true
	case kinds.ChildProps{}.Kind():
		return h.ops.Child.Names(), true
	}
	return nil, false
}

// state returns the runtime state of kind/name as JSON, encoded under the
// state's read lock.
func (h *Harness) state(kind object.Kind, name string) (json.RawMessage, bool, error) {
	switch kind {
	case kinds.FooProps{}.Kind():
		if obj, ok := h.ops.Foo.Object(name); ok {
			data, err := stateJSON(obj.State())
			return data, true, err
		}
	case kinds.ParentProps{}.Kind():
		if obj, ok := h.ops.Parent.Object(name); ok {
			data, err := stateJSON(obj.State())
			return data, true, err
		}
	case kinds.ChildProps{}.Kind():
		if obj, ok := h.ops.Child.Object(name); ok {
			data, err := stateJSON(obj.State())
			return data, true, err
		}
	}
	return nil, false, nil
}

func stateJSON[S any](s *operator.State[S]) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	s.Read(func(v S) { data, err = json.Marshal(v) })
	return data, err
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
