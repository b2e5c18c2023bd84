package kinds

import (
	"fmt"
	"time"

	"github.com/roach88/steady/pkg/engine"
	"github.com/roach88/steady/pkg/operator"
)

// Options tunes the demo controllers.
type Options struct {
	FooResync    time.Duration
	ParentResync time.Duration
}

// Operators are the operators Register created.
type Operators struct {
	Foo    *operator.Operator[FooProps, FooState]
	Parent *operator.Operator[ParentProps, ParentState]
	Child  *operator.Operator[ChildProps, ChildState]
}

// Register registers Foo, Parent and Child with their controllers.
func Register(e *engine.Engine, opts Options) (*Operators, error) {
	var (
		ops Operators
		err error
	)
	if ops.Foo, err = engine.RegisterController[FooProps, FooState](e, FooController{Resync: opts.FooResync}); err != nil {
		return nil, fmt.Errorf("register Foo: %w", err)
	}
	if ops.Parent, err = engine.RegisterController[ParentProps, ParentState](e, ParentController{Resync: opts.ParentResync}); err != nil {
		return nil, fmt.Errorf("register Parent: %w", err)
	}
	if ops.Child, err = engine.RegisterController[ChildProps, ChildState](e, ChildController{}); err != nil {
		return nil, fmt.Errorf("register Child: %w", err)
	}
	return &ops, nil
}
