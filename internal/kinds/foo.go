package kinds

import (
	"context"
	"time"

	"github.com/roach88/steady/pkg/command"
	"github.com/roach88/steady/pkg/controller"
	"github.com/roach88/steady/pkg/object"
)

// FooProps is the desired state of a Foo.
type FooProps struct {
	Foo bool `json:"foo" yaml:"foo"`
}

// Kind implements object.Props.
func (FooProps) Kind() object.Kind { return "Foo" }

// FooState is the runtime state of a Foo.
type FooState struct {
	Foo        bool `json:"foo"`
	Reconciles int  `json:"reconciles"`
}

// FooController copies props into state.
type FooController struct {
	controller.Base[FooProps, FooState]

	// Resync requeues every reconcile after this interval. Zero disables it.
	Resync time.Duration
}

// InitializeState implements controller.Controller.
func (FooController) InitializeState(_ context.Context, m object.Manifest[FooProps]) (FooState, error) {
	return FooState{Foo: m.Props.Foo}, nil
}

// Reconcile implements controller.Controller.
func (c FooController) Reconcile(_ context.Context, m object.Manifest[FooProps], state *FooState, _ *command.Command) (controller.Result, error) {
	state.Foo = m.Props.Foo
	state.Reconciles++

	if c.Resync > 0 {
		return controller.RequeueAfter(c.Resync), nil
	}
	return controller.Result{}, nil
}
