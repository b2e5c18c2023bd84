package kinds

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/steady/pkg/command"
	"github.com/roach88/steady/pkg/controller"
	"github.com/roach88/steady/pkg/object"
)

// ChildProps is the desired state of a Child.
type ChildProps struct {
	Toys int `json:"toys" yaml:"toys"`
}

// Kind implements object.Props.
func (ChildProps) Kind() object.Kind { return "Child" }

// ChildState is the runtime state of a Child.
type ChildState struct {
	Toys int `json:"toys"`
}

// ChildController copies the toy count into state.
type ChildController struct {
	controller.Base[ChildProps, ChildState]
}

// InitializeState implements controller.Controller.
func (ChildController) InitializeState(_ context.Context, m object.Manifest[ChildProps]) (ChildState, error) {
	return ChildState{Toys: m.Props.Toys}, nil
}

// Reconcile implements controller.Controller.
func (ChildController) Reconcile(_ context.Context, m object.Manifest[ChildProps], state *ChildState, _ *command.Command) (controller.Result, error) {
	state.Toys = m.Props.Toys
	return controller.Result{}, nil
}

// ChildSpec names one child of a Parent.
type ChildSpec struct {
	Name string `json:"name" yaml:"name"`
	Toys int    `json:"toys,omitempty" yaml:"toys,omitempty"`
}

// ParentProps is the desired state of a Parent.
type ParentProps struct {
	Children []ChildSpec `json:"children" yaml:"children"`
}

// Kind implements object.Props.
func (ParentProps) Kind() object.Kind { return "Parent" }

// DeepCopy implements object.DeepCopier.
func (p ParentProps) DeepCopy() ParentProps {
	return ParentProps{Children: append([]ChildSpec(nil), p.Children...)}
}

// ParentState tracks the children a Parent has applied, by name.
type ParentState struct {
	Children map[string]ChildProps `json:"children"`
}

// Names returns the applied children in order.
func (s ParentState) Names() []string {
	names := make([]string, 0, len(s.Children))
	for name := range s.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParentController keeps one owned Child per ChildSpec.
type ParentController struct {
	controller.Base[ParentProps, ParentState]

	// Resync requeues every reconcile after this interval. Zero disables it.
	Resync time.Duration
}

// AdmitManifest rejects duplicate or empty child names.
func (ParentController) AdmitManifest(_ context.Context, m object.Manifest[ParentProps]) (object.Manifest[ParentProps], error) {
	seen := make(map[string]bool, len(m.Props.Children))
	for _, child := range m.Props.Children {
		if child.Name == "" {
			return m, fmt.Errorf("parent %s: child name is required", m.Name())
		}
		if seen[child.Name] {
			return m, fmt.Errorf("parent %s: duplicate child %q", m.Name(), child.Name)
		}
		seen[child.Name] = true
	}
	return m, nil
}

// InitializeState implements controller.Controller.
func (ParentController) InitializeState(context.Context, object.Manifest[ParentProps]) (ParentState, error) {
	return ParentState{Children: make(map[string]ChildProps)}, nil
}

// Reconcile creates missing children as owned objects, re-applies children
// whose props changed and removes children no longer listed.
func (c ParentController) Reconcile(ctx context.Context, m object.Manifest[ParentProps], state *ParentState, cmd *command.Command) (controller.Result, error) {
	if state.Children == nil {
		state.Children = make(map[string]ChildProps)
	}

	wanted := make(map[string]bool, len(m.Props.Children))
	for _, spec := range m.Props.Children {
		wanted[spec.Name] = true
		props := ChildProps{Toys: spec.Toys}

		applied, ok := state.Children[spec.Name]
		switch {
		case !ok:
			err := cmd.InsertOwnedAndWait(ctx, m.Ref(), object.New(spec.Name, props))
			// Restored from a journal: the edge is already ours.
			if object.HasCode(err, object.ErrCodeAlreadyOwned) {
				err = cmd.InsertAndWait(ctx, object.New(spec.Name, props))
			}
			if err != nil {
				return controller.Result{}, fmt.Errorf("create child %s: %w", spec.Name, err)
			}
		case applied != props:
			if err := cmd.InsertAndWait(ctx, object.New(spec.Name, props)); err != nil {
				return controller.Result{}, fmt.Errorf("update child %s: %w", spec.Name, err)
			}
		}
		state.Children[spec.Name] = props
	}

	for _, name := range state.Names() {
		if wanted[name] {
			continue
		}
		if err := command.RemoveOfAndWait[ChildProps](ctx, cmd, name); err != nil {
			return controller.Result{}, fmt.Errorf("remove child %s: %w", name, err)
		}
		delete(state.Children, name)
	}

	if c.Resync > 0 {
		return controller.RequeueAfter(c.Resync), nil
	}
	return controller.Result{}, nil
}
