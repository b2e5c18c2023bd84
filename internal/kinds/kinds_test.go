package kinds

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/steady/internal/manifest"
	"github.com/roach88/steady/pkg/command"
	"github.com/roach88/steady/pkg/engine"
	"github.com/roach88/steady/pkg/object"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fixture struct {
	engine *engine.Engine
	ops    *Operators
	cmd    *command.Command
	errs   chan error
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	errs := make(chan error, 16)
	e := engine.New(engine.WithErrorSink(func(err error) {
		select {
		case errs <- err:
		default:
		}
	}))
	ops, err := Register(e, opts)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	t.Cleanup(func() {
		e.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("engine did not stop")
		}
	})
	return &fixture{engine: e, ops: ops, cmd: e.Command(), errs: errs}
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, f.engine.Idle, waitFor, tick)
}

func (f *fixture) fooState(t *testing.T, name string) FooState {
	t.Helper()
	obj, ok := f.ops.Foo.Object(name)
	require.True(t, ok, "foo %s", name)
	return obj.State().Snapshot()
}

func (f *fixture) childNames(t *testing.T) []string {
	t.Helper()
	children, err := engine.StoreOf[ChildProps](f.engine)
	require.NoError(t, err)
	return children.Names()
}

func TestFoo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	require.NoError(t, f.cmd.InsertAndWait(ctx, object.New("x", FooProps{Foo: true})))
	f.waitIdle(t)
	assert.Equal(t, FooState{Foo: true, Reconciles: 1}, f.fooState(t, "x"))

	require.NoError(t, f.cmd.InsertAndWait(ctx, object.New("x", FooProps{Foo: false})))
	f.waitIdle(t)
	assert.Equal(t, FooState{Foo: false, Reconciles: 2}, f.fooState(t, "x"))

	require.NoError(t, command.RemoveOfAndWait[FooProps](ctx, f.cmd, "x"))
	f.waitIdle(t)
	_, ok := f.ops.Foo.Object("x")
	assert.False(t, ok)
}

func TestFoo_Resync(t *testing.T) {
	f := newFixture(t, Options{FooResync: 10 * time.Millisecond})

	require.NoError(t, f.cmd.InsertAndWait(context.Background(), object.New("x", FooProps{Foo: true})))

	require.Eventually(t, func() bool {
		obj, ok := f.ops.Foo.Object("x")
		return ok && obj.State().Snapshot().Reconciles >= 3
	}, waitFor, tick)
}

func TestParent_CreatesAndCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	parent := object.New("parent", ParentProps{Children: []ChildSpec{{Name: "Sara"}, {Name: "Michael", Toys: 3}}})
	require.NoError(t, f.cmd.InsertAndWait(ctx, parent))
	f.waitIdle(t)

	assert.Equal(t, []string{"Michael", "Sara"}, f.childNames(t))
	assert.Equal(t, []object.Ref{
		{Kind: "Child", Name: "Michael"},
		{Kind: "Child", Name: "Sara"},
	}, f.engine.Owners().Owned(parent.Ref()))

	michael, ok := f.ops.Child.Object("Michael")
	require.True(t, ok)
	assert.Equal(t, 3, michael.State().Snapshot().Toys)

	require.NoError(t, command.RemoveOfAndWait[ParentProps](ctx, f.cmd, "parent"))
	f.waitIdle(t)
	assert.Empty(t, f.childNames(t))
	assert.Equal(t, 0, f.engine.Owners().Len())

	require.NoError(t, command.RemoveOfAndWait[ParentProps](ctx, f.cmd, "parent"), "second remove is a no-op")
}

func TestParent_FollowsProps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	require.NoError(t, f.cmd.InsertAndWait(ctx, object.New("parent", ParentProps{Children: []ChildSpec{{Name: "Sara"}, {Name: "Michael"}}})))
	f.waitIdle(t)
	require.Equal(t, []string{"Michael", "Sara"}, f.childNames(t))

	require.NoError(t, f.cmd.InsertAndWait(ctx, object.New("parent", ParentProps{Children: []ChildSpec{{Name: "Sara", Toys: 5}, {Name: "Ada"}}})))
	f.waitIdle(t)

	assert.Equal(t, []string{"Ada", "Sara"}, f.childNames(t))
	sara, ok := f.ops.Child.Object("Sara")
	require.True(t, ok)
	assert.Equal(t, 5, sara.Manifest().Props.Toys)

	obj, ok := f.ops.Parent.Object("parent")
	require.True(t, ok)
	var names []string
	obj.State().Read(func(s ParentState) { names = s.Names() })
	assert.Equal(t, []string{"Ada", "Sara"}, names)
}

func TestParent_AdmissionRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	require.NoError(t, f.cmd.InsertAndWait(ctx, object.New("parent", ParentProps{Children: []ChildSpec{{Name: "Sara"}, {Name: "Sara"}}})))

	select {
	case err := <-f.errs:
		assert.Contains(t, err.Error(), `duplicate child "Sara"`)
	case <-time.After(waitFor):
		t.Fatal("admission error not reported")
	}
	f.waitIdle(t)
	_, ok := f.ops.Parent.Object("parent")
	assert.False(t, ok)
	assert.Empty(t, f.childNames(t))
}

func TestParentProps_DeepCopy(t *testing.T) {
	m := object.New("parent", ParentProps{Children: []ChildSpec{{Name: "Sara"}}})
	clone := m.Clone()
	clone.Props.Children[0].Name = "Michael"
	assert.Equal(t, "Sara", m.Props.Children[0].Name)
}

func TestDemoManifests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	result, errs := manifest.LoadDir(filepath.Join("testdata", "manifests"), f.engine, manifest.FailFast)
	require.Empty(t, errs)
	require.NoError(t, manifest.Apply(ctx, f.cmd, result.Manifests))
	f.waitIdle(t)

	assert.Equal(t, FooState{Foo: true, Reconciles: 1}, f.fooState(t, "proxy"))
	assert.Equal(t, []string{"Michael", "Sara"}, f.childNames(t))
}

func TestRegister_AfterStart(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.cmd.InsertAndWait(context.Background(), object.New("x", FooProps{})))

	_, err := Register(f.engine, Options{})
	assert.True(t, object.HasCode(err, object.ErrCodeAlreadyStarted))
}
