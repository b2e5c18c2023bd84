package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/steady/pkg/object"
)

func trace(events ...string) []TraceEvent {
	out := make([]TraceEvent, len(events))
	for i, ev := range events {
		var change, ref string
		for j := 0; j < len(ev); j++ {
			if ev[j] == ' ' {
				change, ref = ev[:j], ev[j+1:]
				break
			}
		}
		out[i] = TraceEvent{Seq: int64(i + 1), Change: change, Ref: ref}
	}
	return out
}

func TestAssertTraceOrder(t *testing.T) {
	tr := trace("create Parent/p", "own Child/a", "create Child/a", "delete Child/a", "delete Parent/p")

	assert.NoError(t, assertTraceOrder(tr, Assertion{Events: []string{"create Parent/p", "create Child/a", "delete Parent/p"}}))

	err := assertTraceOrder(tr, Assertion{Events: []string{"delete Child/a", "create Child/a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"create Child/a" missing or out of order`)

	err = assertTraceOrder(tr, Assertion{Events: []string{"update Child/a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Full trace:")
}

func TestAssertTraceOrder_RepeatedEvents(t *testing.T) {
	tr := trace("create Foo/x", "delete Foo/x", "create Foo/x")

	assert.NoError(t, assertTraceOrder(tr, Assertion{Events: []string{"create Foo/x", "delete Foo/x", "create Foo/x"}}))
	assert.Error(t, assertTraceOrder(tr, Assertion{Events: []string{"delete Foo/x", "delete Foo/x"}}))
}

func TestAssertTraceCount(t *testing.T) {
	tr := trace("create Foo/x", "create Foo/y", "update Foo/x")

	assert.NoError(t, assertTraceCount(tr, Assertion{Change: "create", Count: 2}))
	assert.NoError(t, assertTraceCount(tr, Assertion{Change: "create", Ref: "Foo/y", Count: 1}))
	assert.NoError(t, assertTraceCount(tr, Assertion{Change: "delete", Count: 0}))

	err := assertTraceCount(tr, Assertion{Change: "update", Ref: "Foo/x", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences of update Foo/x")
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestAssertState(t *testing.T) {
	state, err := json.Marshal(struct {
		Foo        bool           `json:"foo"`
		Reconciles int            `json:"reconciles"`
		Children   map[string]int `json:"children"`
	}{Foo: true, Reconciles: 2, Children: map[string]int{"a": 1}})
	require.NoError(t, err)

	a := Assertion{Kind: "Foo", Name: "x"}

	a.State = map[string]any{"reconciles": 2}
	assert.NoError(t, assertState(a, state), "ints match JSON numbers")

	a.State = map[string]any{"children": map[string]any{"a": 1}}
	assert.NoError(t, assertState(a, state))

	a.State = map[string]any{"foo": false}
	err = assertState(a, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "foo" = false`)

	a.State = map[string]any{"missing": 1}
	err = assertState(a, state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "missing" to exist`)
}

func TestAssertOwned(t *testing.T) {
	owner := &object.Ref{Kind: "Parent", Name: "p"}
	owned := []object.Ref{{Kind: "Child", Name: "a"}, {Kind: "Child", Name: "b"}}

	assert.NoError(t, assertOwned(Assertion{Owner: owner, Refs: []string{"Child/a", "Child/b"}}, owned))
	assert.NoError(t, assertOwned(Assertion{Owner: owner}, nil))

	err := assertOwned(Assertion{Owner: owner, Refs: []string{"Child/a"}}, owned)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Parent/p owns [Child/a]")
}

func TestAssertNames(t *testing.T) {
	a := Assertion{Type: AssertStored, Kind: "Foo", Names: []string{"a", "b"}}

	assert.NoError(t, assertNames(a, []string{"a", "b"}, true))
	assert.Error(t, assertNames(a, []string{"b", "a"}, true), "order matters")

	err := assertNames(a, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestAssertionError_Error(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 occurrences of create",
		Actual:   "0 occurrences",
		Trace:    trace("own Child/a"),
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "[1] own Child/a")

	err.Trace = nil
	assert.NotContains(t, err.Error(), "Full trace")
}
