package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/steady/pkg/object"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Trace for context, if relevant
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event)
		}
	}

	return buf.String()
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(assertions []Assertion, trace []TraceEvent) []string {
	var failures []string
	for _, a := range assertions {
		if err := h.check(a, trace); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func (h *Harness) check(a Assertion, trace []TraceEvent) error {
	switch a.Type {
	case AssertStored:
		names, ok := h.storedNames(a.Kind)
		return assertNames(a, names, ok)
	case AssertLive:
		names, ok := h.liveNames(a.Kind)
		return assertNames(a, names, ok)
	case AssertOwned:
		return assertOwned(a, h.engine.Owners().Owned(*a.Owner))
	case AssertState:
		state, ok, err := h.state(a.Kind, a.Name)
		if err != nil {
			return fmt.Errorf("state %s/%s: %w", a.Kind, a.Name, err)
		}
		if !ok {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("live object %s/%s", a.Kind, a.Name),
				Actual:   "not found",
			}
		}
		return assertState(a, state)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertNames checks an exact, ordered name list.
func assertNames(a Assertion, names []string, known bool) error {
	if !known {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("registered kind %s", a.Kind),
			Actual:   "unknown kind",
		}
	}
	if !equalNames(names, a.Names) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s names %v", a.Kind, a.Names),
			Actual:   fmt.Sprintf("%v", names),
		}
	}
	return nil
}

func assertOwned(a Assertion, owned []object.Ref) error {
	refs := make([]string, len(owned))
	for i, ref := range owned {
		refs[i] = ref.String()
	}
	if !equalNames(refs, a.Refs) {
		return &AssertionError{
			Type:     AssertOwned,
			Expected: fmt.Sprintf("%s owns %v", a.Owner, a.Refs),
			Actual:   fmt.Sprintf("%v", refs),
		}
	}
	return nil
}

// assertState compares the expected fields with the state's JSON form.
// Both sides round-trip through JSON so YAML ints match JSON numbers.
func assertState(a Assertion, state json.RawMessage) error {
	actual, err := jsonMap(state)
	if err != nil {
		return fmt.Errorf("state %s/%s: %w", a.Kind, a.Name, err)
	}
	expected, err := jsonMap(a.State)
	if err != nil {
		return fmt.Errorf("state %s/%s: %w", a.Kind, a.Name, err)
	}

	keys := make([]string, 0, len(expected))
	for key := range expected {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		got, ok := actual[key]
		if !ok {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("%s/%s field %q to exist", a.Kind, a.Name, key),
				Actual:   fmt.Sprintf("state %v", actual),
			}
		}
		if !reflect.DeepEqual(expected[key], got) {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("%s/%s field %q = %v", a.Kind, a.Name, key, expected[key]),
				Actual:   fmt.Sprintf("%v", got),
			}
		}
	}
	return nil
}

func jsonMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// assertTraceCount checks how many events have a change, optionally for
// one ref.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Change == a.Change && (a.Ref == "" || event.Ref == a.Ref) {
			count++
		}
	}

	if count != a.Count {
		what := a.Change
		if a.Ref != "" {
			what = fmt.Sprintf("%s %s", a.Change, a.Ref)
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks that events appear in the given order. Events need
// not be consecutive; each expected event matches the first occurrence after
// the previous match.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, want := range a.Events {
		found := false
		for next < len(trace) {
			event := trace[next]
			next++
			if event.String() == want {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   fmt.Sprintf("%q missing or out of order", want),
				Trace:    trace,
			}
		}
	}
	return nil
}
