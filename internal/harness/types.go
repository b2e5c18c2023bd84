package harness

import (
	"encoding/json"
	"fmt"
)

// Trace change names for ownership edges. Store changes use
// store.Change.String(): "create", "update", "delete".
const (
	ChangeOwn    = "own"
	ChangeDisown = "disown"
)

// TraceEvent is one journaled mutation.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Change string `json:"change"`
	Ref    string `json:"ref"`

	// Owner is set for own and disown.
	Owner string `json:"owner,omitempty"`

	// Props is the stored props for create and update.
	Props json.RawMessage `json:"props,omitempty"`
}

// String returns "<change> <ref>", the form trace_order matches.
func (e TraceEvent) String() string {
	return fmt.Sprintf("%s %s", e.Change, e.Ref)
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step and assertion succeeded.
	Pass bool `json:"pass"`

	// Trace holds every journaled mutation in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
