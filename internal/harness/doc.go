// Package harness runs YAML scenarios against a real engine serving the demo
// kinds and checks the outcome.
//
// # Scenario Format
//
//	name: parent_cascade
//	description: "Removing a parent removes the children it created"
//	timeout: 5s
//	steps:
//	  - insert:
//	      kind: Parent
//	      name: parent
//	      props: { children: [{ name: Sara }, { name: Michael }] }
//	    assert:
//	      - type: stored
//	        kind: Child
//	        names: [Michael, Sara]
//	  - remove: { kind: Parent, name: parent }
//	  - insert: { kind: Foo, name: self, owner: { kind: Foo, name: self } }
//	    error: SELF_OWNERSHIP
//	  - apply: ../manifests
//	  - await: { kind: Child, names: [] }
//	assertions:
//	  - type: trace_order
//	    events: ["disown Child/Michael", "delete Child/Michael", "delete Parent/parent"]
//
// Every step waits for the engine to go idle before its assertions run, so
// reconciles triggered by the step have settled. A step's error, if any, must
// carry the code named by "error".
//
// # Assertion Types
//
//   - stored: the names stored for a kind, in order
//   - live: the names with a live runtime object for a kind, in order
//   - owned: the refs owned by an owner, as "Kind/name", in order
//   - state: a subset match against one object's runtime state
//   - trace_count: how many trace events have a change (and, optionally, a ref)
//   - trace_order: events ("<change> <Kind>/<name>") appear in this order
//
// # Deterministic Testing
//
// The trace is the journal of the run: every create, update, delete, own and
// disown, numbered by a testutil.DeterministicClock. Admission patches are
// left out because they race with the commands a reconcile issues. Object ids
// come from testutil.SequentialIDs. A scenario's trace is therefore identical
// across runs and can be compared against a golden file (see RunWithGolden).
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/parent_cascade.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
