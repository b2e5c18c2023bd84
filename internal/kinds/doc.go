// Package kinds holds the demo kinds served by the steady CLI and its
// scenario harness.
//
//   - Foo: a flag copied into runtime state on every reconcile, optionally
//     resynced on a fixed interval.
//   - Parent: creates one owned Child per entry in its props and removes
//     children dropped from them. Removing a Parent cascades to its children.
//   - Child: a leaf object with a toy count.
//
// Register wires all three into an engine.
package kinds
