// Package engine hosts the per-kind stores, the ownership index and the
// command channel, and runs the registered operators.
//
// ARCHITECTURE:
//
// Single command loop:
// Every mutation of engine-managed state arrives as a command.Event on one
// unbounded queue and is applied by Run, one event at a time:
//  1. Insert with owner: resolve the kind's store, register the ownership
//     edge, then insert; a failed insert rolls the edge back.
//  2. Insert without owner: resolve the store and insert.
//  3. Remove: cascade-remove everything the object owns (recursively), detach
//     the object from every owner, then remove it. A child shared by several
//     owners goes with the first of them to be removed.
//
// A failed command is logged and reported to the error sink and, when the
// command carries an acknowledgment, to its sender. The loop continues.
//
// Operators:
// RegisterController builds an Operator subscribed to the kind's store right
// away, so events published after registration are never missed. Operators
// are started together by Run and stop when their store is closed.
//
// Shutdown:
// Stop closes the command queue. Run applies what is still queued, closes
// every store, and waits for the operators, which in turn wait for their
// in-flight reconciles.
package engine
