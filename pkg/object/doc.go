// Package object defines the object model shared by every part of the engine.
//
// A kind is declared by its desired-state type: any type implementing Props
// (a value-receiver Kind method) can be stored, commanded, and reconciled.
// Manifest[P] is the desired-state record for one named object of that kind.
//
// Manifests cross kind boundaries (the command channel, the engine's store
// map) as AnyManifest and are recovered with As[P], which fails with a
// TYPE_MISMATCH error rather than reading the wrong type.
//
// ID is the runtime identity of a live object. It is assigned once, when an
// operator first observes the object, and never changes.
package object
