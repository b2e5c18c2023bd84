package object

import "github.com/google/uuid"

// ID is the runtime identity of a live object. IDs are comparable and are
// used as map keys for reconcile deduplication and requeue scheduling.
type ID uuid.UUID

// String returns the hyphenated UUID form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id was never assigned.
func (id ID) IsZero() bool {
	return id == ID{}
}

// IDGenerator assigns object IDs.
// Implemented by UUIDv7Generator (production) and testutil.SequentialIDs (tests).
type IDGenerator interface {
	NewID() ID
}

// UUIDv7Generator generates time-sortable UUIDv7 IDs, so IDs sort by first
// observation, which keeps logs readable.
//
// UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a fresh UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() ID {
	return ID(uuid.Must(uuid.NewV7()))
}
