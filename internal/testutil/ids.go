package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/roach88/steady/pkg/object"
)

// SequentialIDs generates object IDs 1, 2, 3, ... encoded in the last eight
// bytes of the UUID, so the IDs printed in logs and golden files are stable
// across runs:
//
//	00000000-0000-0000-0000-000000000001
//
// Unlike object.UUIDv7Generator, SequentialIDs can be reset for test reuse.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu sync.Mutex
	n  uint64
}

// NewSequentialIDs creates a generator whose first ID is 1.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{}
}

// NewID returns the next ID.
//
// Implements object.IDGenerator.
func (g *SequentialIDs) NewID() object.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return IDN(g.n)
}

// Reset makes the next call to NewID return ID 1 again.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}

// IDN returns the ID a fresh SequentialIDs generates on its n-th call.
func IDN(n uint64) object.ID {
	var id object.ID
	binary.BigEndian.PutUint64(id[8:], n)
	return id
}
