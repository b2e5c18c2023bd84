package testutil

import "sync"

// DeterministicClock is a journal.Clock for tests: a fresh clock numbers
// trace events and journal rows 1, 2, 3, ... no matter what ran before, and
// Reset rewinds it so a scenario can be replayed with identical seqs.
//
// Thread-safety: all methods are safe for concurrent use.
type DeterministicClock struct {
	mu   sync.Mutex
	last int64
}

// NewDeterministicClock returns a clock whose first Next is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// StartAt returns a clock whose first Next is after last, like a journal
// clock resumed from a database whose highest seq is last.
func StartAt(last int64) *DeterministicClock {
	return &DeterministicClock{last: last}
}

// Next advances the clock and returns the new seq.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last
}

// Current returns the last seq handed out, or the starting point.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Reset rewinds the clock so the next Next is 1.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = 0
}
