package journal

import "sync/atomic"

// Clock stamps journal rows with strictly increasing sequence numbers.
// Rows are ordered by seq, never by wall-clock time.
type Clock interface {
	Next() int64
}

// SeqClock is the default Clock.
//
// Thread-safety: SeqClock is safe for concurrent use (atomic operations).
// Stores of different kinds record concurrently, so Next may be called from
// several goroutines.
type SeqClock struct {
	seq atomic.Int64
}

// NewSeqClock creates a clock whose first Next returns start+1.
// Open resumes from the highest seq already in the journal.
func NewSeqClock(start int64) *SeqClock {
	c := &SeqClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *SeqClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *SeqClock) Current() int64 {
	return c.seq.Load()
}
