package operator

import (
	"sync"
	"time"

	"github.com/roach88/steady/internal/queue"
	"github.com/roach88/steady/pkg/object"
)

// delayQueue schedules re-reconciles. Each object id has at most one pending
// timer; scheduling again replaces it. Fired ids are queued for the operator
// loop, which resolves them to the current object record.
type delayQueue struct {
	mu      sync.Mutex
	timers  map[object.ID]delayEntry
	gen     uint64
	fired   *queue.Queue[object.ID]
	stopped bool
}

type delayEntry struct {
	timer *time.Timer
	gen   uint64
}

func newDelayQueue() *delayQueue {
	return &delayQueue{
		timers: make(map[object.ID]delayEntry),
		fired:  queue.New[object.ID](),
	}
}

// Schedule fires id after d, replacing any earlier schedule for id.
func (d *delayQueue) Schedule(id object.ID, after time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if prev, ok := d.timers[id]; ok {
		prev.timer.Stop()
	}

	d.gen++
	gen := d.gen
	// fire takes d.mu, so even a zero delay cannot observe the map before
	// this entry is stored.
	d.timers[id] = delayEntry{
		timer: time.AfterFunc(after, func() { d.fire(id, gen) }),
		gen:   gen,
	}
}

// Cancel drops a pending schedule for id.
func (d *delayQueue) Cancel(id object.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, ok := d.timers[id]; ok {
		entry.timer.Stop()
		delete(d.timers, id)
	}
}

// Scheduled reports whether id has a pending timer.
func (d *delayQueue) Scheduled(id object.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[id]
	return ok
}

// Len returns the number of pending timers.
func (d *delayQueue) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Ready fires when fired ids may be available.
func (d *delayQueue) Ready() <-chan struct{} {
	return d.fired.Wait()
}

// TryNext returns the next fired id without blocking.
func (d *delayQueue) TryNext() (object.ID, bool) {
	return d.fired.TryPop()
}

// Stop cancels every pending timer. Already fired ids remain readable.
func (d *delayQueue) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for id, entry := range d.timers {
		entry.timer.Stop()
		delete(d.timers, id)
	}
	d.fired.Close()
}

func (d *delayQueue) fire(id object.ID, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.timers[id]
	if !ok || entry.gen != gen {
		// Cancelled or replaced after the timer had already fired.
		return
	}
	delete(d.timers, id)
	_ = d.fired.Push(id)
}
