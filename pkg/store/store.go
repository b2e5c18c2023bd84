// Package store holds the authoritative manifest table of one kind and
// broadcasts every mutation to its subscribers.
//
// Mutations (Insert, Patch, Remove) are linearized by a single writer lock
// per store, and events are published while that lock is held, so every
// subscriber observes a kind's events in the order they were applied.
// Publishing never blocks: each subscription owns an unbounded queue.
//
// A subscription only sees events published after it was created. Operators
// therefore subscribe when they are constructed, before the engine runs.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/steady/internal/queue"
	"github.com/roach88/steady/pkg/object"
)

// Mutation describes one applied mutation for a Journal.
type Mutation struct {
	Kind   object.Kind
	Name   string
	Change Change

	// Patch marks an in-place replacement that published no event.
	Patch bool

	// Manifest is the stored manifest, or the removed one for Delete.
	Manifest object.AnyManifest
}

// Journal durably records mutations. Record is called under the store's
// writer lock, before the mutation is applied; a Journal error aborts the
// mutation.
type Journal interface {
	Record(m Mutation) error
}

// Option configures a Store.
type Option func(*options)

type options struct {
	journal Journal
}

// WithJournal mirrors every mutation into j.
func WithJournal(j Journal) Option {
	return func(o *options) {
		o.journal = j
	}
}

// Store is the manifest table for kind P.
type Store[P object.Props] struct {
	mu        sync.RWMutex
	manifests map[string]object.Manifest[P]
	subs      map[int]*queue.Queue[Event[P]]
	nextSub   int
	closed    bool
	journal   Journal
}

// New creates an empty store for kind P.
func New[P object.Props](opts ...Option) *Store[P] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &Store[P]{
		manifests: make(map[string]object.Manifest[P]),
		subs:      make(map[int]*queue.Queue[Event[P]]),
		journal:   o.journal,
	}
}

// Kind returns the store's kind.
func (s *Store[P]) Kind() object.Kind {
	return object.KindOf[P]()
}

// Insert upserts m by name. It publishes Create if no entry existed under
// that name and Update otherwise. It fails only when the store is closed, the
// manifest is invalid, or the journal rejects the mutation.
func (s *Store[P]) Insert(m object.Manifest[P]) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.closedError()
	}

	m = m.Clone()
	change := Create
	if _, ok := s.manifests[m.Name()]; ok {
		change = Update
	}

	if err := s.record(Mutation{Change: change, Manifest: m}); err != nil {
		return err
	}

	s.manifests[m.Name()] = m
	s.publish(Event[P]{Change: change, Manifest: m.Clone()})

	return nil
}

// Patch replaces the manifest stored under m's name without publishing an
// event. Operators use it to store an admitted manifest without re-running
// the create/update classification. Patching a missing name is NOT_FOUND.
func (s *Store[P]) Patch(m object.Manifest[P]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.closedError()
	}

	if _, ok := s.manifests[m.Name()]; !ok {
		return object.NotFound(s.Kind(), m.Name(), "cannot patch, no manifest found")
	}

	m = m.Clone()
	if err := s.record(Mutation{Change: Update, Patch: true, Manifest: m}); err != nil {
		return err
	}

	s.manifests[m.Name()] = m
	return nil
}

// Remove deletes name and publishes Delete with the removed manifest.
// Removing a missing name is a no-op.
func (s *Store[P]) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.closedError()
	}

	removed, ok := s.manifests[name]
	if !ok {
		return nil
	}

	if err := s.record(Mutation{Change: Delete, Manifest: removed}); err != nil {
		return err
	}

	delete(s.manifests, name)
	s.publish(Event[P]{Change: Delete, Manifest: removed})

	return nil
}

// Get returns a copy of the manifest stored under name.
func (s *Store[P]) Get(name string) (object.Manifest[P], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.manifests[name]
	if !ok {
		return m, false
	}
	return m.Clone(), true
}

// List returns copies of all manifests, ordered by name.
func (s *Store[P]) List() []object.Manifest[P] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]object.Manifest[P], 0, len(s.manifests))
	for _, m := range s.manifests {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the stored names in order.
func (s *Store[P]) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.manifests))
	for name := range s.manifests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stored manifests.
func (s *Store[P]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.manifests)
}

// Events subscribes to the event stream. Subscribing to a closed store
// returns an already-closed subscription.
func (s *Store[P]) Events() *Subscription[P] {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := queue.New[Event[P]]()
	if s.closed {
		q.Close()
		return &Subscription[P]{q: q, cancel: func() {}}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = q

	return &Subscription[P]{
		q: q,
		cancel: func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			q.Close()
		},
	}
}

// Close rejects further mutations and closes every subscription. Events
// already queued remain readable. Close is idempotent.
func (s *Store[P]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for id, q := range s.subs {
		q.Close()
		delete(s.subs, id)
	}
}

// publish fans ev out to every subscriber. Caller holds s.mu.
func (s *Store[P]) publish(ev Event[P]) {
	for _, q := range s.subs {
		// A subscriber closed concurrently is skipped; its queue rejects the push.
		_ = q.Push(Event[P]{Change: ev.Change, Manifest: ev.Manifest.Clone()})
	}
}

// record forwards m to the journal. Caller holds s.mu.
func (s *Store[P]) record(m Mutation) error {
	if s.journal == nil {
		return nil
	}

	m.Kind = s.Kind()
	m.Name = m.Manifest.Name()
	if err := s.journal.Record(m); err != nil {
		return fmt.Errorf("journal %s %s/%s: %w", m.Change, m.Kind, m.Name, err)
	}
	return nil
}

func (s *Store[P]) closedError() error {
	return &object.Error{Code: object.ErrCodeClosed, Message: "store closed", Kind: s.Kind()}
}
