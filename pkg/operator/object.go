package operator

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/steady/pkg/object"
)

// State is an object's runtime state, shared between the operator's record
// and the reconcile task that may be running for it. Only a reconcile task
// writes it, holding the write lock for the whole reconcile.
type State[S any] struct {
	mu    sync.RWMutex
	value S
}

// Read calls fn with the state under the read lock. fn must not retain
// references into the state.
func (s *State[S]) Read(fn func(S)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.value)
}

// Snapshot returns a shallow copy of the state, taken under the read lock.
// Maps, slices and pointers in the copy still alias the live state, which a
// running reconcile may be writing. Inspect those through Read.
func (s *State[S]) Snapshot() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// write runs fn with exclusive access to the state.
func (s *State[S]) write(fn func(*S)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.value)
}

// Object is the runtime record of a live object.
type Object[P object.Props, S any] struct {
	id       object.ID
	manifest atomic.Pointer[object.Manifest[P]]
	state    *State[S]
}

func newObject[P object.Props, S any](id object.ID, m object.Manifest[P], state S) *Object[P, S] {
	o := &Object[P, S]{
		id:    id,
		state: &State[S]{value: state},
	}
	o.setManifest(m)
	return o
}

// ID returns the object's runtime identity.
func (o *Object[P, S]) ID() object.ID {
	return o.id
}

// Name returns the object's name.
func (o *Object[P, S]) Name() string {
	return o.manifest.Load().Name()
}

// Manifest returns a copy of the latest admitted manifest.
func (o *Object[P, S]) Manifest() object.Manifest[P] {
	return o.manifest.Load().Clone()
}

// State returns the shared runtime state.
func (o *Object[P, S]) State() *State[S] {
	return o.state
}

func (o *Object[P, S]) setManifest(m object.Manifest[P]) {
	m = m.Clone()
	o.manifest.Store(&m)
}

// objects is the operator's live object table, indexed by name and by id.
type objects[P object.Props, S any] struct {
	mu     sync.RWMutex
	byName map[string]*Object[P, S]
	byID   map[object.ID]string
}

func newObjects[P object.Props, S any]() *objects[P, S] {
	return &objects[P, S]{
		byName: make(map[string]*Object[P, S]),
		byID:   make(map[object.ID]string),
	}
}

// insert indexes obj, returning the record it replaced, if any.
func (t *objects[P, S]) insert(obj *Object[P, S]) (*Object[P, S], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := obj.Name()
	prev, ok := t.byName[name]
	if ok {
		delete(t.byID, prev.id)
	}
	t.byName[name] = obj
	t.byID[obj.id] = name
	return prev, ok
}

func (t *objects[P, S]) get(name string) (*Object[P, S], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	obj, ok := t.byName[name]
	return obj, ok
}

func (t *objects[P, S]) getByID(id object.ID) (*Object[P, S], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	obj, ok := t.byName[name]
	return obj, ok
}

func (t *objects[P, S]) remove(name string) (*Object[P, S], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	obj, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	delete(t.byName, name)
	delete(t.byID, obj.id)
	return obj, true
}

func (t *objects[P, S]) names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.byName))
	for name := range t.byName {
		names = append(names, name)
	}
	return names
}

func (t *objects[P, S]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byName)
}
