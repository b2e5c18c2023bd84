package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/steady/pkg/object"
)

// AnyStore is the kind-agnostic face of a Store[P]. The engine keeps one map
// of AnyStore keyed by kind and routes boxed manifests through it.
type AnyStore interface {
	Kind() object.Kind

	// InsertAny recovers m as the store's manifest type and inserts it.
	InsertAny(m object.AnyManifest) error

	// Remove deletes name; removing a missing name is a no-op.
	Remove(name string) error

	// Decode parses a JSON manifest ({"meta":{...},"props":{...}}) into the
	// store's manifest type, boxed.
	Decode(data []byte) (object.AnyManifest, error)

	// Has reports whether name is stored.
	Has(name string) bool

	// Names returns the stored names in order.
	Names() []string

	// Close closes the store and its subscriptions.
	Close()
}

var _ AnyStore = (*Store[object.Props])(nil)

// InsertAny implements AnyStore.
func (s *Store[P]) InsertAny(m object.AnyManifest) error {
	typed, err := object.As[P](m)
	if err != nil {
		return err
	}
	return s.Insert(typed)
}

// Decode implements AnyStore.
func (s *Store[P]) Decode(data []byte) (object.AnyManifest, error) {
	var m object.Manifest[P]
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &object.Error{
			Code:    object.ErrCodeInvalidManifest,
			Message: "decode manifest",
			Kind:    s.Kind(),
			Err:     err,
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Has implements AnyStore.
func (s *Store[P]) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.manifests[name]
	return ok
}

// Typed recovers the concrete store behind s. A mismatch is an internal
// consistency bug and is reported as TYPE_MISMATCH, never ignored.
func Typed[P object.Props](s AnyStore) (*Store[P], error) {
	typed, ok := s.(*Store[P])
	if !ok {
		var want *Store[P]
		kind := object.KindOf[P]()
		if s != nil {
			kind = s.Kind()
		}
		return nil, &object.Error{
			Code:    object.ErrCodeTypeMismatch,
			Message: fmt.Sprintf("cannot downcast %T to %T", s, want),
			Kind:    kind,
		}
	}
	return typed, nil
}
