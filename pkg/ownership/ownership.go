// Package ownership records which objects were created on behalf of an
// owner, so that removing the owner can cascade to what it owns.
//
// Edges are keyed by the owner's object.Ref. An object may have several
// owners; only a repeated (owner, owned) pair is rejected. A reverse index
// (owned -> owners) lets the engine detach an object from every owner when
// the object itself is removed, so an owner can re-create it later.
package ownership

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/steady/pkg/object"
)

// Edge is one ownership relation.
type Edge struct {
	Owner object.Ref `json:"owner"`
	Owned object.Ref `json:"owned"`
}

type refSet map[object.Ref]struct{}

// Owners is the ownership index. It is safe for concurrent use.
type Owners struct {
	mu      sync.Mutex
	owned   map[object.Ref]refSet // owner -> owned
	ownedBy map[object.Ref]refSet // owned -> owners
	edges   int
}

// New creates an empty index.
func New() *Owners {
	return &Owners{
		owned:   make(map[object.Ref]refSet),
		ownedBy: make(map[object.Ref]refSet),
	}
}

// Own registers owner -> owned. It fails with SELF_OWNERSHIP when owner and
// owned are the same object, and with ALREADY_OWNED when owner already owns
// owned. Other owners of owned do not matter. A failed call changes nothing.
func (o *Owners) Own(owner, owned object.Ref) error {
	if owner == owned {
		return &object.Error{
			Code:    object.ErrCodeSelfOwnership,
			Message: "an object cannot own itself",
			Kind:    owned.Kind,
			Name:    owned.Name,
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.owned[owner][owned]; ok {
		return &object.Error{
			Code:    object.ErrCodeAlreadyOwned,
			Message: fmt.Sprintf("%s already owns it", owner),
			Kind:    owned.Kind,
			Name:    owned.Name,
		}
	}

	add(o.owned, owner, owned)
	add(o.ownedBy, owned, owner)
	o.edges++
	return nil
}

// Release removes the single edge owner -> owned and reports whether it
// existed.
func (o *Owners) Release(owner, owned object.Ref) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !drop(o.owned, owner, owned) {
		return false
	}
	drop(o.ownedBy, owned, owner)
	o.edges--
	return true
}

// RemoveOwner detaches and returns every edge of owner, ordered by kind then
// name. It returns nil when owner owns nothing.
func (o *Owners) RemoveOwner(owner object.Ref) []object.Ref {
	o.mu.Lock()
	defer o.mu.Unlock()

	set, ok := o.owned[owner]
	if !ok {
		return nil
	}
	delete(o.owned, owner)

	refs := sorted(set)
	for _, ref := range refs {
		drop(o.ownedBy, ref, owner)
	}
	o.edges -= len(refs)
	return refs
}

// Disown detaches owned from all of its owners and returns them, ordered by
// kind then name.
func (o *Owners) Disown(owned object.Ref) []object.Ref {
	o.mu.Lock()
	defer o.mu.Unlock()

	set, ok := o.ownedBy[owned]
	if !ok {
		return nil
	}
	delete(o.ownedBy, owned)

	owners := sorted(set)
	for _, owner := range owners {
		drop(o.owned, owner, owned)
	}
	o.edges -= len(owners)
	return owners
}

// Owned returns what owner owns, ordered by kind then name.
func (o *Owners) Owned(owner object.Ref) []object.Ref {
	o.mu.Lock()
	defer o.mu.Unlock()
	return sorted(o.owned[owner])
}

// OwnersOf returns the owners of owned, ordered by kind then name.
func (o *Owners) OwnersOf(owned object.Ref) []object.Ref {
	o.mu.Lock()
	defer o.mu.Unlock()
	return sorted(o.ownedBy[owned])
}

// Edges returns every edge, ordered by owner then owned.
func (o *Owners) Edges() []Edge {
	o.mu.Lock()
	defer o.mu.Unlock()

	edges := make([]Edge, 0, o.edges)
	for owner, set := range o.owned {
		for owned := range set {
			edges = append(edges, Edge{Owner: owner, Owned: owned})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Owner != edges[j].Owner {
			return less(edges[i].Owner, edges[j].Owner)
		}
		return less(edges[i].Owned, edges[j].Owned)
	})
	return edges
}

// Len returns the number of edges.
func (o *Owners) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.edges
}

func add(index map[object.Ref]refSet, key, ref object.Ref) {
	set, ok := index[key]
	if !ok {
		set = make(refSet)
		index[key] = set
	}
	set[ref] = struct{}{}
}

// drop removes ref from index[key], deleting the set once it is empty.
func drop(index map[object.Ref]refSet, key, ref object.Ref) bool {
	set, ok := index[key]
	if !ok {
		return false
	}
	if _, ok := set[ref]; !ok {
		return false
	}
	delete(set, ref)
	if len(set) == 0 {
		delete(index, key)
	}
	return true
}

func sorted(set refSet) []object.Ref {
	refs := make([]object.Ref, 0, len(set))
	for ref := range set {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return less(refs[i], refs[j]) })
	return refs
}

func less(a, b object.Ref) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Name < b.Name
}
