package object

import "fmt"

// Kind is the stable tag of a registered schema. It keys store and command
// routing, so it must be unique per props type.
type Kind string

// Props is implemented by the desired-state type of a kind.
//
// Kind must use a value receiver and must not depend on field values: it is
// called on the zero value to discover the kind of a type parameter.
type Props interface {
	Kind() Kind
}

// DeepCopier is optionally implemented by props holding references (slices,
// maps, pointers). Manifest.Clone uses it to keep value semantics.
type DeepCopier[P any] interface {
	DeepCopy() P
}

// KindOf returns the kind declared by P.
func KindOf[P Props]() Kind {
	var zero P
	return zero.Kind()
}

// Meta is the identifying metadata of a manifest. Name is the store key.
type Meta struct {
	Name string `json:"name" yaml:"name"`
}

// Ref names one object across kinds.
type Ref struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
}

// String returns "kind/name".
func (r Ref) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.Name)
}

// Manifest is the desired-state record for one object of kind P.
type Manifest[P Props] struct {
	Meta  Meta `json:"meta" yaml:"meta"`
	Props P    `json:"props" yaml:"props"`
}

// New builds a manifest named name.
func New[P Props](name string, props P) Manifest[P] {
	return Manifest[P]{Meta: Meta{Name: name}, Props: props}
}

// Kind returns the manifest's kind.
func (m Manifest[P]) Kind() Kind {
	return KindOf[P]()
}

// Name returns the manifest's name.
func (m Manifest[P]) Name() string {
	return m.Meta.Name
}

// Ref returns the manifest's cross-kind reference.
func (m Manifest[P]) Ref() Ref {
	return Ref{Kind: m.Kind(), Name: m.Meta.Name}
}

// Clone returns an independent copy. Props implementing DeepCopier are deep
// copied; otherwise the props value is copied as-is.
func (m Manifest[P]) Clone() Manifest[P] {
	if dc, ok := any(m.Props).(DeepCopier[P]); ok {
		return Manifest[P]{Meta: m.Meta, Props: dc.DeepCopy()}
	}
	return m
}

// Validate checks the manifest can be stored.
func (m Manifest[P]) Validate() error {
	if m.Meta.Name == "" {
		return &Error{
			Code:    ErrCodeInvalidManifest,
			Message: "manifest name is required",
			Kind:    m.Kind(),
		}
	}
	return nil
}

// String returns "kind/name".
func (m Manifest[P]) String() string {
	return m.Ref().String()
}
