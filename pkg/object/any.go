package object

import "fmt"

// AnyManifest is a manifest of any kind. Only Manifest[P] implements it.
type AnyManifest interface {
	Kind() Kind
	Name() string
	Ref() Ref

	anyManifest()
}

func (Manifest[P]) anyManifest() {}

// As recovers the concrete manifest behind m. The result is a clone, so the
// caller owns it. A manifest of any other type yields a TYPE_MISMATCH error.
func As[P Props](m AnyManifest) (Manifest[P], error) {
	switch v := m.(type) {
	case Manifest[P]:
		return v.Clone(), nil
	case *Manifest[P]:
		if v != nil {
			return v.Clone(), nil
		}
	}

	var zero Manifest[P]
	if m == nil {
		return zero, &Error{
			Code:    ErrCodeTypeMismatch,
			Message: fmt.Sprintf("cannot recover nil manifest as %T", zero),
			Kind:    KindOf[P](),
		}
	}
	return zero, &Error{
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("cannot recover %T as %T", m, zero),
		Kind:    m.Kind(),
		Name:    m.Name(),
	}
}
