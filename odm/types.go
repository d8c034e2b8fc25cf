// Package odm provides type markers for declaring document schemas.
package odm

import (
	"reflect"
	"time"

	"github.com/CaliLuke/go-docmap/filter"
)

// Kind classifies a field type. It is resolved once when a schema is built.
type Kind int

const (
	// KindScalar is a primitive value (string, number, boolean, date, ...).
	KindScalar Kind = iota
	// KindArray is an ordered sequence of a single element type.
	KindArray
	// KindDocument is a reference to another persisted document type.
	KindDocument
	// KindEmbedded is a nested document owned by its parent.
	KindEmbedded
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindDocument:
		return "document"
	case KindEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// Type is a field type marker usable in a schema declaration.
type Type interface {
	// Kind reports which variant the type is.
	Kind() Kind
	// Name is the display name used in error messages.
	Name() string
}

// Scalar is a primitive type marker.
type Scalar struct {
	name    string
	accepts func(v any) bool
}

// NewScalar creates a scalar type marker with a custom acceptance predicate.
// Adapters use it to describe their native identifier type.
func NewScalar(name string, accepts func(v any) bool) *Scalar {
	return &Scalar{name: name, accepts: accepts}
}

// Kind returns KindScalar.
func (s *Scalar) Kind() Kind { return KindScalar }

// Name returns the scalar's display name.
func (s *Scalar) Name() string { return s.name }

// Accepts reports whether v is a valid value for the scalar. nil is always accepted.
func (s *Scalar) Accepts(v any) bool {
	if v == nil {
		return true
	}
	return s.accepts(v)
}

var (
	// String accepts Go strings.
	String = NewScalar("String", func(v any) bool {
		_, ok := v.(string)
		return ok
	})
	// Number accepts any Go integer or floating point value.
	Number = NewScalar("Number", filter.IsNumber)
	// Boolean accepts Go bools.
	Boolean = NewScalar("Boolean", func(v any) bool {
		_, ok := v.(bool)
		return ok
	})
	// Date accepts time.Time and numeric epoch milliseconds.
	Date = NewScalar("Date", func(v any) bool {
		if _, ok := v.(time.Time); ok {
			return true
		}
		return filter.IsNumber(v)
	})
	// Object accepts maps keyed by strings.
	Object = NewScalar("Object", func(v any) bool {
		rv := reflect.ValueOf(v)
		return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
	})
	// Any accepts every value.
	Any = NewScalar("Any", func(any) bool { return true })
	// ID types the identity field. Backend-specific checks belong to the adapter.
	ID = NewScalar("ID", func(v any) bool {
		_, isDoc := v.(*Document)
		return !isDoc
	})
)

// Array is the array-of-type marker.
type Array struct {
	Elem Type
}

// ArrayOf returns an array marker for the element type.
func ArrayOf(elem Type) *Array {
	return &Array{Elem: elem}
}

// Kind returns KindArray.
func (a *Array) Kind() Kind { return KindArray }

// Name renders the array type as [T].
func (a *Array) Name() string {
	return "[" + a.Elem.Name() + "]"
}

// Ref is a lazily resolved reference to a registered document type. It allows
// self references and references to types declared later.
type Ref string

// Kind reports the kind of the referenced type, or KindDocument when it is not
// registered yet. The kind is resolved once, when the target is first found.
func (r Ref) Kind() Kind {
	k, _ := refKind(string(r))
	return k
}

// Name returns the referenced type name.
func (r Ref) Name() string { return string(r) }

// Resolve looks up the referenced type in the registry.
func (r Ref) Resolve() (*DocumentType, error) {
	dt, ok := Lookup(string(r))
	if !ok {
		return nil, &NotRegisteredError{TypeName: string(r)}
	}
	return dt, nil
}

// documentTypeOf returns the document type behind t, resolving references.
func documentTypeOf(t Type) (*DocumentType, bool) {
	switch tt := t.(type) {
	case *DocumentType:
		return tt, true
	case Ref:
		dt, err := tt.Resolve()
		if err != nil {
			return nil, false
		}
		return dt, true
	}
	return nil, false
}

// elemType returns the element type of an array marker or t itself.
func elemType(t Type) Type {
	if a, ok := t.(*Array); ok {
		return a.Elem
	}
	return t
}
