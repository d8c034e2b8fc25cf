// Package odm normalizes field declarations into canonical schema entries.
package odm

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/CaliLuke/go-docmap/filter"
)

// IDField is the backend identity key in a document's value store.
const IDField = filter.IDField

// idAlias is the accessor name aliased to IDField.
const idAlias = "id"

// Fields declares a document type's fields. Each value is a declaration
// accepted by Normalize: a bare Type, a one-element slice for arrays, a Field,
// a map with a "type" key, or an already normalized FieldSpec.
type Fields map[string]any

// Field is the long form of a field declaration.
type Field struct {
	// Type is a Type, or a one-element slice declaring an array.
	Type any
	// Default is a literal value or a func() any invoked per instance.
	Default any
	// Min and Max bound numbers, strings and dates.
	Min any
	Max any
	// Choices enumerates the allowed values.
	Choices []any
	// Match is a pattern string or *regexp.Regexp for string values.
	Match any
	// Required rejects nil and empty values.
	Required bool
	// Unique requests a unique index from the adapter.
	Unique bool
}

// FieldSpec is the canonical, normalized schema entry of one field.
type FieldSpec struct {
	Type     Type
	Default  any
	Min      any
	Max      any
	Choices  []any
	Match    *regexp.Regexp
	Required bool
	Unique   bool
}

// HasDefault reports whether the field declares a default.
func (f FieldSpec) HasDefault() bool {
	return f.Default != nil
}

// DefaultValue computes the default: function defaults are invoked and
// literal slices and maps are copied so instances never share them.
func (f FieldSpec) DefaultValue() any {
	switch d := f.Default.(type) {
	case nil:
		if f.Type != nil && f.Type.Kind() == KindArray {
			return []any{}
		}
		return nil
	case func() any:
		return d()
	}
	return copyValue(f.Default)
}

// Normalize converts a field declaration into a FieldSpec. Normalizing an
// already normalized entry returns an equivalent entry.
func Normalize(decl any) (FieldSpec, error) {
	switch d := decl.(type) {
	case FieldSpec:
		t, err := normalizeType(d.Type)
		if err != nil {
			return FieldSpec{}, err
		}
		d.Type = t
		return d, nil
	case *FieldSpec:
		if d == nil {
			return FieldSpec{}, unsupported(decl)
		}
		return Normalize(*d)
	case Field:
		return normalizeField(d)
	case *Field:
		if d == nil {
			return FieldSpec{}, unsupported(decl)
		}
		return normalizeField(*d)
	case map[string]any:
		if _, ok := d["type"]; !ok {
			return FieldSpec{}, unsupported(decl)
		}
		f, err := fieldFromMap(d)
		if err != nil {
			return FieldSpec{}, err
		}
		return normalizeField(f)
	}
	t, err := normalizeType(decl)
	if err != nil {
		return FieldSpec{}, err
	}
	return FieldSpec{Type: t}, nil
}

func normalizeField(f Field) (FieldSpec, error) {
	t, err := normalizeType(f.Type)
	if err != nil {
		return FieldSpec{}, err
	}
	spec := FieldSpec{
		Type:     t,
		Default:  f.Default,
		Min:      f.Min,
		Max:      f.Max,
		Choices:  f.Choices,
		Required: f.Required,
		Unique:   f.Unique,
	}
	switch m := f.Match.(type) {
	case nil:
	case *regexp.Regexp:
		spec.Match = m
	case string:
		re, err := regexp.Compile(m)
		if err != nil {
			return FieldSpec{}, &ConfigurationError{Message: fmt.Sprintf("invalid match pattern %q: %v", m, err)}
		}
		spec.Match = re
	default:
		return FieldSpec{}, &ConfigurationError{Message: fmt.Sprintf("match must be a string or *regexp.Regexp, got %#v", f.Match)}
	}
	return spec, nil
}

func fieldFromMap(m map[string]any) (Field, error) {
	f := Field{
		Type:    m["type"],
		Default: m["default"],
		Min:     m["min"],
		Max:     m["max"],
		Match:   m["match"],
	}
	if c, ok := m["choices"]; ok && c != nil {
		choices, ok := filter.ToSlice(c)
		if !ok {
			return Field{}, &ConfigurationError{Message: fmt.Sprintf("choices must be a list, got %#v", c)}
		}
		f.Choices = choices
	}
	f.Required, _ = m["required"].(bool)
	f.Unique, _ = m["unique"].(bool)
	return f, nil
}

func normalizeType(decl any) (Type, error) {
	switch d := decl.(type) {
	case nil:
		return nil, unsupported(decl)
	case *Array:
		if d == nil || d.Elem == nil {
			return nil, unsupported(decl)
		}
		return d, nil
	case *DocumentType:
		if d == nil {
			return nil, unsupported(decl)
		}
		return d, nil
	case Type:
		return d, nil
	case []Type:
		if len(d) != 1 {
			return nil, arrayArity(len(d))
		}
		elem, err := normalizeType(d[0])
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	case []any:
		if len(d) != 1 {
			return nil, arrayArity(len(d))
		}
		elem, err := normalizeType(d[0])
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	}
	return nil, unsupported(decl)
}

func unsupported(decl any) error {
	return &ConfigurationError{
		Message: fmt.Sprintf("unsupported type or bad variable, got %#v", decl),
	}
}

func arrayArity(n int) error {
	return &ConfigurationError{
		Message: fmt.Sprintf("array declarations take exactly one element type, got %d", n),
	}
}

// Schema is the immutable, per-type mapping from field name to FieldSpec.
type Schema struct {
	fields    map[string]FieldSpec
	order     []string
	accessors map[string]accessor
}

func buildSchema(typeName string, fields Fields, embedded bool) (*Schema, error) {
	s := &Schema{fields: make(map[string]FieldSpec, len(fields)+1)}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	if !embedded {
		s.fields[IDField] = FieldSpec{Type: ID}
		s.order = append(s.order, IDField)
	}
	for _, name := range names {
		if name == "" || strings.HasPrefix(name, "_") || name == idAlias {
			return nil, &ConfigurationError{TypeName: typeName, Field: name, Message: "field name is reserved"}
		}
		spec, err := Normalize(fields[name])
		if err != nil {
			var ce *ConfigurationError
			if errors.As(err, &ce) {
				ce.TypeName, ce.Field = typeName, name
			}
			return nil, err
		}
		s.fields[name] = spec
		s.order = append(s.order, name)
	}
	s.accessors = buildAccessors(s, embedded)
	return s, nil
}

// Field returns the schema entry for name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Has reports whether name is a schema field (the identity field included).
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Names returns the field names in schema order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// References returns the fields whose declared type is a document type or an
// array of one.
func (s *Schema) References() []string {
	var out []string
	for _, name := range s.order {
		if elemType(s.fields[name].Type).Kind() == KindDocument && name != IDField {
			out = append(out, name)
		}
	}
	return out
}
