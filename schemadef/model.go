// Package schemadef parses the textual schema language and turns it into
// registered document types or generated Go declarations.
package schemadef

// ParsedSchema holds every type declared in a schema file, in source order.
type ParsedSchema struct {
	// Types lists document and embedded type declarations.
	Types []TypeSpec
}

// TypeSpec describes one document or embedded type declaration.
type TypeSpec struct {
	// Name is the declared type name.
	Name string
	// Embedded is true for `embedded` declarations.
	Embedded bool
	// Collection overrides the default collection name (documents only).
	Collection string
	// Fields lists the declared fields in source order.
	Fields []FieldSpec
}

// FieldSpec describes a single field declaration.
type FieldSpec struct {
	// Name is the field name.
	Name string
	// TypeName is a scalar name (String, Number, ...) or a declared type name.
	TypeName string
	// Array is true for `[T]` declarations.
	Array bool
	// Default, Min and Max hold literal values: string, float64 or bool.
	Default any
	Min     any
	Max     any
	// Choices enumerates the allowed literal values.
	Choices []any
	// Match is a regular expression the value must match.
	Match    string
	Required bool
	Unique   bool
}

// Type looks up a declared type by name.
func (s *ParsedSchema) Type(name string) (TypeSpec, bool) {
	for _, t := range s.Types {
		if t.Name == name {
			return t, true
		}
	}
	return TypeSpec{}, false
}
