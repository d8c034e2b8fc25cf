package odm

import (
	"context"
	"fmt"
	"strings"
)

// VirtualSetter receives a hydrated value for a key that is not a schema field.
type VirtualSetter func(d *Document, value any)

// Hooks are lifecycle callbacks run by Store. Any hook returning an error
// aborts the operation.
type Hooks struct {
	PreValidate  func(ctx context.Context, d *Document) error
	PostValidate func(ctx context.Context, d *Document) error
	PreSave      func(ctx context.Context, d *Document) error
	PostSave     func(ctx context.Context, d *Document) error
	PreDelete    func(ctx context.Context, d *Document) error
	PostDelete   func(ctx context.Context, d *Document) error
}

// DocumentType is a declared document or embedded-document class. It is a
// Type, so it can be used directly in other declarations.
type DocumentType struct {
	name       string
	collection string
	embedded   bool
	schema     *Schema
	virtuals   map[string]VirtualSetter
	hooks      Hooks
}

// TypeOption configures a DocumentType at declaration time.
type TypeOption func(*DocumentType)

// WithCollection overrides the backend collection name.
func WithCollection(name string) TypeOption {
	return func(dt *DocumentType) {
		dt.collection = name
	}
}

// WithVirtual registers a setter consulted during hydration for a key that
// is not a schema field.
func WithVirtual(name string, set VirtualSetter) TypeOption {
	return func(dt *DocumentType) {
		dt.virtuals[name] = set
	}
}

// WithHooks attaches lifecycle hooks.
func WithHooks(h Hooks) TypeOption {
	return func(dt *DocumentType) {
		dt.hooks = h
	}
}

// NewDocumentType declares a persisted document type. The schema is built
// once here and never changes afterwards.
func NewDocumentType(name string, fields Fields, opts ...TypeOption) (*DocumentType, error) {
	return newType(name, fields, false, opts)
}

// NewEmbeddedType declares an embedded document type: no identity, no collection.
func NewEmbeddedType(name string, fields Fields, opts ...TypeOption) (*DocumentType, error) {
	return newType(name, fields, true, opts)
}

// MustDocument declares and registers a document type, panicking on error.
// It is intended for package-level declarations.
func MustDocument(name string, fields Fields, opts ...TypeOption) *DocumentType {
	dt, err := NewDocumentType(name, fields, opts...)
	if err != nil {
		panic(err)
	}
	MustRegister(dt)
	return dt
}

// MustEmbedded declares and registers an embedded type, panicking on error.
func MustEmbedded(name string, fields Fields, opts ...TypeOption) *DocumentType {
	dt, err := NewEmbeddedType(name, fields, opts...)
	if err != nil {
		panic(err)
	}
	MustRegister(dt)
	return dt
}

func newType(name string, fields Fields, embedded bool, opts []TypeOption) (*DocumentType, error) {
	if name == "" {
		return nil, &ConfigurationError{Message: "document type name must not be empty"}
	}
	schema, err := buildSchema(name, fields, embedded)
	if err != nil {
		return nil, err
	}
	dt := &DocumentType{
		name:     name,
		embedded: embedded,
		schema:   schema,
		virtuals: make(map[string]VirtualSetter),
	}
	if !embedded {
		dt.collection = defaultCollection(name)
	}
	for _, opt := range opts {
		opt(dt)
	}
	for v := range dt.virtuals {
		if schema.Has(v) {
			return nil, &ConfigurationError{TypeName: name, Field: v, Message: "virtual setter shadows a schema field"}
		}
	}
	return dt, nil
}

// defaultCollection derives "people"-style names: lower-case plus "s".
func defaultCollection(name string) string {
	return strings.ToLower(name) + "s"
}

// Kind returns KindEmbedded for embedded types and KindDocument otherwise.
func (dt *DocumentType) Kind() Kind {
	if dt.embedded {
		return KindEmbedded
	}
	return KindDocument
}

// Name returns the declared type name.
func (dt *DocumentType) Name() string { return dt.name }

// Collection returns the backend collection name (empty for embedded types).
func (dt *DocumentType) Collection() string { return dt.collection }

// IsEmbedded reports whether the type is an embedded document type.
func (dt *DocumentType) IsEmbedded() bool { return dt.embedded }

// Schema returns the type's immutable schema.
func (dt *DocumentType) Schema() *Schema { return dt.schema }

// Hooks returns the lifecycle hooks.
func (dt *DocumentType) Hooks() Hooks { return dt.hooks }

// New returns a fresh, schema-initialized instance with defaults applied.
func (dt *DocumentType) New() *Document {
	d := &Document{dt: dt, values: make(map[string]any, len(dt.schema.order))}
	for _, name := range dt.schema.order {
		if name == IDField {
			continue
		}
		d.values[name] = dt.schema.fields[name].DefaultValue()
	}
	return d
}

// label is used as the owner prefix in validation messages.
func (dt *DocumentType) label() string {
	if dt.collection != "" {
		return dt.collection
	}
	return dt.name
}

// String implements fmt.Stringer.
func (dt *DocumentType) String() string {
	return fmt.Sprintf("%s(%s)", dt.Kind(), dt.name)
}
