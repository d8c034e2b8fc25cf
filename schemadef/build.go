package schemadef

import (
	"fmt"
	"time"

	"github.com/CaliLuke/go-docmap/odm"
)

// Scalars maps scalar names usable in schema files to their markers.
var Scalars = map[string]odm.Type{
	"String":  odm.String,
	"Number":  odm.Number,
	"Boolean": odm.Boolean,
	"Date":    odm.Date,
	"Object":  odm.Object,
	"Any":     odm.Any,
	"ID":      odm.ID,
}

// Build declares and registers every type of schema. Field types naming
// other declared (or already registered) types become references, which
// resolve lazily so declaration order does not matter.
func Build(schema *ParsedSchema) (map[string]*odm.DocumentType, error) {
	out := make(map[string]*odm.DocumentType, len(schema.Types))
	for _, ts := range schema.Types {
		fields := make(odm.Fields, len(ts.Fields))
		for _, fs := range ts.Fields {
			field, err := buildField(schema, ts.Name, fs)
			if err != nil {
				return nil, err
			}
			fields[fs.Name] = field
		}

		var opts []odm.TypeOption
		if ts.Collection != "" {
			opts = append(opts, odm.WithCollection(ts.Collection))
		}
		var (
			dt  *odm.DocumentType
			err error
		)
		if ts.Embedded {
			dt, err = odm.NewEmbeddedType(ts.Name, fields, opts...)
		} else {
			dt, err = odm.NewDocumentType(ts.Name, fields, opts...)
		}
		if err != nil {
			return nil, err
		}
		if err := odm.Register(dt); err != nil {
			return nil, &odm.ConfigurationError{TypeName: ts.Name, Message: err.Error()}
		}
		out[ts.Name] = dt
	}
	return out, nil
}

func buildField(schema *ParsedSchema, typeName string, fs FieldSpec) (odm.Field, error) {
	t, err := resolveType(schema, fs.TypeName)
	if err != nil {
		return odm.Field{}, &odm.ConfigurationError{TypeName: typeName, Field: fs.Name, Message: err.Error()}
	}
	field := odm.Field{Type: t, Required: fs.Required, Unique: fs.Unique}
	if fs.Array {
		field.Type = []odm.Type{t}
	}
	if fs.Match != "" {
		field.Match = fs.Match
	}

	conv := func(v any) (any, error) { return literalFor(t, v) }
	if field.Default, err = conv(fs.Default); err != nil {
		return field, &odm.ConfigurationError{TypeName: typeName, Field: fs.Name, Message: err.Error()}
	}
	if field.Min, err = conv(fs.Min); err != nil {
		return field, &odm.ConfigurationError{TypeName: typeName, Field: fs.Name, Message: err.Error()}
	}
	if field.Max, err = conv(fs.Max); err != nil {
		return field, &odm.ConfigurationError{TypeName: typeName, Field: fs.Name, Message: err.Error()}
	}
	for _, c := range fs.Choices {
		v, err := conv(c)
		if err != nil {
			return field, &odm.ConfigurationError{TypeName: typeName, Field: fs.Name, Message: err.Error()}
		}
		field.Choices = append(field.Choices, v)
	}
	return field, nil
}

func resolveType(schema *ParsedSchema, name string) (odm.Type, error) {
	if t, ok := Scalars[name]; ok {
		return t, nil
	}
	if _, ok := schema.Type(name); ok {
		return odm.Ref(name), nil
	}
	if _, ok := odm.Lookup(name); ok {
		return odm.Ref(name), nil
	}
	return nil, fmt.Errorf("unknown type %s", name)
}

// literalFor converts a parsed literal to the field's scalar: Date literals
// are RFC 3339 strings or epoch milliseconds.
func literalFor(t odm.Type, v any) (any, error) {
	if v == nil || t != odm.Date {
		return v, nil
	}
	switch tv := v.(type) {
	case string:
		at, err := time.Parse(time.RFC3339Nano, tv)
		if err != nil {
			return nil, fmt.Errorf("bad date literal %q: %w", tv, err)
		}
		return at.UTC(), nil
	case float64:
		return time.UnixMilli(int64(tv)).UTC(), nil
	}
	return nil, fmt.Errorf("bad date literal %v", v)
}
