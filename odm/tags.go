// Package odm provides parsing and representation of 'odm' struct tags.
package odm

import (
	"fmt"
	"strings"
)

// FieldTag is the parsed form of an `odm` struct tag, for example
// `odm:"age,required,min=0,max=130"`.
type FieldTag struct {
	// Name is the schema field name. "id" binds the document identity.
	Name     string
	Required bool
	Unique   bool
	// Min, Max and Default are kept as text and converted once the field's
	// schema type is known.
	Min     string
	Max     string
	Default string
	// Choices are the allowed values, written as a|b|c.
	Choices []string
	// Match is a regular expression a string value must satisfy.
	Match string
	// Ref names a registered document type the field refers to.
	Ref string
	// Embed names a registered embedded type the field holds.
	Embed string
	// Skip marks the field as not mapped (`odm:"-"`).
	Skip bool
}

// IsIdentity reports whether the tag binds the document identity.
func (ft FieldTag) IsIdentity() bool {
	return ft.Name == idAlias
}

// ParseTag parses the content of an `odm` struct tag. The first element is
// the field name unless it is an option.
func ParseTag(tag string) (FieldTag, error) {
	if tag == "" || tag == "-" {
		return FieldTag{Skip: tag == "-"}, nil
	}

	ft := FieldTag{}
	for i, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")

		switch {
		case part == "required":
			ft.Required = true
		case part == "unique":
			ft.Unique = true
		case part == "-":
			ft.Skip = true
		case hasValue && key == "min":
			ft.Min = value
		case hasValue && key == "max":
			ft.Max = value
		case hasValue && key == "default":
			ft.Default = value
		case hasValue && key == "choices":
			ft.Choices = strings.Split(value, "|")
		case hasValue && key == "match":
			ft.Match = value
		case hasValue && key == "ref":
			ft.Ref = value
		case hasValue && key == "embed":
			ft.Embed = value
		case i == 0 && !hasValue:
			ft.Name = part
		default:
			return FieldTag{}, fmt.Errorf("unknown tag option: %q", part)
		}
	}

	if ft.Ref != "" && ft.Embed != "" {
		return FieldTag{}, fmt.Errorf("tag %q sets both ref and embed", tag)
	}
	return ft, nil
}
