package odm

import (
	"fmt"
	"strings"
	"time"

	"github.com/CaliLuke/go-docmap/filter"
)

// Validate checks every stored value against the schema and returns the
// first violation as a *ValidationError. Embedded documents are validated
// recursively and their errors propagate unchanged.
//
// Per field the checks run in order: required, type, match, choices, min, max.
func (d *Document) Validate() error {
	for _, name := range d.dt.schema.order {
		v, ok := d.values[name]
		if !ok {
			continue
		}
		spec := d.dt.schema.fields[name]

		if nested, isDoc := v.(*Document); isDoc && nested.dt.embedded {
			if err := nested.Validate(); err != nil {
				return err
			}
			continue
		}

		if err := d.validateField(name, spec, v); err != nil {
			return err
		}
	}
	return nil
}

func (d *Document) validateField(name string, spec FieldSpec, v any) error {
	if spec.Required && isEmpty(v) {
		return d.invalid(name, "is required")
	}

	if !isValidType(v, spec.Type) {
		return d.invalid(name, fmt.Sprintf("should be %s, got %s", spec.Type.Name(), shapeOf(v)))
	}

	if spec.Type.Kind() == KindArray {
		for _, e := range arrayElems(v) {
			if nested, isDoc := e.(*Document); isDoc && nested.dt.embedded {
				if err := nested.Validate(); err != nil {
					return err
				}
			}
		}
	}

	if s, isString := v.(string); isString && spec.Match != nil && !spec.Match.MatchString(s) {
		return d.invalid(name, fmt.Sprintf("does not match the regex/string %s. Value was %s", spec.Match.String(), s))
	}

	if len(spec.Choices) > 0 && v != nil && !inChoices(spec.Choices, v) {
		return d.invalid(name, fmt.Sprintf("should be in [%s], got %s", joinValues(spec.Choices), filter.Render(v)))
	}

	if spec.Min != nil && v != nil {
		if c, ok := compareBound(v, spec.Min); ok && c < 0 {
			return d.invalid(name, fmt.Sprintf("is less than min, %s, got %s", filter.Render(spec.Min), filter.Render(v)))
		}
	}

	if spec.Max != nil && v != nil {
		if c, ok := compareBound(v, spec.Max); ok && c > 0 {
			return d.invalid(name, fmt.Sprintf("is greater than max, %s, got %s", filter.Render(spec.Max), filter.Render(v)))
		}
	}
	return nil
}

func (d *Document) invalid(field, msg string) *ValidationError {
	collection := d.dt.label()
	return &ValidationError{
		Collection: collection,
		Field:      field,
		Message:    fmt.Sprintf("Value assigned to %s.%s %s", collection, field, msg),
	}
}

// isValidType reports whether v satisfies t. nil satisfies every type.
func isValidType(v any, t Type) bool {
	if v == nil {
		return true
	}
	switch tt := t.(type) {
	case *Scalar:
		return tt.Accepts(v)
	case *Array:
		elems, ok := filter.ToSlice(v)
		if !ok {
			return false
		}
		for _, e := range elems {
			if !isValidType(e, tt.Elem) {
				return false
			}
		}
		return true
	}

	dt, ok := documentTypeOf(t)
	if !ok {
		return false
	}
	if doc, isDoc := v.(*Document); isDoc {
		return doc.dt == dt
	}
	if dt.embedded {
		return false
	}
	return isIdentifier(v)
}

// isIdentifier reports whether v can stand for a foreign identity before
// population: anything that is not a document, record or sequence.
func isIdentifier(v any) bool {
	if _, isMap := filter.ToMap(v); isMap {
		return false
	}
	if _, isSlice := filter.ToSlice(v); isSlice {
		return false
	}
	return true
}

// compareBound compares v with a min/max bound. Dates and their bounds may
// each be a time.Time or epoch milliseconds; mixed pairs compare as epochs.
func compareBound(v, bound any) (int, bool) {
	if t, ok := v.(time.Time); ok {
		if ms, isNum := filter.ToFloat64(bound); isNum {
			return filter.Compare(float64(t.UnixMilli()), ms)
		}
	}
	if bt, ok := bound.(time.Time); ok {
		if ms, isNum := filter.ToFloat64(v); isNum {
			return filter.Compare(ms, float64(bt.UnixMilli()))
		}
	}
	return filter.Compare(v, bound)
}

// validateID checks the identity against the backend's native id type.
func (d *Document) validateID(native *Scalar) error {
	id := d.ID()
	if id == nil || native == nil || native.Accepts(id) {
		return nil
	}
	return d.invalid(IDField, fmt.Sprintf("should be %s, got %s", native.Name(), shapeOf(id)))
}

func inChoices(choices []any, v any) bool {
	for _, c := range choices {
		if filter.Equal(c, v) {
			return true
		}
	}
	return false
}

func isEmpty(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return tv == ""
	}
	if s, ok := filter.ToSlice(v); ok {
		return len(s) == 0
	}
	return false
}

func arrayElems(v any) []any {
	s, _ := filter.ToSlice(v)
	return s
}

// shapeOf renders the runtime shape of v: arrays as a bracketed literal
// list, scalars by type name.
func shapeOf(v any) string {
	if s, ok := filter.ToSlice(v); ok {
		return filter.Render(s)
	}
	switch tv := v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case time.Time:
		return "date"
	case *Document:
		return tv.dt.name
	}
	if filter.IsNumber(v) {
		return "number"
	}
	if _, ok := filter.ToMap(v); ok {
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func joinValues(vs []any) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = filter.Render(v)
	}
	return strings.Join(parts, ", ")
}
