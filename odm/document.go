package odm

import (
	"fmt"
	"reflect"
	"time"

	"github.com/CaliLuke/go-docmap/filter"
)

// Document is an instance of a DocumentType: an identity (documents only)
// plus a value store keyed by field name. Embedded documents share the same
// representation but never carry an identity.
//
// A Document is not safe for concurrent mutation.
type Document struct {
	dt     *DocumentType
	values map[string]any
}

// Type returns the document's declared type.
func (d *Document) Type() *DocumentType { return d.dt }

// IsEmbedded reports whether the document is an embedded document.
func (d *Document) IsEmbedded() bool { return d.dt.embedded }

// ID returns the backend identity, or nil before the first save.
func (d *Document) ID() any {
	return d.values[IDField]
}

// SetID assigns the backend identity. It is a no-op on embedded documents.
func (d *Document) SetID(id any) {
	if d.dt.embedded {
		return
	}
	d.values[IDField] = id
}

// IsNew reports whether the document has never been saved.
func (d *Document) IsNew() bool {
	return d.ID() == nil
}

// String returns a string field's value, or "".
func (d *Document) String(name string) string {
	s, _ := d.Get(name).(string)
	return s
}

// Number returns a numeric field widened to float64, or 0.
func (d *Document) Number(name string) float64 {
	f, _ := filter.ToFloat64(d.Get(name))
	return f
}

// Bool returns a boolean field's value, or false.
func (d *Document) Bool(name string) bool {
	b, _ := d.Get(name).(bool)
	return b
}

// Time returns a date field's value. Numeric values are read as epoch
// milliseconds, as Canonicalize would convert them.
func (d *Document) Time(name string) time.Time {
	switch v := d.Get(name).(type) {
	case time.Time:
		return v
	default:
		if ms, ok := filter.ToFloat64(v); ok {
			return time.UnixMilli(int64(ms)).UTC()
		}
	}
	return time.Time{}
}

// Embedded returns an embedded document field, or nil.
func (d *Document) Embedded(name string) *Document {
	e, _ := d.Get(name).(*Document)
	return e
}

// Array returns an array field's elements, or nil.
func (d *Document) Array(name string) []any {
	s, _ := filter.ToSlice(d.Get(name))
	return s
}

// Reference returns a populated single reference, or nil when the field
// still holds a foreign identifier.
func (d *Document) Reference(name string) *Document {
	r, _ := d.Get(name).(*Document)
	return r
}

// References returns the populated documents of an array field.
func (d *Document) References(name string) []*Document {
	var out []*Document
	for _, e := range d.Array(name) {
		if r, ok := e.(*Document); ok {
			out = append(out, r)
		}
	}
	return out
}

// Push appends values to an array field. It reports false when name is not
// an array field of the schema.
func (d *Document) Push(name string, values ...any) bool {
	spec, ok := d.dt.schema.fields[name]
	if !ok || spec.Type.Kind() != KindArray {
		return false
	}
	cur := d.Array(name)
	d.values[name] = append(cur, values...)
	return true
}

// Values returns a shallow copy of the value store.
func (d *Document) Values() map[string]any {
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// ToData converts the document to a plain record: embedded documents become
// nested records and populated references collapse back to their ids.
func (d *Document) ToData() (map[string]any, error) {
	out := make(map[string]any, len(d.values))
	for _, name := range d.dt.schema.order {
		v, ok := d.values[name]
		if !ok {
			continue
		}
		if name == IDField {
			if v != nil {
				out[IDField] = v
			}
			continue
		}
		data, err := toDataValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.dt.name, name, err)
		}
		out[name] = data
	}
	return out, nil
}

func toDataValue(v any) (any, error) {
	switch tv := v.(type) {
	case *Document:
		if tv.dt.embedded {
			return tv.ToData()
		}
		if tv.ID() == nil {
			return nil, fmt.Errorf("referenced %s has not been saved", tv.dt.name)
		}
		return tv.ID(), nil
	}
	elems, ok := filter.ToSlice(v)
	if !ok {
		return v, nil
	}
	out := make([]any, len(elems))
	for i, e := range elems {
		data, err := toDataValue(e)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = data
	}
	return out, nil
}

// copyValue copies slices and string-keyed maps one level deep so literal
// defaults are never shared between instances.
func copyValue(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		cp := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), iter.Value())
		}
		return cp.Interface()
	}
	return v
}
