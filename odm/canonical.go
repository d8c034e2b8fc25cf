package odm

import (
	"time"

	"github.com/CaliLuke/go-docmap/filter"
)

// Canonicalize normalizes value shapes in place: numeric values of Date
// fields become time.Time (epoch milliseconds, UTC). Embedded documents,
// including those inside arrays, are canonicalized recursively. It never fails.
func (d *Document) Canonicalize() {
	for _, name := range d.dt.schema.order {
		v, ok := d.values[name]
		if !ok || v == nil {
			continue
		}
		spec := d.dt.schema.fields[name]

		if nested, isDoc := v.(*Document); isDoc && nested.dt.embedded {
			nested.Canonicalize()
			continue
		}

		if spec.Type == Date {
			if t, ok := toDate(v); ok {
				d.values[name] = t
			}
			continue
		}

		if arr, isArray := spec.Type.(*Array); isArray {
			d.values[name] = canonicalizeArray(arr, v)
		}
	}
}

func canonicalizeArray(arr *Array, v any) any {
	elems, ok := filter.ToSlice(v)
	if !ok {
		return v
	}
	changed := false
	for i, e := range elems {
		if nested, isDoc := e.(*Document); isDoc && nested.dt.embedded {
			nested.Canonicalize()
			continue
		}
		if arr.Elem == Date {
			if t, ok := toDate(e); ok {
				elems[i] = t
				changed = true
			}
		}
	}
	if _, plain := v.([]any); plain || changed {
		return elems
	}
	return v
}

func toDate(v any) (time.Time, bool) {
	ms, ok := filter.ToFloat64(v)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}
