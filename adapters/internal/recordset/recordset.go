// Package recordset holds the in-process query engine shared by the adapters
// that cannot push filters down to their backend.
package recordset

import (
	"fmt"
	"time"

	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

// ErrDuplicateKey is returned when a write would violate a unique index.
var ErrDuplicateKey = odm.ErrDuplicateKey

// Clone deep-copies a record so callers never share maps or slices with storage.
func Clone(rec map[string]any) map[string]any {
	if rec == nil {
		return nil
	}
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return Clone(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	}
	if m, ok := filter.ToMap(v); ok {
		return Clone(m)
	}
	if s, ok := filter.ToSlice(v); ok {
		return cloneValue(s)
	}
	return v
}

// Normalize converts decoded values to the plain shapes documents expect:
// string-keyed maps become map[string]any, slices []any and times UTC.
func Normalize(rec map[string]any) map[string]any {
	for k, v := range rec {
		rec[k] = normalizeValue(v)
	}
	return rec
}

func normalizeValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return Normalize(tv)
	case []any:
		for i, e := range tv {
			tv[i] = normalizeValue(e)
		}
		return tv
	case time.Time:
		return tv.UTC()
	}
	return v
}

// Select returns the records matching f, sorted and paged by opts. The
// input order is kept when opts has no sort keys.
func Select(records []map[string]any, f filter.Filter, opts odm.FindOptions) ([]map[string]any, error) {
	var out []map[string]any
	for _, r := range records {
		ok, err := filter.Match(f, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	filter.SortRecords(out, opts.Sort)
	return filter.Page(out, opts.Skip, opts.Limit), nil
}

// First returns the first record matching f, or nil.
func First(records []map[string]any, f filter.Filter) (map[string]any, error) {
	for _, r := range records {
		ok, err := filter.Match(f, r)
		if err != nil {
			return nil, err
		}
		if ok {
			return r, nil
		}
	}
	return nil, nil
}

// Set applies values to rec with $set semantics: listed fields are replaced,
// others are kept.
func Set(rec, values map[string]any) {
	for k, v := range values {
		if k == filter.IDField {
			continue
		}
		rec[k] = cloneValue(v)
	}
}

// SeedFromFilter returns the equality clauses of f as the initial record of
// an upsert, the way a document store seeds an inserted document.
func SeedFromFilter(f filter.Filter) map[string]any {
	seed := make(map[string]any)
	for k, v := range f {
		if len(k) > 0 && k[0] == '$' {
			continue
		}
		if m, ok := filter.ToMap(v); ok && isOperatorDoc(m) {
			continue
		}
		seed[k] = cloneValue(v)
	}
	return seed
}

func isOperatorDoc(m map[string]any) bool {
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return len(m) > 0
}

// CheckUnique reports ErrDuplicateKey when another record already holds
// rec's value of a unique field. Sparse indexes ignore nil and missing values.
func CheckUnique(records []map[string]any, rec map[string]any, fields map[string]odm.IndexOptions, canonical func(any) string) error {
	self := canonical(rec[filter.IDField])
	for field, opts := range fields {
		if !opts.Unique {
			continue
		}
		v, present := filter.Lookup(rec, field)
		if opts.Sparse && (!present || v == nil) {
			continue
		}
		for _, other := range records {
			if canonical(other[filter.IDField]) == self {
				continue
			}
			ov, ok := filter.Lookup(other, field)
			if opts.Sparse && (!ok || ov == nil) {
				continue
			}
			if filter.Equal(v, ov) {
				return fmt.Errorf("%w: %s = %s", ErrDuplicateKey, field, filter.Render(v))
			}
		}
	}
	return nil
}
