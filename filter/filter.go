// Package filter builds and evaluates Mongo-style filter documents.
//
// Filters are plain maps and are passed through to storage adapters
// unchanged. Adapters that cannot delegate filtering to their backend use
// Match to evaluate a filter against a decoded record.
package filter

import "regexp"

// Filter is a query document such as {"name": "x", "age": {"$gt": 3}}.
type Filter map[string]any

// IDField is the backend identity key of every stored record.
const IDField = "_id"

// --- Comparison filters ---

// Eq matches records whose field equals value.
func Eq(field string, value any) Filter {
	return Filter{field: value}
}

// Ne matches records whose field does not equal value.
func Ne(field string, value any) Filter {
	return Filter{field: map[string]any{"$ne": value}}
}

// Gt matches records whose field is greater than value.
func Gt(field string, value any) Filter {
	return Filter{field: map[string]any{"$gt": value}}
}

// Gte matches records whose field is greater than or equal to value.
func Gte(field string, value any) Filter {
	return Filter{field: map[string]any{"$gte": value}}
}

// Lt matches records whose field is less than value.
func Lt(field string, value any) Filter {
	return Filter{field: map[string]any{"$lt": value}}
}

// Lte matches records whose field is less than or equal to value.
func Lte(field string, value any) Filter {
	return Filter{field: map[string]any{"$lte": value}}
}

// Range matches records whose field is between min and max (inclusive).
func Range(field string, min, max any) Filter {
	return Filter{field: map[string]any{"$gte": min, "$lte": max}}
}

// --- Set membership filters ---

// In matches records whose field is one of values.
func In(field string, values []any) Filter {
	return Filter{field: map[string]any{"$in": values}}
}

// Nin matches records whose field is none of values.
func Nin(field string, values []any) Filter {
	return Filter{field: map[string]any{"$nin": values}}
}

// --- Other filters ---

// Exists matches records that have (or lack) the field.
func Exists(field string, exists bool) Filter {
	return Filter{field: map[string]any{"$exists": exists}}
}

// Regex matches string fields against a regular expression.
func Regex(field string, pattern string) Filter {
	return Filter{field: map[string]any{"$regex": regexp.MustCompile(pattern)}}
}

// ByID matches the record with the given identity.
func ByID(id any) Filter {
	return Filter{IDField: id}
}

// IDIn matches every record whose identity is one of ids.
func IDIn(ids []any) Filter {
	return In(IDField, ids)
}

// --- Boolean combinators ---

// And combines filters with logical AND. Nil filters are skipped.
func And(filters ...Filter) Filter {
	clauses := compact(filters)
	switch len(clauses) {
	case 0:
		return Filter{}
	case 1:
		return clauses[0].(Filter)
	}
	return Filter{"$and": clauses}
}

// Or combines filters with logical OR.
func Or(filters ...Filter) Filter {
	return Filter{"$or": compact(filters)}
}

// Nor matches records that match none of filters.
func Nor(filters ...Filter) Filter {
	return Filter{"$nor": compact(filters)}
}

func compact(filters []Filter) []any {
	out := make([]any, 0, len(filters))
	for _, f := range filters {
		if len(f) == 0 {
			continue
		}
		out = append(out, f)
	}
	return out
}

// IDs extracts the identity set when f is exactly {_id: v} or
// {_id: {$in: [...]}}. Adapters use it to push id lookups down to an index.
func IDs(f Filter) ([]any, bool) {
	if len(f) != 1 {
		return nil, false
	}
	v, ok := f[IDField]
	if !ok {
		return nil, false
	}
	ops, isOps := asOperators(v)
	if !isOps {
		return []any{v}, true
	}
	if len(ops) != 1 {
		return nil, false
	}
	in, ok := ops["$in"]
	if !ok {
		return nil, false
	}
	return toSlice(in)
}
