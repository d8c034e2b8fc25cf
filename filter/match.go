package filter

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// ErrUnknownOperator is returned when a filter uses an operator Match does not implement.
var ErrUnknownOperator = errors.New("filter: unknown operator")

// Match reports whether record satisfies f. An empty filter matches everything.
func Match(f Filter, record map[string]any) (bool, error) {
	for key, cond := range f {
		ok, err := matchClause(key, cond, record)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchClause(key string, cond any, record map[string]any) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		subs, ok := toSlice(cond)
		if !ok {
			return false, fmt.Errorf("%s expects an array, got %T", key, cond)
		}
		return matchLogical(key, subs, record)
	}
	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("%w: %s", ErrUnknownOperator, key)
	}

	value, present := Lookup(record, key)
	ops, isOps := asOperators(cond)
	if !isOps {
		return present && matchesEq(value, cond), nil
	}
	for op, operand := range ops {
		ok, err := matchOperator(op, operand, value, present)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", key, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchLogical(op string, subs []any, record map[string]any) (bool, error) {
	for _, s := range subs {
		sub, ok := asFilter(s)
		if !ok {
			return false, fmt.Errorf("%s expects filter documents, got %T", op, s)
		}
		matched, err := Match(sub, record)
		if err != nil {
			return false, err
		}
		switch op {
		case "$and":
			if !matched {
				return false, nil
			}
		case "$or":
			if matched {
				return true, nil
			}
		case "$nor":
			if matched {
				return false, nil
			}
		}
	}
	return op != "$or", nil
}

func matchOperator(op string, operand, value any, present bool) (bool, error) {
	switch op {
	case "$eq":
		return present && matchesEq(value, operand), nil
	case "$ne":
		return !present || !matchesEq(value, operand), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		return matchesOrdered(op, value, operand), nil
	case "$in":
		set, ok := toSlice(operand)
		if !ok {
			return false, fmt.Errorf("$in expects an array, got %T", operand)
		}
		return present && matchesAny(value, set), nil
	case "$nin":
		set, ok := toSlice(operand)
		if !ok {
			return false, fmt.Errorf("$nin expects an array, got %T", operand)
		}
		return !present || !matchesAny(value, set), nil
	case "$exists":
		want, _ := operand.(bool)
		return present == want, nil
	case "$regex":
		re, err := toRegexp(operand)
		if err != nil {
			return false, err
		}
		s, ok := value.(string)
		return present && ok && re.MatchString(s), nil
	case "$not":
		sub, ok := asOperators(operand)
		if !ok {
			return false, fmt.Errorf("$not expects an operator document, got %T", operand)
		}
		for subOp, subOperand := range sub {
			matched, err := matchOperator(subOp, subOperand, value, present)
			if err != nil {
				return false, err
			}
			if !matched {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", ErrUnknownOperator, op)
}

// matchesEq follows document-store semantics: an array field matches when
// any of its elements equals the operand.
func matchesEq(value, operand any) bool {
	if Equal(value, operand) {
		return true
	}
	if elems, ok := toSlice(value); ok {
		if _, operandIsSlice := toSlice(operand); !operandIsSlice {
			for _, e := range elems {
				if Equal(e, operand) {
					return true
				}
			}
		}
	}
	return false
}

func matchesAny(value any, set []any) bool {
	for _, candidate := range set {
		if matchesEq(value, candidate) {
			return true
		}
	}
	return false
}

func matchesOrdered(op string, value, operand any) bool {
	c, ok := Compare(value, operand)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}

func toRegexp(operand any) (*regexp.Regexp, error) {
	switch p := operand.(type) {
	case *regexp.Regexp:
		return p, nil
	case string:
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("$regex: %w", err)
		}
		return re, nil
	}
	return nil, fmt.Errorf("$regex expects a pattern, got %T", operand)
}

// Lookup resolves a dotted path such as "address.city" inside record.
func Lookup(record map[string]any, path string) (any, bool) {
	var cur any = record
	for _, part := range strings.Split(path, ".") {
		m, ok := asFilter(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// asOperators reports whether v is an operator document ({"$op": ...}).
func asOperators(v any) (map[string]any, bool) {
	m, ok := asFilter(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// asFilter converts any string-keyed map to a plain map.
func asFilter(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Filter:
		return m, true
	case map[string]any:
		return m, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// toSlice converts any Go slice except byte slices to []any. Fixed-size
// arrays are scalars here: native ids are often [12]byte.
func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// ToSlice is exported for adapters that need to walk filter operands.
func ToSlice(v any) ([]any, bool) {
	return toSlice(v)
}

// ToMap is exported for adapters that need to walk nested filter documents.
func ToMap(v any) (map[string]any, bool) {
	return asFilter(v)
}
