package filter

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// IsNumber reports whether v is a Go integer or floating point value.
func IsNumber(v any) bool {
	_, ok := ToFloat64(v)
	return ok
}

// ToFloat64 widens any Go numeric value to float64.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Compare orders two values of the same family: numbers, strings, times or
// bools. ok is false when the values are not comparable.
func Compare(a, b any) (c int, ok bool) {
	if af, aok := ToFloat64(a); aok {
		bf, bok := ToFloat64(b)
		if !bok {
			return 0, false
		}
		return compareOrdered(af, bf), true
	}
	switch av := a.(type) {
	case string:
		bv, bok := b.(string)
		if !bok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case time.Time:
		bv, bok := b.(time.Time)
		if !bok {
			return 0, false
		}
		return av.Compare(bv), true
	case bool:
		bv, bok := b.(bool)
		if !bok {
			return 0, false
		}
		return compareOrdered(boolRank(av), boolRank(bv)), true
	}
	return 0, false
}

// Equal compares values the way a document store does: numbers by value
// regardless of Go type, times by instant, maps and slices element-wise.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	if as, ok := toSlice(a); ok {
		bs, ok := toSlice(b)
		if !ok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if am, ok := asFilter(a); ok {
		bm, ok := asFilter(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(a) == reflect.TypeOf(b) {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// Render formats a value for error messages: strings verbatim, slices as
// [a,b,c], everything else with %v.
func Render(v any) string {
	if s, ok := toSlice(v); ok {
		parts := make([]string, len(s))
		for i, e := range s {
			parts[i] = Render(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%v", v)
}

func compareOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolRank(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
