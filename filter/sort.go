package filter

import "sort"

// SortKey orders results by one field.
type SortKey struct {
	Field string
	Desc  bool
}

// Asc sorts by field in ascending order.
func Asc(field string) SortKey { return SortKey{Field: field} }

// Desc sorts by field in descending order.
func Desc(field string) SortKey { return SortKey{Field: field, Desc: true} }

// SortRecords stably orders records by keys. Missing or incomparable values
// sort first.
func SortRecords(records []map[string]any, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, k := range keys {
			c := compareField(records[i], records[j], k.Field)
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Page applies skip and limit (0 = unlimited) to records.
func Page(records []map[string]any, skip, limit int64) []map[string]any {
	if skip > 0 {
		if skip >= int64(len(records)) {
			return records[:0]
		}
		records = records[skip:]
	}
	if limit > 0 && limit < int64(len(records)) {
		records = records[:limit]
	}
	return records
}

func compareField(a, b map[string]any, field string) int {
	av, aok := Lookup(a, field)
	bv, bok := Lookup(b, field)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	c, ok := Compare(av, bv)
	if !ok {
		return 0
	}
	return c
}
