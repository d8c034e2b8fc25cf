package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var person = map[string]any{
	"_id":  "p1",
	"name": "Alice",
	"age":  30,
	"tags": []any{"admin", "ops"},
	"address": map[string]any{
		"city": "Oslo",
	},
	"joined": time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
}

func assertMatch(t *testing.T, f Filter, want bool) {
	t.Helper()
	got, err := Match(f, person)
	if err != nil {
		t.Fatalf("Match(%v): unexpected error: %v", f, err)
	}
	if got != want {
		t.Errorf("Match(%v): got %v, want %v", f, got, want)
	}
}

func TestEq(t *testing.T) {
	assertMatch(t, Eq("name", "Alice"), true)
	assertMatch(t, Eq("name", "Bob"), false)
	assertMatch(t, Eq("age", 30.0), true)
	assertMatch(t, Eq("missing", nil), false)
}

func TestEq_ArrayContains(t *testing.T) {
	assertMatch(t, Eq("tags", "ops"), true)
	assertMatch(t, Eq("tags", "dev"), false)
	assertMatch(t, Eq("tags", []any{"admin", "ops"}), true)
}

func TestNe(t *testing.T) {
	assertMatch(t, Ne("name", "Bob"), true)
	assertMatch(t, Ne("name", "Alice"), false)
	assertMatch(t, Ne("missing", 1), true)
}

func TestComparisons(t *testing.T) {
	assertMatch(t, Gt("age", 29), true)
	assertMatch(t, Gt("age", 30), false)
	assertMatch(t, Gte("age", 30), true)
	assertMatch(t, Lt("age", int64(31)), true)
	assertMatch(t, Lte("age", 29.5), false)
	assertMatch(t, Range("age", 18, 65), true)
	assertMatch(t, Gt("name", "Aaron"), true)
	assertMatch(t, Lt("joined", time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)), true)
	assertMatch(t, Gt("name", 5), false)
	assertMatch(t, Gt("missing", 0), false)
}

func TestInNin(t *testing.T) {
	assertMatch(t, In("name", []any{"Bob", "Alice"}), true)
	assertMatch(t, In("tags", []any{"dev", "ops"}), true)
	assertMatch(t, Nin("name", []any{"Bob"}), true)
	assertMatch(t, Nin("tags", []any{"ops"}), false)
	assertMatch(t, IDIn([]any{"p1", "p2"}), true)
	assertMatch(t, ByID("p2"), false)
}

func TestExistsRegex(t *testing.T) {
	assertMatch(t, Exists("name", true), true)
	assertMatch(t, Exists("missing", false), true)
	assertMatch(t, Regex("name", "^Al"), true)
	assertMatch(t, Filter{"name": map[string]any{"$regex": "ce$"}}, true)
	assertMatch(t, Regex("age", "3"), false)
}

func TestNot(t *testing.T) {
	assertMatch(t, Filter{"age": map[string]any{"$not": map[string]any{"$gt": 40}}}, true)
	assertMatch(t, Filter{"age": map[string]any{"$not": map[string]any{"$gt": 20}}}, false)
}

func TestDottedPath(t *testing.T) {
	assertMatch(t, Eq("address.city", "Oslo"), true)
	assertMatch(t, Eq("address.zip", "0150"), false)
	assertMatch(t, Eq("name.first", "Alice"), false)
}

func TestBoolean(t *testing.T) {
	assertMatch(t, And(Eq("name", "Alice"), Gt("age", 18)), true)
	assertMatch(t, And(Eq("name", "Alice"), Gt("age", 40)), false)
	assertMatch(t, Or(Eq("name", "Bob"), Gt("age", 18)), true)
	assertMatch(t, Or(Eq("name", "Bob"), Gt("age", 40)), false)
	assertMatch(t, Nor(Eq("name", "Bob")), true)
	assertMatch(t, Nor(Eq("name", "Alice")), false)
	assertMatch(t, Filter{}, true)
	assertMatch(t, nil, true)
}

func TestAnd_Compaction(t *testing.T) {
	if got := And(); len(got) != 0 {
		t.Errorf("And(): got %v, want empty", got)
	}
	single := Eq("a", 1)
	if diff := cmp.Diff(single, And(nil, single, Filter{})); diff != "" {
		t.Errorf("And with one clause mismatch (-want +got):\n%s", diff)
	}
	both := And(Eq("a", 1), Eq("b", 2))
	clauses, ok := both["$and"].([]any)
	if !ok || len(clauses) != 2 {
		t.Errorf("And: got %v", both)
	}
}

func TestUnknownOperator(t *testing.T) {
	_, err := Match(Filter{"age": map[string]any{"$near": 1}}, person)
	if !errors.Is(err, ErrUnknownOperator) {
		t.Errorf("got %v, want ErrUnknownOperator", err)
	}
	_, err = Match(Filter{"$where": "x"}, person)
	if !errors.Is(err, ErrUnknownOperator) {
		t.Errorf("got %v, want ErrUnknownOperator", err)
	}
}

func TestIDs(t *testing.T) {
	tests := []struct {
		name string
		f    Filter
		want []any
		ok   bool
	}{
		{"by id", ByID("a"), []any{"a"}, true},
		{"id in", IDIn([]any{"a", "b"}), []any{"a", "b"}, true},
		{"other field", Eq("name", "a"), nil, false},
		{"extra clause", Filter{"_id": "a", "name": "b"}, nil, false},
		{"other operator", Filter{"_id": map[string]any{"$gt": "a"}}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IDs(tt.f)
			if ok != tt.ok {
				t.Fatalf("ok: got %v, want %v", ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompareEqual(t *testing.T) {
	if c, ok := Compare(int8(3), 2.5); !ok || c != 1 {
		t.Errorf("Compare(int8(3), 2.5): got %d, %v", c, ok)
	}
	if _, ok := Compare("a", 1); ok {
		t.Error("strings and numbers should not be comparable")
	}
	if !Equal(map[string]any{"a": 1}, map[string]any{"a": 1.0}) {
		t.Error("maps should compare element-wise")
	}
	if Equal([]any{1, 2}, []any{1}) {
		t.Error("slices of different length should differ")
	}
	if !Equal(nil, nil) || Equal(nil, 0) {
		t.Error("nil handling")
	}
}

func TestRender(t *testing.T) {
	if got := Render([]any{"a", 1, []int{2}}); got != "[a,1,[2]]" {
		t.Errorf("got %q", got)
	}
	if got := Render(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)); got != "2020-01-02T03:04:05Z" {
		t.Errorf("got %q", got)
	}
}

func TestSortAndPage(t *testing.T) {
	records := []map[string]any{
		{"n": "c", "v": 1},
		{"n": "a", "v": 2},
		{"n": "b", "v": 1},
		{"n": "d"},
	}
	SortRecords(records, []SortKey{Asc("v"), Desc("n")})

	var order []string
	for _, r := range records {
		order = append(order, r["n"].(string))
	}
	if diff := cmp.Diff([]string{"d", "c", "b", "a"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	page := Page(records, 1, 2)
	if len(page) != 2 || page[0]["n"] != "c" {
		t.Errorf("Page: got %v", page)
	}
	if got := Page(records, 10, 0); len(got) != 0 {
		t.Errorf("Page past end: got %v", got)
	}
}
