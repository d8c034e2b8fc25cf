package recordset

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

func TestCodecRoundTrip(t *testing.T) {
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	rec := map[string]any{
		"name":   "Ann",
		"age":    int64(30),
		"score":  1.5,
		"ok":     true,
		"at":     at,
		"tags":   []any{"a", "b"},
		"nested": map[string]any{"n": int64(1)},
		"none":   nil,
	}
	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestClone(t *testing.T) {
	rec := map[string]any{"tags": []any{"a"}, "nested": map[string]any{"x": 1}}
	cp := Clone(rec)
	cp["tags"].([]any)[0] = "changed"
	cp["nested"].(map[string]any)["x"] = 2
	if rec["tags"].([]any)[0] != "a" || rec["nested"].(map[string]any)["x"] != 1 {
		t.Errorf("clone shares state with the original: %v", rec)
	}
}

func TestSelect(t *testing.T) {
	records := []map[string]any{
		{"_id": "1", "n": 3},
		{"_id": "2", "n": 1},
		{"_id": "3", "n": 2},
	}
	got, err := Select(records, filter.Gte("n", 2), odm.FindOptions{Sort: []filter.SortKey{filter.Asc("n")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0]["_id"] != "3" || got[1]["_id"] != "1" {
		t.Errorf("got %v", got)
	}
}

func TestSeedFromFilter(t *testing.T) {
	seed := SeedFromFilter(filter.Filter{
		"name": "Ann",
		"age":  map[string]any{"$gt": 3},
		"$or":  []any{},
	})
	if diff := cmp.Diff(map[string]any{"name": "Ann"}, seed); diff != "" {
		t.Errorf("seed mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckUnique(t *testing.T) {
	records := []map[string]any{
		{"_id": "1", "email": "a@x"},
		{"_id": "2"},
	}
	idx := map[string]odm.IndexOptions{"email": {Unique: true, Sparse: true}}
	canonical := func(v any) string { return fmt.Sprint(v) }

	err := CheckUnique(records, map[string]any{"_id": "3", "email": "a@x"}, idx, canonical)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("got %v, want ErrDuplicateKey", err)
	}
	if err := CheckUnique(records, map[string]any{"_id": "1", "email": "a@x"}, idx, canonical); err != nil {
		t.Errorf("a record never conflicts with itself: %v", err)
	}
	if err := CheckUnique(records, map[string]any{"_id": "4"}, idx, canonical); err != nil {
		t.Errorf("sparse index should ignore missing values: %v", err)
	}
}
