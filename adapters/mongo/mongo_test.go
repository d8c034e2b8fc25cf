package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CaliLuke/go-docmap/adapters/adaptertest"
	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

const hexID = "5f1d7c3e9b1e8a2b3c4d5e6f"

func TestIsNativeID(t *testing.T) {
	a := &Adapter{}
	oid, _ := primitive.ObjectIDFromHex(hexID)
	tests := []struct {
		v    any
		want bool
	}{
		{oid, true},
		{hexID, true},
		{primitive.NilObjectID, false},
		{"not-an-id", false},
		{42, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := a.IsNativeID(tt.v); got != tt.want {
			t.Errorf("IsNativeID(%v): got %v, want %v", tt.v, got, tt.want)
		}
	}
	if !a.NativeIDType().Accepts(oid) {
		t.Error("ObjectID type should accept ObjectIDs")
	}
}

func TestToCanonicalID(t *testing.T) {
	a := &Adapter{}
	oid, _ := primitive.ObjectIDFromHex(hexID)
	if got := a.ToCanonicalID(oid); got != hexID {
		t.Errorf("got %q, want %q", got, hexID)
	}
	if a.ToCanonicalID(oid) != a.ToCanonicalID(hexID) {
		t.Error("an ObjectID and its hex form should share a canonical id")
	}
}

func TestToQuery(t *testing.T) {
	oid, _ := primitive.ObjectIDFromHex(hexID)
	tests := []struct {
		name string
		in   filter.Filter
		want bson.M
	}{
		{"by id", filter.ByID(hexID), bson.M{"_id": oid}},
		{"id in", filter.IDIn([]any{hexID, "plain"}), bson.M{"_id": bson.M{"$in": bson.A{oid, "plain"}}}},
		{"id nin", filter.Filter{"_id": map[string]any{"$nin": []any{hexID}}}, bson.M{"_id": bson.M{"$nin": bson.A{oid}}}},
		{"other fields untouched", filter.Eq("owner", hexID), bson.M{"owner": hexID}},
		{
			"nested logical",
			filter.Or(filter.ByID(hexID), filter.Eq("n", 1)),
			bson.M{"$or": bson.A{bson.M{"_id": oid}, bson.M{"n": 1}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, toQuery(tt.in)); diff != "" {
				t.Errorf("query mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToPlain(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := bson.M{
		"at":     primitive.NewDateTimeFromTime(at),
		"n":      int32(7),
		"tags":   bson.A{"a", bson.M{"x": int32(1)}},
		"nested": bson.D{{Key: "k", Value: "v"}},
	}
	want := map[string]any{
		"at":     at,
		"n":      int64(7),
		"tags":   []any{"a", map[string]any{"x": int64(1)}},
		"nested": map[string]any{"k": "v"},
	}
	if diff := cmp.Diff(want, toPlainMap(doc)); diff != "" {
		t.Errorf("plain mismatch (-want +got):\n%s", diff)
	}
}

func TestToSort(t *testing.T) {
	got := toSort([]filter.SortKey{filter.Asc("a"), filter.Desc("b")})
	want := bson.D{{Key: "a", Value: 1}, {Key: "b", Value: -1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sort mismatch (-want +got):\n%s", diff)
	}
}

// TestTechnologyCompatibilityKit needs a server: set DOCMAP_MONGO_URL.
func TestTechnologyCompatibilityKit(t *testing.T) {
	uri := os.Getenv("DOCMAP_MONGO_URL")
	if uri == "" {
		t.Skip("DOCMAP_MONGO_URL not set")
	}
	adaptertest.TechnologyCompatibilityKit(t, func(t *testing.T) odm.Adapter {
		ctx := context.Background()
		name := "docmap_tck_" + uuid.NewString()[:8]
		a, err := Connect(ctx, uri, name)
		require.NoError(t, err)
		t.Cleanup(func() {
			cleanup, err := Connect(ctx, uri, name)
			if err != nil {
				return
			}
			_ = cleanup.DropDatabase(ctx)
			_ = cleanup.Close(ctx)
		})
		return a
	})
}
