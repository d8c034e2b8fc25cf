package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CaliLuke/go-docmap/adapters/adaptertest"
	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

func TestTechnologyCompatibilityKit(t *testing.T) {
	adaptertest.TechnologyCompatibilityKit(t, func(t *testing.T) odm.Adapter { return New() })
}

func TestIsNativeID(t *testing.T) {
	a := New()
	if !a.IsNativeID("0b9c8e2a-55b1-4b61-9a43-3d0b1d7e9a10") {
		t.Error("uuid string should be native")
	}
	for _, v := range []any{nil, "nope", 42} {
		if a.IsNativeID(v) {
			t.Errorf("IsNativeID(%v): got true, want false", v)
		}
	}
}

func TestRecordsAreCopied(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	a := New()

	tags := []any{"a"}
	id, err := a.Save(ctx, "things", nil, map[string]any{"tags": tags})
	require.NoError(err)
	tags[0] = "mutated"

	rec, err := a.LoadOne(ctx, "things", filter.ByID(id))
	require.NoError(err)
	require.Equal([]any{"a"}, rec["tags"])

	rec["tags"].([]any)[0] = "mutated"
	again, err := a.LoadOne(ctx, "things", filter.ByID(id))
	require.NoError(err)
	require.Equal([]any{"a"}, again["tags"])
}

func TestSaveWithUnknownIDInserts(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	a := New()

	id, err := a.Save(ctx, "things", "fixed", map[string]any{"n": 1})
	require.NoError(err)
	require.Equal("fixed", id)

	n, err := a.Count(ctx, "things", filter.ByID("fixed"))
	require.NoError(err)
	require.EqualValues(1, n)
}

func TestCreateIndexRejectsExistingDuplicates(t *testing.T) {
	ctx := context.Background()
	a := New()
	for range 2 {
		if _, err := a.Save(ctx, "things", nil, map[string]any{"code": "x"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	err := a.CreateIndex(ctx, "things", "code", odm.IndexOptions{Unique: true})
	require.ErrorIs(t, err, odm.ErrDuplicateKey)
}

func TestStoreRoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	odm.ClearRegistry()
	t.Cleanup(odm.ClearRegistry)

	money := odm.MustEmbedded("Money", odm.Fields{"value": odm.Field{Type: odm.Number, Default: 100}})
	wallet := odm.MustDocument("Wallet", odm.Fields{"owner": odm.String, "money": money})

	store := odm.NewStore(New())
	m := odm.NewManager(store, wallet)

	d, err := m.Insert(ctx, map[string]any{"owner": "Ann", "money": map[string]any{}})
	require.NoError(err)
	require.True(store.IsNativeID(d.ID()))

	got, err := m.Get(ctx, d.ID())
	require.NoError(err)
	require.Equal("Ann", got.String("owner"))
	require.Equal(100.0, got.Embedded("money").Number("value"))
}
