// Package adaptertest holds the compatibility suite every storage adapter
// must pass.
package adaptertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

// Factory returns a fresh, empty adapter. The suite closes it.
type Factory func(t *testing.T) odm.Adapter

const coll = "tck_people"

// TechnologyCompatibilityKit runs the adapter contract against adapters made by factory.
func TechnologyCompatibilityKit(t *testing.T, factory Factory) {
	run := func(name string, fn func(t *testing.T, a odm.Adapter)) {
		t.Run(name, func(t *testing.T) {
			a := factory(t)
			t.Cleanup(func() { _ = a.Close(context.Background()) })
			fn(t, a)
		})
	}
	run("SaveInsert", testSaveInsert)
	run("SaveUpdate", testSaveUpdate)
	run("ValueShapes", testValueShapes)
	run("LoadOneMissing", testLoadOneMissing)
	run("LoadMany", testLoadMany)
	run("Count", testCount)
	run("Delete", testDelete)
	run("LoadOneAndUpdate", testLoadOneAndUpdate)
	run("LoadOneAndDelete", testLoadOneAndDelete)
	run("UniqueIndex", testUniqueIndex)
	run("ClearAndDrop", testClearAndDrop)
	run("CancelledContext", testCancelledContext)
	run("StoreEmbeddedSlice", testStoreEmbeddedSlice)
	run("StoreForeignID", testStoreForeignID)
}

func seed(t *testing.T, a odm.Adapter, people ...map[string]any) []any {
	t.Helper()
	ids := make([]any, len(people))
	for i, p := range people {
		id, err := a.Save(context.Background(), coll, nil, p)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func names(recs []map[string]any) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i], _ = r["name"].(string)
	}
	return out
}

func testSaveInsert(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()

	id, err := a.Save(ctx, coll, nil, map[string]any{"name": "Ann"})
	require.NoError(err)
	require.NotNil(id)
	require.True(a.IsNativeID(id), "generated id %v should be native", id)
	require.True(a.NativeIDType().Accepts(id))
	require.Equal(a.ToCanonicalID(id), a.ToCanonicalID(id))

	other, err := a.Save(ctx, coll, nil, map[string]any{"name": "Bob"})
	require.NoError(err)
	require.NotEqual(a.ToCanonicalID(id), a.ToCanonicalID(other))

	rec, err := a.LoadOne(ctx, coll, filter.ByID(id))
	require.NoError(err)
	require.NotNil(rec)
	require.Equal("Ann", rec["name"])
	require.Equal(a.ToCanonicalID(id), a.ToCanonicalID(rec[filter.IDField]))
}

func testSaveUpdate(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()

	ids := seed(t, a, map[string]any{"name": "Ann", "age": int64(30)})
	got, err := a.Save(ctx, coll, ids[0], map[string]any{"name": "Ann", "age": int64(31)})
	require.NoError(err)
	require.Equal(a.ToCanonicalID(ids[0]), a.ToCanonicalID(got))

	n, err := a.Count(ctx, coll, nil)
	require.NoError(err)
	require.EqualValues(1, n)

	rec, err := a.LoadOne(ctx, coll, filter.ByID(ids[0]))
	require.NoError(err)
	age, _ := filter.ToFloat64(rec["age"])
	require.Equal(31.0, age)
}

func testValueShapes(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	ids := seed(t, a, map[string]any{
		"name":  "Ann",
		"at":    at,
		"score": 2.5,
		"ok":    true,
		"tags":  []any{"a", "b"},
		"limb":  map[string]any{"kind": "arm", "fingers": []any{map[string]any{"n": int64(1)}}},
		"none":  nil,
	})
	rec, err := a.LoadOne(ctx, coll, filter.ByID(ids[0]))
	require.NoError(err)

	gotAt, ok := rec["at"].(time.Time)
	require.True(ok, "at should decode as time.Time, got %T", rec["at"])
	require.True(at.Equal(gotAt))
	require.Equal(2.5, rec["score"])
	require.Equal(true, rec["ok"])
	require.Equal([]any{"a", "b"}, rec["tags"])

	limb, ok := rec["limb"].(map[string]any)
	require.True(ok, "nested record should decode as map[string]any, got %T", rec["limb"])
	require.Equal("arm", limb["kind"])
	fingers, ok := limb["fingers"].([]any)
	require.True(ok)
	require.Len(fingers, 1)
	finger, ok := fingers[0].(map[string]any)
	require.True(ok)
	require.True(filter.Equal(1, finger["n"]))
	require.Nil(rec["none"])
}

func testLoadOneMissing(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	rec, err := a.LoadOne(context.Background(), coll, filter.Eq("name", "nobody"))
	require.NoError(err)
	require.Nil(rec)

	recs, err := a.LoadMany(context.Background(), "tck_empty", nil, odm.FindOptions{})
	require.NoError(err)
	require.Empty(recs)
}

func testLoadMany(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()

	ids := seed(t, a,
		map[string]any{"name": "Cid", "age": int64(40)},
		map[string]any{"name": "Ann", "age": int64(30)},
		map[string]any{"name": "Bob", "age": int64(20)},
		map[string]any{"name": "Dee", "age": int64(50)},
	)

	recs, err := a.LoadMany(ctx, coll, filter.Gte("age", 30), odm.FindOptions{Sort: []filter.SortKey{filter.Asc("name")}})
	require.NoError(err)
	require.Equal([]string{"Ann", "Cid", "Dee"}, names(recs))

	recs, err = a.LoadMany(ctx, coll, nil, odm.FindOptions{Sort: []filter.SortKey{filter.Desc("age")}, Skip: 1, Limit: 2})
	require.NoError(err)
	require.Equal([]string{"Cid", "Ann"}, names(recs))

	recs, err = a.LoadMany(ctx, coll, filter.IDIn([]any{ids[0], ids[2]}), odm.FindOptions{Sort: []filter.SortKey{filter.Asc("age")}})
	require.NoError(err)
	require.Equal([]string{"Bob", "Cid"}, names(recs))

	recs, err = a.LoadMany(ctx, coll, filter.Or(filter.Eq("name", "Ann"), filter.In("age", []any{50})), odm.FindOptions{Sort: []filter.SortKey{filter.Asc("age")}})
	require.NoError(err)
	require.Equal([]string{"Ann", "Dee"}, names(recs))
}

func testCount(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()

	n, err := a.Count(ctx, coll, nil)
	require.NoError(err)
	require.Zero(n)

	seed(t, a, map[string]any{"name": "Ann", "age": int64(30)}, map[string]any{"name": "Bob", "age": int64(20)})
	n, err = a.Count(ctx, coll, filter.Lt("age", 25))
	require.NoError(err)
	require.EqualValues(1, n)
}

func testDelete(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()

	ids := seed(t, a,
		map[string]any{"name": "Ann", "team": "x"},
		map[string]any{"name": "Bob", "team": "x"},
		map[string]any{"name": "Cid", "team": "x"},
		map[string]any{"name": "Dee", "team": "y"},
	)

	n, err := a.Delete(ctx, coll, ids[0])
	require.NoError(err)
	require.EqualValues(1, n)
	n, err = a.Delete(ctx, coll, ids[0])
	require.NoError(err)
	require.Zero(n)
	n, err = a.Delete(ctx, coll, nil)
	require.NoError(err)
	require.Zero(n)

	n, err = a.DeleteOne(ctx, coll, filter.Eq("team", "x"))
	require.NoError(err)
	require.EqualValues(1, n)

	n, err = a.DeleteMany(ctx, coll, filter.Eq("team", "x"))
	require.NoError(err)
	require.EqualValues(1, n)

	recs, err := a.LoadMany(ctx, coll, nil, odm.FindOptions{})
	require.NoError(err)
	require.Equal([]string{"Dee"}, names(recs))
}

func testLoadOneAndUpdate(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()

	seed(t, a, map[string]any{"name": "Ann", "age": int64(30)})

	rec, err := a.LoadOneAndUpdate(ctx, coll, filter.Eq("name", "Ann"), map[string]any{"age": int64(31)}, odm.UpdateOptions{})
	require.NoError(err)
	require.NotNil(rec)
	require.Equal("Ann", rec["name"])
	require.True(filter.Equal(31, rec["age"]))

	rec, err = a.LoadOneAndUpdate(ctx, coll, filter.Eq("name", "Bob"), map[string]any{"age": int64(5)}, odm.UpdateOptions{})
	require.NoError(err)
	require.Nil(rec)

	rec, err = a.LoadOneAndUpdate(ctx, coll, filter.Eq("name", "Bob"), map[string]any{"age": int64(5)}, odm.UpdateOptions{Upsert: true})
	require.NoError(err)
	require.NotNil(rec)
	require.Equal("Bob", rec["name"])
	require.True(a.IsNativeID(rec[filter.IDField]))

	n, err := a.Count(ctx, coll, nil)
	require.NoError(err)
	require.EqualValues(2, n)
}

func testLoadOneAndDelete(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()

	seed(t, a, map[string]any{"name": "Ann"}, map[string]any{"name": "Bob"})
	rec, err := a.LoadOneAndDelete(ctx, coll, filter.Eq("name", "Bob"))
	require.NoError(err)
	require.NotNil(rec)
	require.Equal("Bob", rec["name"])

	rec, err = a.LoadOneAndDelete(ctx, coll, filter.Eq("name", "Bob"))
	require.NoError(err)
	require.Nil(rec)

	n, err := a.Count(ctx, coll, nil)
	require.NoError(err)
	require.EqualValues(1, n)
}

func testUniqueIndex(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()

	require.NoError(a.CreateIndex(ctx, coll, "email", odm.IndexOptions{Unique: true, Sparse: true}))
	ids := seed(t, a, map[string]any{"name": "Ann", "email": "ann@example.com"})

	_, err := a.Save(ctx, coll, nil, map[string]any{"name": "Imposter", "email": "ann@example.com"})
	require.ErrorIs(err, odm.ErrDuplicateKey)

	_, err = a.Save(ctx, coll, ids[0], map[string]any{"name": "Ann B", "email": "ann@example.com"})
	require.NoError(err, "a record never conflicts with itself")

	seed(t, a, map[string]any{"name": "NoMail1"}, map[string]any{"name": "NoMail2"})
	n, err := a.Count(ctx, coll, nil)
	require.NoError(err)
	require.EqualValues(3, n)
}

func testClearAndDrop(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()

	seed(t, a, map[string]any{"name": "Ann"})
	_, err := a.Save(ctx, "tck_other", nil, map[string]any{"name": "Zed"})
	require.NoError(err)

	require.NoError(a.ClearCollection(ctx, coll))
	n, err := a.Count(ctx, coll, nil)
	require.NoError(err)
	require.Zero(n)
	n, err = a.Count(ctx, "tck_other", nil)
	require.NoError(err)
	require.EqualValues(1, n)

	require.NoError(a.DropDatabase(ctx))
	n, err = a.Count(ctx, "tck_other", nil)
	require.NoError(err)
	require.Zero(n)
}

func testCancelledContext(t *testing.T, a odm.Adapter) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Save(ctx, coll, nil, map[string]any{"name": "Ann"})
	require.ErrorIs(t, err, context.Canceled)
}

func bodyTypes(t *testing.T) (limb, body *odm.DocumentType) {
	t.Helper()
	limb, err := odm.NewEmbeddedType("Limb", odm.Fields{"type": odm.String})
	require.NoError(t, err)
	body, err = odm.NewDocumentType("Body", odm.Fields{"limbs": []odm.Type{limb}}, odm.WithCollection("tck_bodies"))
	require.NoError(t, err)
	return limb, body
}

func testStoreEmbeddedSlice(t *testing.T, a odm.Adapter) {
	require := require.New(t)
	ctx := context.Background()
	limb, body := bodyTypes(t)
	store := odm.NewStore(a)

	arm := limb.New()
	arm.Set("type", "left arm")
	d := body.New()
	d.Set("limbs", []*odm.Document{arm})
	require.NoError(store.Save(ctx, d))

	got, err := store.LoadOne(ctx, body, filter.ByID(d.ID()), odm.LoadOptions{})
	require.NoError(err)
	require.NotNil(got)
	limbs := got.Array("limbs")
	require.Len(limbs, 1)
	reloaded, ok := limbs[0].(*odm.Document)
	require.True(ok, "limb should hydrate to a document, got %T", limbs[0])
	require.NotSame(arm, reloaded)
	require.Equal("left arm", reloaded.String("type"))
}

func testStoreForeignID(t *testing.T, a odm.Adapter) {
	ctx := context.Background()
	_, body := bodyTypes(t)
	store := odm.NewStore(a)

	d := body.New()
	d.SetID(42)
	err := store.Save(ctx, d)
	require.True(t, odm.IsValidation(err), "expected a validation error, got %v", err)

	n, err := store.Count(ctx, body, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}
