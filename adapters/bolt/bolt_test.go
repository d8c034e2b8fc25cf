package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CaliLuke/go-docmap/adapters/adaptertest"
	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

func TestTechnologyCompatibilityKit(t *testing.T) {
	adaptertest.TechnologyCompatibilityKit(t, func(t *testing.T) odm.Adapter {
		a, err := Open(filepath.Join(t.TempDir(), "docmap.bolt"))
		require.NoError(t, err)
		return a
	})
}

func TestInsertionOrderSurvivesUpdates(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	a, err := Open(filepath.Join(t.TempDir(), "docmap.bolt"))
	require.NoError(err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	var ids []any
	for _, name := range []string{"first", "second", "third"} {
		id, err := a.Save(ctx, "things", nil, map[string]any{"name": name})
		require.NoError(err)
		ids = append(ids, id)
	}
	_, err = a.Save(ctx, "things", ids[0], map[string]any{"name": "first again"})
	require.NoError(err)

	recs, err := a.LoadMany(ctx, "things", nil, odm.FindOptions{})
	require.NoError(err)
	require.Len(recs, 3)
	require.Equal("first again", recs[0]["name"])
	require.Equal("third", recs[2]["name"])
}

func TestReopen(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docmap.bolt")

	a, err := Open(path)
	require.NoError(err)
	require.NoError(a.CreateIndex(ctx, "users", "email", odm.IndexOptions{Unique: true}))
	id, err := a.Save(ctx, "users", nil, map[string]any{"email": "a@x"})
	require.NoError(err)
	require.NoError(a.Close(ctx))

	b, err := Open(path)
	require.NoError(err)
	t.Cleanup(func() { _ = b.Close(ctx) })

	rec, err := b.LoadOne(ctx, "users", filter.ByID(id))
	require.NoError(err)
	require.Equal("a@x", rec["email"])

	_, err = b.Save(ctx, "users", nil, map[string]any{"email": "a@x"})
	require.ErrorIs(err, odm.ErrDuplicateKey)
}
