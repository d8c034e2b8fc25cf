package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CaliLuke/go-docmap/adapters/adaptertest"
	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

func openTemp(t *testing.T) *Adapter {
	t.Helper()
	a, err := Open(context.Background(), filepath.Join(t.TempDir(), "docmap.db"))
	require.NoError(t, err)
	return a
}

func TestTechnologyCompatibilityKit(t *testing.T) {
	adaptertest.TechnologyCompatibilityKit(t, func(t *testing.T) odm.Adapter { return openTemp(t) })
}

func TestInMemoryDatabase(t *testing.T) {
	adaptertest.TechnologyCompatibilityKit(t, func(t *testing.T) odm.Adapter {
		a, err := Open(context.Background(), ":memory:")
		require.NoError(t, err)
		return a
	})
}

func TestReopenKeepsRecordsAndIndexes(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docmap.db")

	a, err := Open(ctx, path)
	require.NoError(err)
	require.NoError(a.CreateIndex(ctx, "users", "email", odm.IndexOptions{Unique: true}))
	id, err := a.Save(ctx, "users", nil, map[string]any{"email": "a@x", "age": int64(7)})
	require.NoError(err)
	require.NoError(a.Close(ctx))

	b, err := Open(ctx, path)
	require.NoError(err)
	t.Cleanup(func() { _ = b.Close(ctx) })

	rec, err := b.LoadOne(ctx, "users", filter.ByID(id))
	require.NoError(err)
	require.Equal("a@x", rec["email"])
	require.Equal(int64(7), rec["age"])

	_, err = b.Save(ctx, "users", nil, map[string]any{"email": "a@x"})
	require.ErrorIs(err, odm.ErrDuplicateKey)
}

func TestQuotedCollectionNames(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	a := openTemp(t)
	t.Cleanup(func() { _ = a.Close(ctx) })

	const odd = `we"ird coll`
	_, err := a.Save(ctx, odd, nil, map[string]any{"n": int64(1)})
	require.NoError(err)
	n, err := a.Count(ctx, odd, nil)
	require.NoError(err)
	require.EqualValues(1, n)
}
