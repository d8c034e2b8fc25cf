// Package odm defines the storage adapter contract implemented by every backend.
package odm

import (
	"context"

	"github.com/CaliLuke/go-docmap/filter"
)

// Adapter is the contract a storage backend fulfils. Records crossing it are
// plain Go values: map[string]any, []any, time.Time, numbers, strings and
// bools. The identity is stored under filter.IDField in its native form.
//
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Save inserts values when id is nil and returns the generated identity,
	// or replaces the stored fields of id and returns id.
	Save(ctx context.Context, collection string, id any, values map[string]any) (any, error)
	// Delete removes the record with the given identity. A nil id deletes nothing.
	Delete(ctx context.Context, collection string, id any) (int64, error)
	DeleteOne(ctx context.Context, collection string, f filter.Filter) (int64, error)
	DeleteMany(ctx context.Context, collection string, f filter.Filter) (int64, error)
	// LoadOne returns the first matching record, or nil when there is none.
	LoadOne(ctx context.Context, collection string, f filter.Filter) (map[string]any, error)
	// LoadOneAndUpdate applies values to the first match and returns the
	// updated record. With Upsert a missing record is inserted.
	LoadOneAndUpdate(ctx context.Context, collection string, f filter.Filter, values map[string]any, opts UpdateOptions) (map[string]any, error)
	LoadOneAndDelete(ctx context.Context, collection string, f filter.Filter) (map[string]any, error)
	LoadMany(ctx context.Context, collection string, f filter.Filter, opts FindOptions) ([]map[string]any, error)
	Count(ctx context.Context, collection string, f filter.Filter) (int64, error)
	CreateIndex(ctx context.Context, collection, field string, opts IndexOptions) error
	ClearCollection(ctx context.Context, collection string) error
	DropDatabase(ctx context.Context) error
	Close(ctx context.Context) error

	// ToCanonicalID renders an identity as a string usable as a map key.
	ToCanonicalID(id any) string
	// IsNativeID reports whether v has the backend's identity shape.
	IsNativeID(v any) bool
	// NativeIDType is the scalar marker describing the backend's identity.
	NativeIDType() *Scalar
}

// UpdateOptions configures LoadOneAndUpdate.
type UpdateOptions struct {
	Upsert bool
}

// FindOptions configures LoadMany.
type FindOptions struct {
	Sort  []filter.SortKey
	Skip  int64
	Limit int64
}

// IndexOptions configures CreateIndex.
type IndexOptions struct {
	Unique bool
	Sparse bool
}

// LoadOptions configures Store loads. Populate resolves one level of
// references on the loaded documents.
type LoadOptions struct {
	Populate bool
	Sort     []filter.SortKey
	Skip     int64
	Limit    int64
}

func (o LoadOptions) find() FindOptions {
	return FindOptions{Sort: o.Sort, Skip: o.Skip, Limit: o.Limit}
}
