// Package odm provides collection-scoped CRUD operations over a Store.
package odm

import (
	"context"
	"fmt"

	"github.com/CaliLuke/go-docmap/filter"
)

// Manager binds a Store to one document type. Loads populate one level of
// references unless stated otherwise.
type Manager struct {
	store *Store
	dt    *DocumentType
}

// NewManager creates a Manager for dt. It panics when dt is embedded, since
// embedded documents are persisted only through their parent.
func NewManager(store *Store, dt *DocumentType) *Manager {
	if dt.embedded {
		panic(fmt.Sprintf("odm: %s is an embedded type and has no collection", dt.name))
	}
	return &Manager{store: store, dt: dt}
}

// Type returns the managed document type.
func (m *Manager) Type() *DocumentType { return m.dt }

// Create hydrates a new, unsaved document from values.
func (m *Manager) Create(values map[string]any) (*Document, error) {
	return m.dt.Hydrate(values)
}

// Insert creates a document from values and saves it.
func (m *Manager) Insert(ctx context.Context, values map[string]any) (*Document, error) {
	d, err := m.Create(values)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", m.dt.name, err)
	}
	if err := m.store.Save(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Save persists d, inserting it when it has no identity yet.
func (m *Manager) Save(ctx context.Context, d *Document) error {
	if d == nil {
		return fmt.Errorf("save %s: document must not be nil", m.dt.name)
	}
	if d.dt != m.dt {
		return fmt.Errorf("save %s: document is a %s", m.dt.name, d.dt.name)
	}
	return m.store.Save(ctx, d)
}

// Get loads the document with the given identity.
func (m *Manager) Get(ctx context.Context, id any) (*Document, error) {
	d, err := m.store.LoadOne(ctx, m.dt, filter.ByID(id), LoadOptions{Populate: true})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{Collection: m.dt.collection}
	}
	return d, nil
}

// First loads the first document matching f.
func (m *Manager) First(ctx context.Context, f filter.Filter) (*Document, error) {
	d, err := m.store.LoadOne(ctx, m.dt, f, LoadOptions{Populate: true})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{Collection: m.dt.collection}
	}
	return d, nil
}

// Find loads every document matching f with explicit options.
func (m *Manager) Find(ctx context.Context, f filter.Filter, opts LoadOptions) ([]*Document, error) {
	return m.store.LoadMany(ctx, m.dt, f, opts)
}

// All loads every document of the collection.
func (m *Manager) All(ctx context.Context) ([]*Document, error) {
	return m.Find(ctx, nil, LoadOptions{Populate: true})
}

// Count returns the number of documents matching f.
func (m *Manager) Count(ctx context.Context, f filter.Filter) (int64, error) {
	return m.store.Count(ctx, m.dt, f)
}

// Delete removes d.
func (m *Manager) Delete(ctx context.Context, d *Document) (int64, error) {
	return m.store.Delete(ctx, d)
}

// DeleteOne removes the first document matching f.
func (m *Manager) DeleteOne(ctx context.Context, f filter.Filter) (int64, error) {
	return m.store.DeleteOne(ctx, m.dt, f)
}

// DeleteMany removes every document matching f.
func (m *Manager) DeleteMany(ctx context.Context, f filter.Filter) (int64, error) {
	return m.store.DeleteMany(ctx, m.dt, f)
}

// FindOneAndUpdate sets values on the first match and returns the result.
func (m *Manager) FindOneAndUpdate(ctx context.Context, f filter.Filter, values map[string]any, opts UpdateOptions) (*Document, error) {
	d, err := m.store.LoadOneAndUpdate(ctx, m.dt, f, values, opts)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{Collection: m.dt.collection}
	}
	return d, nil
}

// FindOneAndDelete removes the first match and returns it.
func (m *Manager) FindOneAndDelete(ctx context.Context, f filter.Filter) (*Document, error) {
	d, err := m.store.LoadOneAndDelete(ctx, m.dt, f)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{Collection: m.dt.collection}
	}
	return d, nil
}

// EnsureIndexes creates the unique indexes declared by the schema.
func (m *Manager) EnsureIndexes(ctx context.Context) error {
	return m.store.EnsureIndexes(ctx, m.dt)
}
