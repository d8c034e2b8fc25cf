// Package odm provides the persistence pipeline that moves documents through a storage adapter.
package odm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CaliLuke/go-docmap/filter"
)

// Store runs documents through validation, hooks and an Adapter. It is safe
// for concurrent use when the adapter is.
type Store struct {
	adapter Adapter
	logger  *zap.SugaredLogger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for debug traces of backend operations.
func WithLogger(logger *zap.SugaredLogger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore wraps an adapter.
func NewStore(adapter Adapter, opts ...StoreOption) *Store {
	s := &Store{adapter: adapter, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Adapter returns the underlying storage adapter.
func (s *Store) Adapter() Adapter { return s.adapter }

// ToCanonicalID delegates to the adapter.
func (s *Store) ToCanonicalID(id any) string { return s.adapter.ToCanonicalID(id) }

// IsNativeID delegates to the adapter.
func (s *Store) IsNativeID(v any) bool { return s.adapter.IsNativeID(v) }

// Save validates and persists d. The pipeline is PreValidate, Validate,
// PostValidate, Canonicalize, PreSave, backend write, PostSave. Hooks of
// embedded documents run before their parent's. An insert assigns the
// generated identity to d.
func (s *Store) Save(ctx context.Context, d *Document) error {
	if d == nil {
		return fmt.Errorf("save: document must not be nil")
	}
	if err := checkCtx(ctx, "save", d.dt.name); err != nil {
		return err
	}
	coll, err := s.collection("save", d.dt)
	if err != nil {
		return err
	}

	if err := runHooks(ctx, d, func(h Hooks) hookFunc { return h.PreValidate }); err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if err := d.validateID(s.adapter.NativeIDType()); err != nil {
		return err
	}
	if err := runHooks(ctx, d, func(h Hooks) hookFunc { return h.PostValidate }); err != nil {
		return err
	}
	d.Canonicalize()
	if err := runHooks(ctx, d, func(h Hooks) hookFunc { return h.PreSave }); err != nil {
		return err
	}

	data, err := d.ToData()
	if err != nil {
		return &PersistenceError{Op: "save", Collection: coll, Cause: err}
	}
	delete(data, IDField)

	id, err := s.adapter.Save(ctx, coll, d.ID(), data)
	if err != nil {
		return &PersistenceError{Op: "save", Collection: coll, Cause: err}
	}
	if id == nil {
		return &PersistenceError{Op: "save", Collection: coll, Cause: ErrNoGeneratedID}
	}
	d.SetID(id)
	s.logger.Debugf("saved %s %s", coll, s.adapter.ToCanonicalID(id))

	return runHooks(ctx, d, func(h Hooks) hookFunc { return h.PostSave })
}

// Delete removes d from its collection, running PreDelete and PostDelete.
// Deleting an unsaved document is a no-op that returns 0.
func (s *Store) Delete(ctx context.Context, d *Document) (int64, error) {
	if d == nil {
		return 0, fmt.Errorf("delete: document must not be nil")
	}
	if err := checkCtx(ctx, "delete", d.dt.name); err != nil {
		return 0, err
	}
	coll, err := s.collection("delete", d.dt)
	if err != nil {
		return 0, err
	}
	if d.IsNew() {
		return 0, nil
	}

	if err := runHooks(ctx, d, func(h Hooks) hookFunc { return h.PreDelete }); err != nil {
		return 0, err
	}
	n, err := s.adapter.Delete(ctx, coll, d.ID())
	if err != nil {
		return 0, &PersistenceError{Op: "delete", Collection: coll, Cause: err}
	}
	s.logger.Debugf("deleted %s %s (%d)", coll, s.adapter.ToCanonicalID(d.ID()), n)
	if err := runHooks(ctx, d, func(h Hooks) hookFunc { return h.PostDelete }); err != nil {
		return n, err
	}
	return n, nil
}

// LoadOne returns the first document of dt matching f, or nil when none does.
func (s *Store) LoadOne(ctx context.Context, dt *DocumentType, f filter.Filter, opts LoadOptions) (*Document, error) {
	if err := checkCtx(ctx, "load", dt.name); err != nil {
		return nil, err
	}
	coll, err := s.collection("load", dt)
	if err != nil {
		return nil, err
	}
	rec, err := s.adapter.LoadOne(ctx, coll, f)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Collection: coll, Cause: err}
	}
	if rec == nil {
		return nil, nil
	}
	d, err := dt.Hydrate(rec)
	if err != nil {
		return nil, err
	}
	if opts.Populate {
		if _, err := Populate(ctx, s, d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// LoadMany returns every document of dt matching f, in backend order unless
// opts.Sort is set.
func (s *Store) LoadMany(ctx context.Context, dt *DocumentType, f filter.Filter, opts LoadOptions) ([]*Document, error) {
	if err := checkCtx(ctx, "load", dt.name); err != nil {
		return nil, err
	}
	coll, err := s.collection("load", dt)
	if err != nil {
		return nil, err
	}
	recs, err := s.adapter.LoadMany(ctx, coll, f, opts.find())
	if err != nil {
		return nil, &PersistenceError{Op: "load", Collection: coll, Cause: err}
	}
	s.logger.Debugf("loaded %d from %s", len(recs), coll)
	docs, err := dt.HydrateMany(recs)
	if err != nil {
		return nil, err
	}
	if opts.Populate {
		return Populate(ctx, s, docs...)
	}
	return docs, nil
}

// LoadOneAndUpdate sets values on the first document matching f and returns
// the updated document. Embedded documents in values are converted to
// records and referenced documents to their ids. With opts.Upsert a missing
// document is inserted. It returns nil when nothing matched and no upsert
// happened.
func (s *Store) LoadOneAndUpdate(ctx context.Context, dt *DocumentType, f filter.Filter, values map[string]any, opts UpdateOptions) (*Document, error) {
	if err := checkCtx(ctx, "update", dt.name); err != nil {
		return nil, err
	}
	coll, err := s.collection("update", dt)
	if err != nil {
		return nil, err
	}
	data := make(map[string]any, len(values))
	for k, v := range values {
		if !dt.schema.Has(k) || k == IDField {
			return nil, &ValidationError{Collection: coll, Field: k, Message: fmt.Sprintf("%s is not a field of %s", k, dt.name)}
		}
		dv, err := toDataValue(v)
		if err != nil {
			return nil, &PersistenceError{Op: "update", Collection: coll, Field: k, Cause: err}
		}
		data[k] = dv
	}

	rec, err := s.adapter.LoadOneAndUpdate(ctx, coll, f, data, opts)
	if err != nil {
		return nil, &PersistenceError{Op: "update", Collection: coll, Cause: err}
	}
	if rec == nil {
		return nil, nil
	}
	return dt.Hydrate(rec)
}

// LoadOneAndDelete removes the first document matching f and returns it, or
// nil when none matched.
func (s *Store) LoadOneAndDelete(ctx context.Context, dt *DocumentType, f filter.Filter) (*Document, error) {
	if err := checkCtx(ctx, "delete", dt.name); err != nil {
		return nil, err
	}
	coll, err := s.collection("delete", dt)
	if err != nil {
		return nil, err
	}
	rec, err := s.adapter.LoadOneAndDelete(ctx, coll, f)
	if err != nil {
		return nil, &PersistenceError{Op: "delete", Collection: coll, Cause: err}
	}
	if rec == nil {
		return nil, nil
	}
	return dt.Hydrate(rec)
}

// DeleteOne removes the first document matching f.
func (s *Store) DeleteOne(ctx context.Context, dt *DocumentType, f filter.Filter) (int64, error) {
	return s.deleteWhere(ctx, dt, f, s.adapter.DeleteOne)
}

// DeleteMany removes every document matching f.
func (s *Store) DeleteMany(ctx context.Context, dt *DocumentType, f filter.Filter) (int64, error) {
	return s.deleteWhere(ctx, dt, f, s.adapter.DeleteMany)
}

func (s *Store) deleteWhere(ctx context.Context, dt *DocumentType, f filter.Filter,
	del func(context.Context, string, filter.Filter) (int64, error)) (int64, error) {
	if err := checkCtx(ctx, "delete", dt.name); err != nil {
		return 0, err
	}
	coll, err := s.collection("delete", dt)
	if err != nil {
		return 0, err
	}
	n, err := del(ctx, coll, f)
	if err != nil {
		return 0, &PersistenceError{Op: "delete", Collection: coll, Cause: err}
	}
	s.logger.Debugf("deleted %d from %s", n, coll)
	return n, nil
}

// Count returns the number of documents of dt matching f.
func (s *Store) Count(ctx context.Context, dt *DocumentType, f filter.Filter) (int64, error) {
	if err := checkCtx(ctx, "count", dt.name); err != nil {
		return 0, err
	}
	coll, err := s.collection("count", dt)
	if err != nil {
		return 0, err
	}
	n, err := s.adapter.Count(ctx, coll, f)
	if err != nil {
		return 0, &PersistenceError{Op: "count", Collection: coll, Cause: err}
	}
	return n, nil
}

// EnsureIndexes creates a unique sparse index for every unique field of dt.
func (s *Store) EnsureIndexes(ctx context.Context, dt *DocumentType) error {
	if err := checkCtx(ctx, "index", dt.name); err != nil {
		return err
	}
	coll, err := s.collection("index", dt)
	if err != nil {
		return err
	}
	for _, name := range dt.schema.order {
		if !dt.schema.fields[name].Unique {
			continue
		}
		if err := s.adapter.CreateIndex(ctx, coll, name, IndexOptions{Unique: true, Sparse: true}); err != nil {
			return &PersistenceError{Op: "index", Collection: coll, Field: name, Cause: err}
		}
		s.logger.Debugf("ensured unique index %s.%s", coll, name)
	}
	return nil
}

// ClearCollection removes every document of dt.
func (s *Store) ClearCollection(ctx context.Context, dt *DocumentType) error {
	if err := checkCtx(ctx, "clear", dt.name); err != nil {
		return err
	}
	coll, err := s.collection("clear", dt)
	if err != nil {
		return err
	}
	if err := s.adapter.ClearCollection(ctx, coll); err != nil {
		return &PersistenceError{Op: "clear", Collection: coll, Cause: err}
	}
	return nil
}

// DropDatabase removes every collection of the backend.
func (s *Store) DropDatabase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("drop: context cancelled: %w", err)
	}
	if err := s.adapter.DropDatabase(ctx); err != nil {
		return &PersistenceError{Op: "drop", Cause: err}
	}
	return nil
}

// Populate resolves one level of references on docs.
func (s *Store) Populate(ctx context.Context, docs ...*Document) ([]*Document, error) {
	return Populate(ctx, s, docs...)
}

// Close releases the adapter.
func (s *Store) Close(ctx context.Context) error {
	return s.adapter.Close(ctx)
}

func (s *Store) collection(op string, dt *DocumentType) (string, error) {
	if dt.embedded {
		return "", &ConfigurationError{TypeName: dt.name, Message: op + ": embedded documents have no collection"}
	}
	return dt.collection, nil
}

type hookFunc = func(ctx context.Context, d *Document) error

// runHooks runs one hook stage on every embedded descendant of d (children
// first) and then on d itself.
func runHooks(ctx context.Context, d *Document, pick func(Hooks) hookFunc) error {
	for _, e := range embeddedDescendants(d) {
		if fn := pick(e.dt.hooks); fn != nil {
			if err := fn(ctx, e); err != nil {
				return err
			}
		}
	}
	if fn := pick(d.dt.hooks); fn != nil {
		return fn(ctx, d)
	}
	return nil
}

func embeddedDescendants(d *Document) []*Document {
	var out []*Document
	visit := func(v any) {
		if e, ok := v.(*Document); ok && e.dt.embedded {
			out = append(out, embeddedDescendants(e)...)
			out = append(out, e)
		}
	}
	for _, name := range d.dt.schema.order {
		v := d.values[name]
		if elems, ok := filter.ToSlice(v); ok {
			for _, e := range elems {
				visit(e)
			}
			continue
		}
		visit(v)
	}
	return out
}

func checkCtx(ctx context.Context, op, typeName string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %s: context cancelled: %w", op, typeName, err)
	}
	return nil
}
