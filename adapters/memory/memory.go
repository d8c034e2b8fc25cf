// Package memory implements an in-process storage adapter. It is the
// backend behind nedb:// URLs and the reference for the other adapters.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/CaliLuke/go-docmap/adapters/internal/recordset"
	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

// UUID is the native identity type: a canonical UUID string.
var UUID = odm.NewScalar("UUID", func(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
})

type collection struct {
	records []map[string]any
	indexes map[string]odm.IndexOptions
}

// Adapter keeps every collection in memory. Records are cloned on the way
// in and out. It is safe for concurrent use.
type Adapter struct {
	mu     sync.RWMutex
	colls  map[string]*collection
	logger *zap.SugaredLogger
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an empty in-memory adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		colls:  make(map[string]*collection),
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ odm.Adapter = (*Adapter)(nil)

func (a *Adapter) coll(name string) *collection {
	c, ok := a.colls[name]
	if !ok {
		c = &collection{indexes: make(map[string]odm.IndexOptions)}
		a.colls[name] = c
	}
	return c
}

func (c *collection) indexOf(id string) int {
	for i, r := range c.records {
		if fmt.Sprint(r[filter.IDField]) == id {
			return i
		}
	}
	return -1
}

// Save inserts or replaces the fields of a record.
func (a *Adapter) Save(ctx context.Context, collName string, id any, values map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.coll(collName)

	if id == nil {
		id = uuid.NewString()
	}
	rec := recordset.Clone(values)
	rec[filter.IDField] = id

	i := c.indexOf(a.ToCanonicalID(id))
	if i >= 0 {
		merged := recordset.Clone(c.records[i])
		recordset.Set(merged, values)
		rec = merged
	}
	if err := recordset.CheckUnique(c.records, rec, c.indexes, a.ToCanonicalID); err != nil {
		return nil, err
	}
	if i >= 0 {
		c.records[i] = rec
	} else {
		c.records = append(c.records, rec)
	}
	a.logger.Debugf("memory: saved %s/%v", collName, id)
	return id, nil
}

// Delete removes the record with the given identity.
func (a *Adapter) Delete(ctx context.Context, collName string, id any) (int64, error) {
	if id == nil {
		return 0, nil
	}
	return a.remove(ctx, collName, filter.ByID(id), 1)
}

// DeleteOne removes the first record matching f.
func (a *Adapter) DeleteOne(ctx context.Context, collName string, f filter.Filter) (int64, error) {
	return a.remove(ctx, collName, f, 1)
}

// DeleteMany removes every record matching f.
func (a *Adapter) DeleteMany(ctx context.Context, collName string, f filter.Filter) (int64, error) {
	return a.remove(ctx, collName, f, -1)
}

func (a *Adapter) remove(ctx context.Context, collName string, f filter.Filter, limit int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.colls[collName]
	if !ok {
		return 0, nil
	}

	kept := c.records[:0:0]
	var n int64
	for _, r := range c.records {
		matched, err := filter.Match(f, r)
		if err != nil {
			return 0, err
		}
		if matched && (limit < 0 || n < limit) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	c.records = kept
	return n, nil
}

// LoadOne returns a copy of the first record matching f.
func (a *Adapter) LoadOne(ctx context.Context, collName string, f filter.Filter) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.colls[collName]
	if !ok {
		return nil, nil
	}
	rec, err := recordset.First(c.records, f)
	if err != nil {
		return nil, err
	}
	return recordset.Clone(rec), nil
}

// LoadOneAndUpdate sets values on the first match, inserting a new record
// seeded from the filter's equality clauses when opts.Upsert is set.
func (a *Adapter) LoadOneAndUpdate(ctx context.Context, collName string, f filter.Filter, values map[string]any, opts odm.UpdateOptions) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.coll(collName)

	rec, err := recordset.First(c.records, f)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		if !opts.Upsert {
			return nil, nil
		}
		rec = recordset.SeedFromFilter(f)
		if _, ok := rec[filter.IDField]; !ok {
			rec[filter.IDField] = uuid.NewString()
		}
		recordset.Set(rec, values)
		if err := recordset.CheckUnique(c.records, rec, c.indexes, a.ToCanonicalID); err != nil {
			return nil, err
		}
		c.records = append(c.records, rec)
		return recordset.Clone(rec), nil
	}

	updated := recordset.Clone(rec)
	recordset.Set(updated, values)
	if err := recordset.CheckUnique(c.records, updated, c.indexes, a.ToCanonicalID); err != nil {
		return nil, err
	}
	c.records[c.indexOf(a.ToCanonicalID(rec[filter.IDField]))] = updated
	return recordset.Clone(updated), nil
}

// LoadOneAndDelete removes the first match and returns it.
func (a *Adapter) LoadOneAndDelete(ctx context.Context, collName string, f filter.Filter) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.colls[collName]
	if !ok {
		return nil, nil
	}
	rec, err := recordset.First(c.records, f)
	if err != nil || rec == nil {
		return nil, err
	}
	i := c.indexOf(a.ToCanonicalID(rec[filter.IDField]))
	c.records = append(c.records[:i:i], c.records[i+1:]...)
	return rec, nil
}

// LoadMany returns copies of the matching records in insertion order unless
// opts sorts them.
func (a *Adapter) LoadMany(ctx context.Context, collName string, f filter.Filter, opts odm.FindOptions) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.colls[collName]
	if !ok {
		return nil, nil
	}
	recs, err := recordset.Select(c.records, f, opts)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(recs))
	for i, r := range recs {
		out[i] = recordset.Clone(r)
	}
	return out, nil
}

// Count returns the number of records matching f.
func (a *Adapter) Count(ctx context.Context, collName string, f filter.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.colls[collName]
	if !ok {
		return 0, nil
	}
	recs, err := recordset.Select(c.records, f, odm.FindOptions{})
	return int64(len(recs)), err
}

// CreateIndex registers a unique constraint. Existing duplicates are rejected.
func (a *Adapter) CreateIndex(ctx context.Context, collName, field string, opts odm.IndexOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.coll(collName)
	probe := map[string]odm.IndexOptions{field: opts}
	for _, r := range c.records {
		if err := recordset.CheckUnique(c.records, r, probe, a.ToCanonicalID); err != nil {
			return err
		}
	}
	c.indexes[field] = opts
	return nil
}

// ClearCollection removes every record of a collection and keeps its indexes.
func (a *Adapter) ClearCollection(ctx context.Context, collName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.colls[collName]; ok {
		c.records = nil
	}
	return nil
}

// DropDatabase removes every collection.
func (a *Adapter) DropDatabase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.colls = make(map[string]*collection)
	return nil
}

// Close is a no-op.
func (a *Adapter) Close(context.Context) error { return nil }

// ToCanonicalID renders an identity as a string.
func (a *Adapter) ToCanonicalID(id any) string {
	return fmt.Sprint(id)
}

// IsNativeID reports whether v is a UUID string.
func (a *Adapter) IsNativeID(v any) bool {
	return v != nil && UUID.Accepts(v)
}

// NativeIDType returns UUID.
func (a *Adapter) NativeIDType() *odm.Scalar { return UUID }
