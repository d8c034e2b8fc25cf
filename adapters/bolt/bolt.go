// Package bolt implements a storage adapter over a bbolt file. Each
// collection is a bucket holding msgpack-encoded records in insertion order.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/CaliLuke/go-docmap/adapters/internal/recordset"
	"github.com/CaliLuke/go-docmap/adapters/memory"
	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

var (
	recordsBucket = []byte("records")
	idsBucket     = []byte("ids")
	indexBucket   = []byte("_docmap_indexes")
)

// Adapter stores collections in a bbolt database. bbolt serializes writers,
// so unique checks run inside the update transaction.
type Adapter struct {
	db     *bolt.DB
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

// Open opens (or creates) the bbolt file at path.
func Open(path string, opts ...Option) (*Adapter, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: init %s: %w", path, err)
	}
	a := &Adapter{db: db, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger.Debugf("bolt: opened %s", path)
	return a, nil
}

var _ odm.Adapter = (*Adapter)(nil)

// coll is one collection bucket with its nested record and id buckets.
type coll struct {
	name    string
	records *bolt.Bucket
	ids     *bolt.Bucket
}

func readColl(tx *bolt.Tx, name string) *coll {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil
	}
	return &coll{name: name, records: b.Bucket(recordsBucket), ids: b.Bucket(idsBucket)}
}

func writeColl(tx *bolt.Tx, name string) (*coll, error) {
	b, err := tx.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("bolt: bucket %s: %w", name, err)
	}
	records, err := b.CreateBucketIfNotExists(recordsBucket)
	if err != nil {
		return nil, err
	}
	ids, err := b.CreateBucketIfNotExists(idsBucket)
	if err != nil {
		return nil, err
	}
	return &coll{name: name, records: records, ids: ids}, nil
}

func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

// all decodes every record in insertion order.
func (c *coll) all() ([]map[string]any, error) {
	if c == nil {
		return nil, nil
	}
	var out []map[string]any
	err := c.records.ForEach(func(_, v []byte) error {
		rec, err := recordset.Decode(v)
		if err != nil {
			return fmt.Errorf("bolt: %s: %w", c.name, err)
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// put writes rec, reusing the sequence key of an existing record.
func (c *coll) put(rec map[string]any) error {
	id := []byte(fmt.Sprint(rec[filter.IDField]))
	key := c.ids.Get(id)
	if key == nil {
		n, err := c.records.NextSequence()
		if err != nil {
			return err
		}
		key = seqKey(n)
		if err := c.ids.Put(id, key); err != nil {
			return err
		}
	}
	blob, err := recordset.Encode(rec)
	if err != nil {
		return err
	}
	return c.records.Put(key, blob)
}

func (c *coll) remove(id any) error {
	k := []byte(fmt.Sprint(id))
	key := c.ids.Get(k)
	if key == nil {
		return nil
	}
	if err := c.records.Delete(key); err != nil {
		return err
	}
	return c.ids.Delete(k)
}

func indexKey(collName, field string) []byte {
	return []byte(collName + "\x00" + field)
}

func indexes(tx *bolt.Tx, collName string) (map[string]odm.IndexOptions, error) {
	out := make(map[string]odm.IndexOptions)
	prefix := collName + "\x00"
	c := tx.Bucket(indexBucket).Cursor()
	for k, v := c.Seek([]byte(prefix)); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, v = c.Next() {
		if len(v) != 2 {
			return nil, fmt.Errorf("bolt: corrupt index entry %q", k)
		}
		out[string(k[len(prefix):])] = odm.IndexOptions{Unique: v[0] == 1, Sparse: v[1] == 1}
	}
	return out, nil
}

func (a *Adapter) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.db.Update(fn)
}

func (a *Adapter) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.db.View(fn)
}

func (a *Adapter) checkedPut(tx *bolt.Tx, c *coll, rec map[string]any, all []map[string]any) error {
	idx, err := indexes(tx, c.name)
	if err != nil {
		return err
	}
	if err := recordset.CheckUnique(all, rec, idx, a.ToCanonicalID); err != nil {
		return err
	}
	return c.put(rec)
}

// Save inserts or replaces the fields of a record.
func (a *Adapter) Save(ctx context.Context, collName string, id any, values map[string]any) (any, error) {
	if id == nil {
		id = uuid.NewString()
	}
	err := a.update(ctx, func(tx *bolt.Tx) error {
		c, err := writeColl(tx, collName)
		if err != nil {
			return err
		}
		all, err := c.all()
		if err != nil {
			return err
		}
		existing, err := recordset.First(all, filter.ByID(id))
		if err != nil {
			return err
		}
		rec := recordset.Clone(values)
		if existing != nil {
			rec = existing
			recordset.Set(rec, values)
		}
		rec[filter.IDField] = id
		return a.checkedPut(tx, c, rec, all)
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debugf("bolt: saved %s/%v", collName, id)
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
	return a.remove(ctx, collName, f, 0)
}

func (a *Adapter) remove(ctx context.Context, collName string, f filter.Filter, limit int64) (int64, error) {
	var n int64
	err := a.update(ctx, func(tx *bolt.Tx) error {
		c := readColl(tx, collName)
		all, err := c.all()
		if err != nil {
			return err
		}
		matched, err := recordset.Select(all, f, odm.FindOptions{Limit: limit})
		if err != nil {
			return err
		}
		for _, r := range matched {
			if err := c.remove(r[filter.IDField]); err != nil {
				return fmt.Errorf("bolt: delete from %s: %w", collName, err)
			}
		}
		n = int64(len(matched))
		return nil
	})
	return n, err
}

// LoadOne returns the first record matching f, or nil.
func (a *Adapter) LoadOne(ctx context.Context, collName string, f filter.Filter) (map[string]any, error) {
	var out map[string]any
	err := a.view(ctx, func(tx *bolt.Tx) error {
		all, err := readColl(tx, collName).all()
		if err != nil {
			return err
		}
		out, err = recordset.First(all, f)
		return err
	})
	return out, err
}

// LoadOneAndUpdate sets values on the first match, inserting a record seeded
// from the filter's equality clauses when opts.Upsert is set.
func (a *Adapter) LoadOneAndUpdate(ctx context.Context, collName string, f filter.Filter, values map[string]any, opts odm.UpdateOptions) (map[string]any, error) {
	var out map[string]any
	err := a.update(ctx, func(tx *bolt.Tx) error {
		c, err := writeColl(tx, collName)
		if err != nil {
			return err
		}
		all, err := c.all()
		if err != nil {
			return err
		}
		rec, err := recordset.First(all, f)
		if err != nil {
			return err
		}
		if rec == nil {
			if !opts.Upsert {
				return nil
			}
			rec = recordset.SeedFromFilter(f)
			if _, ok := rec[filter.IDField]; !ok {
				rec[filter.IDField] = uuid.NewString()
			}
		}
		recordset.Set(rec, values)
		if err := a.checkedPut(tx, c, rec, all); err != nil {
			return err
		}
		out = recordset.Clone(rec)
		return nil
	})
	return out, err
}

// LoadOneAndDelete removes the first match and returns it.
func (a *Adapter) LoadOneAndDelete(ctx context.Context, collName string, f filter.Filter) (map[string]any, error) {
	var out map[string]any
	err := a.update(ctx, func(tx *bolt.Tx) error {
		c := readColl(tx, collName)
		all, err := c.all()
		if err != nil {
			return err
		}
		rec, err := recordset.First(all, f)
		if err != nil || rec == nil {
			return err
		}
		if err := c.remove(rec[filter.IDField]); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// LoadMany returns the matching records.
func (a *Adapter) LoadMany(ctx context.Context, collName string, f filter.Filter, opts odm.FindOptions) ([]map[string]any, error) {
	var out []map[string]any
	err := a.view(ctx, func(tx *bolt.Tx) error {
		all, err := readColl(tx, collName).all()
		if err != nil {
			return err
		}
		out, err = recordset.Select(all, f, opts)
		return err
	})
	return out, err
}

// Count returns the number of records matching f.
func (a *Adapter) Count(ctx context.Context, collName string, f filter.Filter) (int64, error) {
	if len(f) == 0 {
		var n int64
		err := a.view(ctx, func(tx *bolt.Tx) error {
			c := readColl(tx, collName)
			if c == nil {
				return nil
			}
			cur := c.records.Cursor()
			for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
				n++
			}
			return nil
		})
		return n, err
	}
	recs, err := a.LoadMany(ctx, collName, f, odm.FindOptions{})
	return int64(len(recs)), err
}

// CreateIndex records a unique constraint after checking existing records.
func (a *Adapter) CreateIndex(ctx context.Context, collName, field string, opts odm.IndexOptions) error {
	return a.update(ctx, func(tx *bolt.Tx) error {
		all, err := readColl(tx, collName).all()
		if err != nil {
			return err
		}
		probe := map[string]odm.IndexOptions{field: opts}
		for _, r := range all {
			if err := recordset.CheckUnique(all, r, probe, a.ToCanonicalID); err != nil {
				return err
			}
		}
		return tx.Bucket(indexBucket).Put(indexKey(collName, field), []byte{flag(opts.Unique), flag(opts.Sparse)})
	})
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ClearCollection removes every record of a collection and keeps its indexes.
func (a *Adapter) ClearCollection(ctx context.Context, collName string) error {
	return a.update(ctx, func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(collName)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(collName))
	})
}

// DropDatabase deletes every collection bucket and index definition.
func (a *Adapter) DropDatabase(ctx context.Context) error {
	return a.update(ctx, func(tx *bolt.Tx) error {
		var names [][]byte
		err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, append([]byte(nil), name...))
			return nil
		})
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("bolt: drop %s: %w", name, err)
			}
		}
		_, err = tx.CreateBucket(indexBucket)
		return err
	})
}

// Close closes the bbolt file.
func (a *Adapter) Close(context.Context) error {
	return a.db.Close()
}

// ToCanonicalID renders an identity as a string.
func (a *Adapter) ToCanonicalID(id any) string {
	return fmt.Sprint(id)
}

// IsNativeID reports whether v is a UUID string.
func (a *Adapter) IsNativeID(v any) bool {
	return v != nil && memory.UUID.Accepts(v)
}

// NativeIDType returns the UUID scalar shared with the memory adapter.
func (a *Adapter) NativeIDType() *odm.Scalar { return memory.UUID }
