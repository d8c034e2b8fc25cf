// Package sqlite implements a storage adapter over an embedded SQLite
// database. Each collection is a table of msgpack-encoded records keyed by a
// UUID string.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/CaliLuke/go-docmap/adapters/internal/recordset"
	"github.com/CaliLuke/go-docmap/adapters/memory"
	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

const indexTable = "_docmap_indexes"

// Adapter stores records in SQLite. Writes are serialized; unique indexes
// are checked in process inside the write transaction.
type Adapter struct {
	db     *sql.DB
	mu     sync.Mutex
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

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Adapter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// A single connection keeps :memory: databases alive and shared.
	db.SetMaxOpenConns(1)

	a := &Adapter{db: db, logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(a)
	}

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + indexTable + ` (
		collection TEXT NOT NULL,
		field TEXT NOT NULL,
		is_unique INTEGER NOT NULL,
		sparse INTEGER NOT NULL,
		PRIMARY KEY (collection, field)
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create index table: %w", err)
	}
	a.logger.Debugf("sqlite: opened %s", path)
	return a, nil
}

var _ odm.Adapter = (*Adapter)(nil)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (a *Adapter) ensureTable(ctx context.Context, q queryer, coll string) error {
	ddl := `CREATE TABLE IF NOT EXISTS ` + quote(coll) + ` (id TEXT PRIMARY KEY, doc BLOB NOT NULL)`
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", coll, err)
	}
	return nil
}

// selectRecords loads the records of coll in insertion order. Identity
// filters are pushed down; everything else is left to the caller.
func (a *Adapter) selectRecords(ctx context.Context, q queryer, coll string, f filter.Filter) ([]map[string]any, error) {
	if err := a.ensureTable(ctx, q, coll); err != nil {
		return nil, err
	}
	query := `SELECT id, doc FROM ` + quote(coll)
	var args []any
	if ids, ok := filter.IDs(f); ok {
		if len(ids) == 0 {
			return nil, nil
		}
		marks := make([]string, len(ids))
		for i, id := range ids {
			marks[i] = "?"
			args = append(args, a.ToCanonicalID(id))
		}
		query += ` WHERE id IN (` + strings.Join(marks, ",") + `)`
	}
	query += ` ORDER BY rowid`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: select %s: %w", coll, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", coll, err)
		}
		rec, err := recordset.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %s/%s: %w", coll, id, err)
		}
		if rec == nil {
			rec = make(map[string]any)
		}
		rec[filter.IDField] = id
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *Adapter) indexes(ctx context.Context, q queryer, coll string) (map[string]odm.IndexOptions, error) {
	rows, err := q.QueryContext(ctx, `SELECT field, is_unique, sparse FROM `+indexTable+` WHERE collection = ?`, coll)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load indexes of %s: %w", coll, err)
	}
	defer rows.Close()
	out := make(map[string]odm.IndexOptions)
	for rows.Next() {
		var field string
		var opts odm.IndexOptions
		if err := rows.Scan(&field, &opts.Unique, &opts.Sparse); err != nil {
			return nil, fmt.Errorf("sqlite: scan index: %w", err)
		}
		out[field] = opts
	}
	return out, rows.Err()
}

// write runs fn in a transaction holding the write lock.
func (a *Adapter) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// put writes rec after checking the unique indexes against others.
func (a *Adapter) put(ctx context.Context, tx *sql.Tx, coll string, rec map[string]any, others []map[string]any, exists bool) error {
	idx, err := a.indexes(ctx, tx, coll)
	if err != nil {
		return err
	}
	if err := recordset.CheckUnique(others, rec, idx, a.ToCanonicalID); err != nil {
		return err
	}
	id := a.ToCanonicalID(rec[filter.IDField])
	body := recordset.Clone(rec)
	delete(body, filter.IDField)
	blob, err := recordset.Encode(body)
	if err != nil {
		return err
	}
	if exists {
		_, err = tx.ExecContext(ctx, `UPDATE `+quote(coll)+` SET doc = ? WHERE id = ?`, blob, id)
	} else {
		_, err = tx.ExecContext(ctx, `INSERT INTO `+quote(coll)+` (id, doc) VALUES (?, ?)`, id, blob)
	}
	if err != nil {
		return fmt.Errorf("sqlite: write %s/%s: %w", coll, id, err)
	}
	return nil
}

// Save inserts or replaces the fields of a record.
func (a *Adapter) Save(ctx context.Context, coll string, id any, values map[string]any) (any, error) {
	if id == nil {
		id = uuid.NewString()
	}
	err := a.write(ctx, func(tx *sql.Tx) error {
		all, err := a.selectRecords(ctx, tx, coll, nil)
		if err != nil {
			return err
		}
		existing, err := recordset.First(all, filter.ByID(a.ToCanonicalID(id)))
		if err != nil {
			return err
		}
		rec := recordset.Clone(values)
		if existing != nil {
			rec = recordset.Clone(existing)
			recordset.Set(rec, values)
		}
		rec[filter.IDField] = a.ToCanonicalID(id)
		return a.put(ctx, tx, coll, rec, all, existing != nil)
	})
	if err != nil {
		return nil, err
	}
	a.logger.Debugf("sqlite: saved %s/%v", coll, id)
	return a.ToCanonicalID(id), nil
}

// Delete removes the record with the given identity.
func (a *Adapter) Delete(ctx context.Context, coll string, id any) (int64, error) {
	if id == nil {
		return 0, nil
	}
	return a.remove(ctx, coll, filter.ByID(id), 1)
}

// DeleteOne removes the first record matching f.
func (a *Adapter) DeleteOne(ctx context.Context, coll string, f filter.Filter) (int64, error) {
	return a.remove(ctx, coll, f, 1)
}

// DeleteMany removes every record matching f.
func (a *Adapter) DeleteMany(ctx context.Context, coll string, f filter.Filter) (int64, error) {
	return a.remove(ctx, coll, f, 0)
}

func (a *Adapter) remove(ctx context.Context, coll string, f filter.Filter, limit int64) (int64, error) {
	var n int64
	err := a.write(ctx, func(tx *sql.Tx) error {
		recs, err := a.selectRecords(ctx, tx, coll, f)
		if err != nil {
			return err
		}
		matched, err := recordset.Select(recs, f, odm.FindOptions{Limit: limit})
		if err != nil {
			return err
		}
		for _, r := range matched {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+quote(coll)+` WHERE id = ?`, r[filter.IDField]); err != nil {
				return fmt.Errorf("sqlite: delete from %s: %w", coll, err)
			}
		}
		n = int64(len(matched))
		return nil
	})
	return n, err
}

// LoadOne returns the first record matching f, or nil.
func (a *Adapter) LoadOne(ctx context.Context, coll string, f filter.Filter) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs, err := a.selectRecords(ctx, a.db, coll, f)
	if err != nil {
		return nil, err
	}
	return recordset.First(recs, f)
}

// LoadOneAndUpdate sets values on the first match, inserting a record seeded
// from the filter's equality clauses when opts.Upsert is set.
func (a *Adapter) LoadOneAndUpdate(ctx context.Context, coll string, f filter.Filter, values map[string]any, opts odm.UpdateOptions) (map[string]any, error) {
	var out map[string]any
	err := a.write(ctx, func(tx *sql.Tx) error {
		all, err := a.selectRecords(ctx, tx, coll, nil)
		if err != nil {
			return err
		}
		existing, err := recordset.First(all, f)
		if err != nil {
			return err
		}
		var rec map[string]any
		switch {
		case existing != nil:
			rec = recordset.Clone(existing)
		case opts.Upsert:
			rec = recordset.SeedFromFilter(f)
			if id, ok := rec[filter.IDField]; ok {
				rec[filter.IDField] = a.ToCanonicalID(id)
			} else {
				rec[filter.IDField] = uuid.NewString()
			}
		default:
			return nil
		}
		recordset.Set(rec, values)
		if err := a.put(ctx, tx, coll, rec, all, existing != nil); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// LoadOneAndDelete removes the first match and returns it.
func (a *Adapter) LoadOneAndDelete(ctx context.Context, coll string, f filter.Filter) (map[string]any, error) {
	var out map[string]any
	err := a.write(ctx, func(tx *sql.Tx) error {
		recs, err := a.selectRecords(ctx, tx, coll, f)
		if err != nil {
			return err
		}
		rec, err := recordset.First(recs, f)
		if err != nil || rec == nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+quote(coll)+` WHERE id = ?`, rec[filter.IDField]); err != nil {
			return fmt.Errorf("sqlite: delete from %s: %w", coll, err)
		}
		out = rec
		return nil
	})
	return out, err
}

// LoadMany returns the matching records.
func (a *Adapter) LoadMany(ctx context.Context, coll string, f filter.Filter, opts odm.FindOptions) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs, err := a.selectRecords(ctx, a.db, coll, f)
	if err != nil {
		return nil, err
	}
	return recordset.Select(recs, f, opts)
}

// Count returns the number of records matching f. An empty filter is
// counted in SQL.
func (a *Adapter) Count(ctx context.Context, coll string, f filter.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(f) == 0 {
		if err := a.ensureTable(ctx, a.db, coll); err != nil {
			return 0, err
		}
		var n int64
		if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quote(coll)).Scan(&n); err != nil {
			return 0, fmt.Errorf("sqlite: count %s: %w", coll, err)
		}
		return n, nil
	}
	recs, err := a.LoadMany(ctx, coll, f, odm.FindOptions{})
	return int64(len(recs)), err
}

// CreateIndex records a unique constraint after checking existing records.
func (a *Adapter) CreateIndex(ctx context.Context, coll, field string, opts odm.IndexOptions) error {
	return a.write(ctx, func(tx *sql.Tx) error {
		all, err := a.selectRecords(ctx, tx, coll, nil)
		if err != nil {
			return err
		}
		probe := map[string]odm.IndexOptions{field: opts}
		for _, r := range all {
			if err := recordset.CheckUnique(all, r, probe, a.ToCanonicalID); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO `+indexTable+` (collection, field, is_unique, sparse) VALUES (?, ?, ?, ?)`,
			coll, field, flag(opts.Unique), flag(opts.Sparse))
		if err != nil {
			return fmt.Errorf("sqlite: create index %s.%s: %w", coll, field, err)
		}
		return nil
	})
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ClearCollection deletes every record of a collection and keeps its indexes.
func (a *Adapter) ClearCollection(ctx context.Context, coll string) error {
	return a.write(ctx, func(tx *sql.Tx) error {
		if err := a.ensureTable(ctx, tx, coll); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+quote(coll)); err != nil {
			return fmt.Errorf("sqlite: clear %s: %w", coll, err)
		}
		return nil
	})
}

// DropDatabase drops every collection table and index definition.
func (a *Adapter) DropDatabase(ctx context.Context) error {
	return a.write(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != ?`, indexTable)
		if err != nil {
			return fmt.Errorf("sqlite: list tables: %w", err)
		}
		var tables []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return err
			}
			tables = append(tables, name)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, name := range tables {
			if _, err := tx.ExecContext(ctx, `DROP TABLE `+quote(name)); err != nil {
				return fmt.Errorf("sqlite: drop %s: %w", name, err)
			}
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM `+indexTable)
		return err
	})
}

// Close closes the database.
func (a *Adapter) Close(context.Context) error {
	if err := a.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
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
