// Package mongo implements a storage adapter over MongoDB. Identities are
// ObjectIDs; their 24-character hex form is accepted wherever an id is.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

// ObjectID is the native identity type.
var ObjectID = odm.NewScalar("ObjectID", isObjectID)

func isObjectID(v any) bool {
	switch id := v.(type) {
	case primitive.ObjectID:
		return !id.IsZero()
	case string:
		return primitive.IsValidObjectID(id)
	}
	return false
}

// Adapter talks to one MongoDB database.
type Adapter struct {
	client *mongo.Client
	db     *mongo.Database
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

// Connect dials uri and selects database. The server is pinged so a bad
// address fails here rather than on first use.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Adapter, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	a := &Adapter{client: client, db: client.Database(database), logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger.Debugf("mongo: connected to database %s", database)
	return a, nil
}

var _ odm.Adapter = (*Adapter)(nil)

func wrap(op, coll string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongo: %s %s: %w: %v", op, coll, odm.ErrDuplicateKey, err)
	}
	return fmt.Errorf("mongo: %s %s: %w", op, coll, err)
}

// Save inserts values, or sets them on the record with the given identity,
// upserting when it does not exist.
func (a *Adapter) Save(ctx context.Context, coll string, id any, values map[string]any) (any, error) {
	c := a.db.Collection(coll)
	body := make(bson.M, len(values))
	for k, v := range values {
		if k != filter.IDField {
			body[k] = v
		}
	}
	if id == nil {
		res, err := c.InsertOne(ctx, body)
		if err != nil {
			return nil, wrap("insert into", coll, err)
		}
		if res.InsertedID == nil {
			return nil, odm.ErrNoGeneratedID
		}
		a.logger.Debugf("mongo: inserted %s/%v", coll, res.InsertedID)
		return res.InsertedID, nil
	}

	oid := toObjectID(id)
	_, err := c.UpdateOne(ctx, bson.M{filter.IDField: oid}, bson.M{"$set": body}, options.Update().SetUpsert(true))
	if err != nil {
		return nil, wrap("update", coll, err)
	}
	a.logger.Debugf("mongo: saved %s/%v", coll, oid)
	return oid, nil
}

// Delete removes the record with the given identity.
func (a *Adapter) Delete(ctx context.Context, coll string, id any) (int64, error) {
	if id == nil {
		return 0, nil
	}
	return a.DeleteOne(ctx, coll, filter.ByID(id))
}

// DeleteOne removes the first record matching f.
func (a *Adapter) DeleteOne(ctx context.Context, coll string, f filter.Filter) (int64, error) {
	res, err := a.db.Collection(coll).DeleteOne(ctx, toQuery(f))
	if err != nil {
		return 0, wrap("delete from", coll, err)
	}
	return res.DeletedCount, nil
}

// DeleteMany removes every record matching f.
func (a *Adapter) DeleteMany(ctx context.Context, coll string, f filter.Filter) (int64, error) {
	res, err := a.db.Collection(coll).DeleteMany(ctx, toQuery(f))
	if err != nil {
		return 0, wrap("delete from", coll, err)
	}
	return res.DeletedCount, nil
}

// LoadOne returns the first record matching f, or nil.
func (a *Adapter) LoadOne(ctx context.Context, coll string, f filter.Filter) (map[string]any, error) {
	var doc bson.M
	err := a.db.Collection(coll).FindOne(ctx, toQuery(f)).Decode(&doc)
	return decodeOne(coll, "load from", doc, err)
}

// LoadOneAndUpdate sets values on the first match and returns the updated
// record. With opts.Upsert a missing record is inserted.
func (a *Adapter) LoadOneAndUpdate(ctx context.Context, coll string, f filter.Filter, values map[string]any, opts odm.UpdateOptions) (map[string]any, error) {
	set := make(bson.M, len(values))
	for k, v := range values {
		if k != filter.IDField {
			set[k] = v
		}
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	} else {
		// An update document must carry an operator.
		update["$setOnInsert"] = bson.M{}
	}
	fo := options.FindOneAndUpdate().SetUpsert(opts.Upsert).SetReturnDocument(options.After)
	var doc bson.M
	err := a.db.Collection(coll).FindOneAndUpdate(ctx, toQuery(f), update, fo).Decode(&doc)
	return decodeOne(coll, "update", doc, err)
}

// LoadOneAndDelete removes the first match and returns it.
func (a *Adapter) LoadOneAndDelete(ctx context.Context, coll string, f filter.Filter) (map[string]any, error) {
	var doc bson.M
	err := a.db.Collection(coll).FindOneAndDelete(ctx, toQuery(f)).Decode(&doc)
	return decodeOne(coll, "delete from", doc, err)
}

func decodeOne(coll, op string, doc bson.M, err error) (map[string]any, error) {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(op, coll, err)
	}
	return toPlainMap(doc), nil
}

// LoadMany returns the matching records.
func (a *Adapter) LoadMany(ctx context.Context, coll string, f filter.Filter, opts odm.FindOptions) ([]map[string]any, error) {
	fo := options.Find()
	if len(opts.Sort) > 0 {
		fo.SetSort(toSort(opts.Sort))
	}
	if opts.Skip > 0 {
		fo.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	cur, err := a.db.Collection(coll).Find(ctx, toQuery(f), fo)
	if err != nil {
		return nil, wrap("find in", coll, err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, wrap("read cursor of", coll, err)
	}
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = toPlainMap(d)
	}
	return out, nil
}

// Count returns the number of records matching f.
func (a *Adapter) Count(ctx context.Context, coll string, f filter.Filter) (int64, error) {
	n, err := a.db.Collection(coll).CountDocuments(ctx, toQuery(f))
	if err != nil {
		return 0, wrap("count", coll, err)
	}
	return n, nil
}

// CreateIndex creates an ascending single-field index.
func (a *Adapter) CreateIndex(ctx context.Context, coll, field string, opts odm.IndexOptions) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(opts.Unique).SetSparse(opts.Sparse),
	}
	_, err := a.db.Collection(coll).Indexes().CreateOne(ctx, model)
	return wrap("create index on", coll, err)
}

// ClearCollection deletes every record and keeps the indexes.
func (a *Adapter) ClearCollection(ctx context.Context, coll string) error {
	_, err := a.db.Collection(coll).DeleteMany(ctx, bson.M{})
	return wrap("clear", coll, err)
}

// DropDatabase drops the whole database.
func (a *Adapter) DropDatabase(ctx context.Context) error {
	return wrap("drop", a.db.Name(), a.db.Drop(ctx))
}

// Close disconnects the client.
func (a *Adapter) Close(ctx context.Context) error {
	if err := a.client.Disconnect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("mongo: disconnect: %w", err)
	}
	return nil
}

// ToCanonicalID renders ObjectIDs as hex and everything else with %v.
func (a *Adapter) ToCanonicalID(id any) string {
	if oid, ok := id.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(id)
}

// IsNativeID reports whether v is an ObjectID or its hex form.
func (a *Adapter) IsNativeID(v any) bool { return isObjectID(v) }

// NativeIDType returns ObjectID.
func (a *Adapter) NativeIDType() *odm.Scalar { return ObjectID }

// toObjectID converts hex strings to ObjectIDs and leaves other values alone.
func toObjectID(v any) any {
	if s, ok := v.(string); ok {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	return v
}

// toQuery rewrites a filter for the driver: identity values given as hex
// strings become ObjectIDs, including inside $in, $nin, $eq and $ne.
func toQuery(f filter.Filter) bson.M {
	out := make(bson.M, len(f))
	for k, v := range f {
		switch k {
		case filter.IDField:
			out[k] = idCondition(v)
		case "$and", "$or", "$nor":
			subs, _ := filter.ToSlice(v)
			conv := make(bson.A, len(subs))
			for i, s := range subs {
				if m, ok := filter.ToMap(s); ok {
					conv[i] = toQuery(m)
				} else {
					conv[i] = s
				}
			}
			out[k] = conv
		default:
			out[k] = v
		}
	}
	return out
}

func idCondition(v any) any {
	m, ok := filter.ToMap(v)
	if !ok {
		return toObjectID(v)
	}
	out := make(bson.M, len(m))
	for op, operand := range m {
		switch op {
		case "$in", "$nin":
			vals, _ := filter.ToSlice(operand)
			conv := make(bson.A, len(vals))
			for i, e := range vals {
				conv[i] = toObjectID(e)
			}
			out[op] = conv
		case "$eq", "$ne":
			out[op] = toObjectID(operand)
		default:
			out[op] = operand
		}
	}
	return out
}

func toSort(keys []filter.SortKey) bson.D {
	d := make(bson.D, len(keys))
	for i, k := range keys {
		dir := 1
		if k.Desc {
			dir = -1
		}
		d[i] = bson.E{Key: k.Field, Value: dir}
	}
	return d
}

// toPlainMap converts a decoded BSON document into plain Go values.
func toPlainMap(doc bson.M) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = toPlain(v)
	}
	return out
}

func toPlain(v any) any {
	switch tv := v.(type) {
	case bson.M:
		return toPlainMap(tv)
	case map[string]any:
		return toPlainMap(tv)
	case bson.D:
		out := make(map[string]any, len(tv))
		for _, e := range tv {
			out[e.Key] = toPlain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = toPlain(e)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = toPlain(e)
		}
		return out
	case primitive.DateTime:
		return tv.Time().UTC()
	case time.Time:
		return tv.UTC()
	case int32:
		return int64(tv)
	}
	return v
}
