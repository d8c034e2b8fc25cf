package odm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/CaliLuke/go-docmap/filter"
)

// mockAdapter is a minimal in-memory Adapter that records the operations it sees.
type mockAdapter struct {
	mu      sync.Mutex
	next    int
	colls   map[string][]map[string]any
	ops     []string
	indexes []string
	failOn  string
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{colls: make(map[string][]map[string]any)}
}

func (m *mockAdapter) record(op, coll string) error {
	m.ops = append(m.ops, op+" "+coll)
	if m.failOn == op {
		return fmt.Errorf("%s failed", op)
	}
	return nil
}

func (m *mockAdapter) Save(_ context.Context, coll string, id any, values map[string]any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("save", coll); err != nil {
		return nil, err
	}
	if id == nil {
		m.next++
		id = fmt.Sprintf("id%d", m.next)
	}
	rec := map[string]any{filter.IDField: id}
	for k, v := range values {
		rec[k] = v
	}
	for i, r := range m.colls[coll] {
		if r[filter.IDField] == id {
			m.colls[coll][i] = rec
			return id, nil
		}
	}
	m.colls[coll] = append(m.colls[coll], rec)
	return id, nil
}

func (m *mockAdapter) Delete(ctx context.Context, coll string, id any) (int64, error) {
	return m.DeleteMany(ctx, coll, filter.ByID(id))
}

func (m *mockAdapter) DeleteOne(_ context.Context, coll string, f filter.Filter) (int64, error) {
	return m.remove(coll, f, 1)
}

func (m *mockAdapter) DeleteMany(_ context.Context, coll string, f filter.Filter) (int64, error) {
	return m.remove(coll, f, -1)
}

func (m *mockAdapter) remove(coll string, f filter.Filter, limit int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete", coll); err != nil {
		return 0, err
	}
	var kept []map[string]any
	var n int64
	for _, r := range m.colls[coll] {
		ok, err := filter.Match(f, r)
		if err != nil {
			return 0, err
		}
		if ok && (limit < 0 || n < int64(limit)) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.colls[coll] = kept
	return n, nil
}

func (m *mockAdapter) find(coll string, f filter.Filter) ([]map[string]any, error) {
	var out []map[string]any
	for _, r := range m.colls[coll] {
		ok, err := filter.Match(f, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockAdapter) LoadOne(_ context.Context, coll string, f filter.Filter) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("loadOne", coll); err != nil {
		return nil, err
	}
	recs, err := m.find(coll, f)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func (m *mockAdapter) LoadOneAndUpdate(_ context.Context, coll string, f filter.Filter, values map[string]any, opts UpdateOptions) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("update", coll); err != nil {
		return nil, err
	}
	recs, err := m.find(coll, f)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		if !opts.Upsert {
			return nil, nil
		}
		m.next++
		rec := map[string]any{filter.IDField: fmt.Sprintf("id%d", m.next)}
		for k, v := range values {
			rec[k] = v
		}
		m.colls[coll] = append(m.colls[coll], rec)
		return rec, nil
	}
	for k, v := range values {
		recs[0][k] = v
	}
	return recs[0], nil
}

func (m *mockAdapter) LoadOneAndDelete(_ context.Context, coll string, f filter.Filter) (map[string]any, error) {
	m.mu.Lock()
	recs, err := m.find(coll, f)
	m.mu.Unlock()
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	if _, err := m.remove(coll, filter.ByID(recs[0][filter.IDField]), 1); err != nil {
		return nil, err
	}
	return recs[0], nil
}

func (m *mockAdapter) LoadMany(_ context.Context, coll string, f filter.Filter, opts FindOptions) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("loadMany", coll); err != nil {
		return nil, err
	}
	recs, err := m.find(coll, f)
	if err != nil {
		return nil, err
	}
	filter.SortRecords(recs, opts.Sort)
	return filter.Page(recs, opts.Skip, opts.Limit), nil
}

func (m *mockAdapter) Count(_ context.Context, coll string, f filter.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, err := m.find(coll, f)
	return int64(len(recs)), err
}

func (m *mockAdapter) CreateIndex(_ context.Context, coll, field string, opts IndexOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes = append(m.indexes, fmt.Sprintf("%s.%s unique=%t sparse=%t", coll, field, opts.Unique, opts.Sparse))
	return nil
}

func (m *mockAdapter) ClearCollection(_ context.Context, coll string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.colls, coll)
	return nil
}

func (m *mockAdapter) DropDatabase(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.colls = make(map[string][]map[string]any)
	return nil
}

func (m *mockAdapter) Close(context.Context) error { return nil }

func (m *mockAdapter) ToCanonicalID(id any) string { return fmt.Sprint(id) }

func (m *mockAdapter) IsNativeID(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, "id")
}

func (m *mockAdapter) NativeIDType() *Scalar { return String }

func TestStore_SaveRejectsInvalid(t *testing.T) {
	ClearRegistry()
	person := MustDocument("Person", Fields{"num": Field{Type: Number, Max: 10}})
	adapter := newMockAdapter()
	store := NewStore(adapter)

	d := person.New()
	d.Set("num", 26)
	err := store.Save(context.Background(), d)
	var ve *ValidationError
	if !errors.As(err, &ve) || !strings.Contains(ve.Message, "max") {
		t.Fatalf("expected max ValidationError, got %v", err)
	}
	if len(adapter.ops) != 0 {
		t.Errorf("invalid documents must not reach the adapter, got %v", adapter.ops)
	}
	if !d.IsNew() {
		t.Error("document should stay unsaved")
	}
}

func TestStore_SaveInsertThenUpdate(t *testing.T) {
	ClearRegistry()
	person := MustDocument("Person", Fields{"name": String})
	adapter := newMockAdapter()
	store := NewStore(adapter)
	ctx := context.Background()

	d := person.New()
	d.Set("name", "Ann")
	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if d.ID() != "id1" {
		t.Fatalf("ID: got %v, want id1", d.ID())
	}
	if d.Get("id") != "id1" {
		t.Errorf("id alias: got %v", d.Get("id"))
	}

	d.Set("name", "Bea")
	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n, _ := store.Count(ctx, person, nil); n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
	got, err := store.LoadOne(ctx, person, filter.ByID("id1"), LoadOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.String("name") != "Bea" {
		t.Errorf("name: got %q, want %q", got.String("name"), "Bea")
	}
}

func TestStore_EmbeddedRoundTrip(t *testing.T) {
	ClearRegistry()
	limb := MustEmbedded("Limb", Fields{"type": String})
	person := MustDocument("Person", Fields{"limbs": []Type{limb}})
	store := NewStore(newMockAdapter())
	ctx := context.Background()

	d := person.New()
	kinds := []string{"left arm", "right arm", "left leg", "right leg"}
	for _, k := range kinds {
		l := limb.New()
		l.Set("type", k)
		d.Push("limbs", l)
	}
	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.LoadOne(ctx, person, filter.ByID(d.ID()), LoadOptions{Populate: true})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var loaded []string
	for _, l := range got.Array("limbs") {
		loaded = append(loaded, l.(*Document).String("type"))
	}
	if diff := cmp.Diff(kinds, loaded); diff != "" {
		t.Errorf("limbs mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_TypedEmbeddedSlice(t *testing.T) {
	ClearRegistry()
	var saved []string
	limb := MustEmbedded("Limb", Fields{"type": String}, WithHooks(Hooks{
		PreSave: func(_ context.Context, d *Document) error {
			saved = append(saved, d.String("type"))
			return nil
		},
	}))
	person := MustDocument("Person", Fields{"limbs": []Type{limb}})
	store := NewStore(newMockAdapter())
	ctx := context.Background()

	arm := limb.New()
	arm.Set("type", "left arm")
	d := person.New()
	d.Set("limbs", []*Document{arm})
	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("save: %v", err)
	}
	if diff := cmp.Diff([]string{"left arm"}, saved); diff != "" {
		t.Errorf("embedded hooks mismatch (-want +got):\n%s", diff)
	}

	got, err := store.LoadOne(ctx, person, filter.ByID(d.ID()), LoadOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	limbs := got.Array("limbs")
	if len(limbs) != 1 {
		t.Fatalf("limbs: got %d, want 1", len(limbs))
	}
	reloaded, ok := limbs[0].(*Document)
	if !ok || reloaded == arm {
		t.Fatalf("limb should be a freshly hydrated document, got %#v", limbs[0])
	}
	if reloaded.String("type") != "left arm" {
		t.Errorf("type: got %q, want %q", reloaded.String("type"), "left arm")
	}
}

func TestStore_SaveRejectsForeignID(t *testing.T) {
	ClearRegistry()
	person := MustDocument("Person", Fields{"name": String})
	adapter := newMockAdapter()
	store := NewStore(adapter)

	d := person.New()
	d.SetID(42)
	err := store.Save(context.Background(), d)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != IDField || !strings.Contains(ve.Message, "should be String, got number") {
		t.Errorf("got %s: %q", ve.Field, ve.Message)
	}
	if len(adapter.ops) != 0 {
		t.Errorf("a foreign id must not reach the adapter, got %v", adapter.ops)
	}

	d.SetID("id9")
	if err := store.Save(context.Background(), d); err != nil {
		t.Errorf("native id: got %v, want nil", err)
	}
}

func TestStore_HookOrder(t *testing.T) {
	ClearRegistry()
	var trace []string
	hooks := func(name string) Hooks {
		step := func(stage string) func(context.Context, *Document) error {
			return func(context.Context, *Document) error {
				trace = append(trace, name+"."+stage)
				return nil
			}
		}
		return Hooks{
			PreValidate:  step("preValidate"),
			PostValidate: step("postValidate"),
			PreSave:      step("preSave"),
			PostSave:     step("postSave"),
			PreDelete:    step("preDelete"),
			PostDelete:   step("postDelete"),
		}
	}
	money := MustEmbedded("Money", Fields{"value": Number}, WithHooks(hooks("money")))
	wallet := MustDocument("Wallet", Fields{"cash": money}, WithHooks(hooks("wallet")))
	store := NewStore(newMockAdapter())
	ctx := context.Background()

	w := wallet.New()
	w.Set("cash", money.New())
	if err := store.Save(ctx, w); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Delete(ctx, w); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []string{
		"money.preValidate", "wallet.preValidate",
		"money.postValidate", "wallet.postValidate",
		"money.preSave", "wallet.preSave",
		"money.postSave", "wallet.postSave",
		"money.preDelete", "wallet.preDelete",
		"money.postDelete", "wallet.postDelete",
	}
	if diff := cmp.Diff(want, trace); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_HookErrorAborts(t *testing.T) {
	ClearRegistry()
	boom := errors.New("nope")
	person := MustDocument("Person", Fields{"name": String}, WithHooks(Hooks{
		PreSave: func(context.Context, *Document) error { return boom },
	}))
	adapter := newMockAdapter()
	store := NewStore(adapter)

	if err := store.Save(context.Background(), person.New()); !errors.Is(err, boom) {
		t.Fatalf("got %v, want hook error", err)
	}
	if len(adapter.ops) != 0 {
		t.Errorf("adapter should not be called, got %v", adapter.ops)
	}
}

func TestStore_SaveCanonicalizesDates(t *testing.T) {
	ClearRegistry()
	event := MustDocument("Event", Fields{"at": Date})
	adapter := newMockAdapter()
	store := NewStore(adapter)

	d := event.New()
	d.Set("at", int64(1000))
	if err := store.Save(context.Background(), d); err != nil {
		t.Fatalf("save: %v", err)
	}
	stored := adapter.colls["events"][0]["at"]
	if stored != d.Time("at") || d.Time("at").UnixMilli() != 1000 {
		t.Errorf("at: got %v", stored)
	}
}

func TestStore_ReferencesStoredAsIDs(t *testing.T) {
	ClearRegistry()
	pet := MustDocument("Pet", Fields{"name": String})
	owner := MustDocument("Owner", Fields{"pets": []Type{pet}, "best": pet})
	adapter := newMockAdapter()
	store := NewStore(adapter)
	ctx := context.Background()

	rex := pet.New()
	rex.Set("name", "rex")
	o := owner.New()
	o.Set("best", rex)
	err := store.Save(ctx, o)
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("unsaved reference: expected PersistenceError, got %v", err)
	}

	if err := store.Save(ctx, rex); err != nil {
		t.Fatalf("save pet: %v", err)
	}
	o.Push("pets", rex)
	if err := store.Save(ctx, o); err != nil {
		t.Fatalf("save owner: %v", err)
	}
	rec := adapter.colls["owners"][0]
	if rec["best"] != rex.ID() {
		t.Errorf("best: got %v, want %v", rec["best"], rex.ID())
	}
	if diff := cmp.Diff([]any{rex.ID()}, rec["pets"]); diff != "" {
		t.Errorf("pets mismatch (-want +got):\n%s", diff)
	}

	loaded, err := store.LoadMany(ctx, owner, nil, LoadOptions{Populate: true})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Reference("best").String("name") != "rex" {
		t.Errorf("populated best: got %v", loaded)
	}
}

func TestStore_LoadOneAndUpdate(t *testing.T) {
	ClearRegistry()
	person := MustDocument("Person", Fields{"name": String, "age": Number})
	store := NewStore(newMockAdapter())
	ctx := context.Background()

	got, err := store.LoadOneAndUpdate(ctx, person, filter.Eq("name", "Ann"), map[string]any{"age": 30}, UpdateOptions{})
	if err != nil || got != nil {
		t.Fatalf("no match without upsert: got %v, %v", got, err)
	}

	got, err = store.LoadOneAndUpdate(ctx, person, filter.Eq("name", "Ann"), map[string]any{"name": "Ann", "age": 30}, UpdateOptions{Upsert: true})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got.IsNew() || got.Number("age") != 30 {
		t.Errorf("upserted: got %v", got.Values())
	}

	got, err = store.LoadOneAndUpdate(ctx, person, filter.Eq("name", "Ann"), map[string]any{"age": 31}, UpdateOptions{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Number("age") != 31 {
		t.Errorf("age: got %v, want 31", got.Get("age"))
	}

	if _, err := store.LoadOneAndUpdate(ctx, person, nil, map[string]any{"bogus": 1}, UpdateOptions{}); !IsValidation(err) {
		t.Errorf("unknown field: got %v, want ValidationError", err)
	}
}

func TestStore_EnsureIndexes(t *testing.T) {
	ClearRegistry()
	person := MustDocument("Person", Fields{
		"email": Field{Type: String, Unique: true},
		"name":  String,
	})
	adapter := newMockAdapter()
	store := NewStore(adapter)
	if err := store.EnsureIndexes(context.Background(), person); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"persons.email unique=true sparse=true"}
	if diff := cmp.Diff(want, adapter.indexes); diff != "" {
		t.Errorf("indexes mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_AdapterErrorsWrapped(t *testing.T) {
	ClearRegistry()
	person := MustDocument("Person", Fields{"name": String})
	adapter := newMockAdapter()
	adapter.failOn = "save"
	store := NewStore(adapter)

	err := store.Save(context.Background(), person.New())
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if pe.Op != "save" || pe.Collection != "persons" {
		t.Errorf("got op=%q collection=%q", pe.Op, pe.Collection)
	}
}

func TestStore_EmbeddedHasNoCollection(t *testing.T) {
	ClearRegistry()
	money := MustEmbedded("Money", Fields{"value": Number})
	store := NewStore(newMockAdapter())
	err := store.Save(context.Background(), money.New())
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}

func TestManager(t *testing.T) {
	ClearRegistry()
	person := MustDocument("Person", Fields{"name": String, "age": Number})
	store := NewStore(newMockAdapter())
	m := NewManager(store, person)
	ctx := context.Background()

	for i, name := range []string{"a", "b", "c"} {
		if _, err := m.Insert(ctx, map[string]any{"name": name, "age": i}); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	all, err := m.All(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("All: got %d, %v", len(all), err)
	}

	older, err := m.Find(ctx, filter.Gte("age", 1), LoadOptions{Sort: []filter.SortKey{filter.Desc("age")}})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(older) != 2 || older[0].String("name") != "c" {
		t.Errorf("Find: got %v", older)
	}

	first, err := m.First(ctx, filter.Eq("name", "b"))
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if got, err := m.Get(ctx, first.ID()); err != nil || got.String("name") != "b" {
		t.Errorf("Get: got %v, %v", got, err)
	}

	if _, err := m.Get(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("Get missing: got %v, want NotFoundError", err)
	}

	gone, err := m.FindOneAndDelete(ctx, filter.Eq("name", "a"))
	if err != nil || gone.String("name") != "a" {
		t.Fatalf("FindOneAndDelete: got %v, %v", gone, err)
	}
	if n, _ := m.Count(ctx, nil); n != 2 {
		t.Errorf("Count: got %d, want 2", n)
	}
	if n, err := m.DeleteMany(ctx, nil); err != nil || n != 2 {
		t.Errorf("DeleteMany: got %d, %v", n, err)
	}
}

func TestNewManager_EmbeddedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for embedded type")
		}
	}()
	money, _ := NewEmbeddedType("Money", Fields{"value": Number})
	NewManager(NewStore(newMockAdapter()), money)
}
