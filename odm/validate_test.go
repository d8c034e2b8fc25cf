package odm

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func mustType(t *testing.T, name string, fields Fields, opts ...TypeOption) *DocumentType {
	t.Helper()
	dt, err := NewDocumentType(name, fields, opts...)
	if err != nil {
		t.Fatalf("declare %s: %v", name, err)
	}
	return dt
}

func mustEmbedded(t *testing.T, name string, fields Fields) *DocumentType {
	t.Helper()
	dt, err := NewEmbeddedType(name, fields)
	if err != nil {
		t.Fatalf("declare %s: %v", name, err)
	}
	return dt
}

func expectValidation(t *testing.T, err error, field, fragment string) *ValidationError {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != field {
		t.Errorf("Field: got %q, want %q", ve.Field, field)
	}
	if !strings.Contains(ve.Message, fragment) {
		t.Errorf("Message: got %q, want it to contain %q", ve.Message, fragment)
	}
	return ve
}

func TestValidate_Max(t *testing.T) {
	dt := mustType(t, "Person", Fields{"num": Field{Type: Number, Max: 10}})
	d := dt.New()
	d.Set("num", 26)

	ve := expectValidation(t, d.Validate(), "num", "max")
	want := "Value assigned to persons.num is greater than max, 10, got 26"
	if ve.Message != want {
		t.Errorf("Message: got %q, want %q", ve.Message, want)
	}

	d.Set("num", 10)
	if err := d.Validate(); err != nil {
		t.Errorf("boundary value should pass: %v", err)
	}
}

func TestValidate_Min(t *testing.T) {
	dt := mustType(t, "Person", Fields{"num": Field{Type: Number, Min: 0}})
	d := dt.New()
	d.Set("num", -1)
	expectValidation(t, d.Validate(), "num", "is less than min, 0, got -1")
}

func TestValidate_DateBounds(t *testing.T) {
	floor := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	dt := mustType(t, "Event", Fields{
		"at":   Field{Type: Date, Min: floor},
		"seen": Field{Type: Date, Max: floor.UnixMilli()},
	})
	d := dt.New()
	d.Set("at", floor.Add(-time.Hour))
	expectValidation(t, d.Validate(), "at", "less than min")

	d.Set("at", floor)
	d.Set("seen", floor.Add(time.Hour))
	expectValidation(t, d.Validate(), "seen", "greater than max")
}

func TestValidate_NumericDateAgainstTimeBound(t *testing.T) {
	floor := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ceiling := floor.AddDate(1, 0, 0)
	dt := mustType(t, "Event", Fields{"at": Field{Type: Date, Min: floor, Max: ceiling}})
	d := dt.New()

	d.Set("at", int64(0))
	expectValidation(t, d.Validate(), "at", "less than min")

	d.Set("at", float64(ceiling.UnixMilli()+1))
	expectValidation(t, d.Validate(), "at", "greater than max")

	d.Set("at", floor.UnixMilli())
	if err := d.Validate(); err != nil {
		t.Errorf("epoch equal to min: got %v, want nil", err)
	}
}

func TestValidate_Type(t *testing.T) {
	dt := mustType(t, "Person", Fields{
		"name": String,
		"tags": []Type{String},
		"ok":   Boolean,
	})

	d := dt.New()
	d.Set("name", 5)
	expectValidation(t, d.Validate(), "name", "should be String, got number")

	d = dt.New()
	d.Set("tags", []any{"a", 1})
	expectValidation(t, d.Validate(), "tags", "should be [String], got [a,1]")

	d = dt.New()
	d.Set("ok", "yes")
	expectValidation(t, d.Validate(), "ok", "should be Boolean, got string")
}

func TestValidate_NilAlwaysValid(t *testing.T) {
	dt := mustType(t, "Person", Fields{
		"name": Field{Type: String, Match: "^x$", Choices: []any{"x"}},
		"age":  Field{Type: Number, Min: 1},
	})
	d := dt.New()
	d.Set("name", nil)
	d.Set("age", nil)
	if err := d.Validate(); err != nil {
		t.Errorf("nil values should validate: %v", err)
	}
}

func TestValidate_Match(t *testing.T) {
	dt := mustType(t, "Person", Fields{"code": Field{Type: String, Match: "^[A-Z]{3}$"}})
	d := dt.New()
	d.Set("code", "abc")
	expectValidation(t, d.Validate(), "code", "does not match the regex/string ^[A-Z]{3}$. Value was abc")

	d.Set("code", "ABC")
	if err := d.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_Choices(t *testing.T) {
	dt := mustType(t, "Person", Fields{
		"color": Field{Type: String, Choices: []any{"red", "blue"}},
		"size":  Field{Type: Number, Choices: []any{1, 2, 3}},
	})
	d := dt.New()
	d.Set("color", "green")
	expectValidation(t, d.Validate(), "color", "should be in [red, blue], got green")

	d.Set("color", "red")
	d.Set("size", 2.0)
	if err := d.Validate(); err != nil {
		t.Errorf("numeric choices should compare by value: %v", err)
	}
}

func TestValidate_Required(t *testing.T) {
	dt := mustType(t, "Person", Fields{
		"name": Field{Type: String, Required: true},
	})
	d := dt.New()
	expectValidation(t, d.Validate(), "name", "is required")

	d.Set("name", "")
	expectValidation(t, d.Validate(), "name", "is required")

	d.Set("name", "Ann")
	if err := d.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_Embedded(t *testing.T) {
	money := mustEmbedded(t, "Money", Fields{"value": Field{Type: Number, Min: 0}})
	wallet := mustType(t, "Wallet", Fields{
		"cash":     money,
		"contents": []Type{money},
	})

	d := wallet.New()
	cash := money.New()
	cash.Set("value", -5)
	d.Set("cash", cash)
	expectValidation(t, d.Validate(), "value", "Value assigned to Money.value is less than min")

	cash.Set("value", 5)
	bad := money.New()
	bad.Set("value", "lots")
	d.Push("contents", money.New(), bad)
	expectValidation(t, d.Validate(), "value", "should be Number, got string")
}

func TestValidate_EmbeddedRequiresDocument(t *testing.T) {
	money := mustEmbedded(t, "Money", Fields{"value": Number})
	wallet := mustType(t, "Wallet", Fields{"cash": money})
	d := wallet.New()
	d.Set("cash", 12)
	expectValidation(t, d.Validate(), "cash", "should be Money, got number")
}

func TestValidate_References(t *testing.T) {
	pet := mustType(t, "Pet", Fields{"name": String})
	owner := mustType(t, "Owner", Fields{"pet": pet, "pets": []Type{pet}})

	d := owner.New()
	d.Set("pet", "5f1d7f3e9c1b2a0012345678")
	d.Set("pets", []any{pet.New(), "abc"})
	if err := d.Validate(); err != nil {
		t.Errorf("ids and documents should both validate: %v", err)
	}

	d.Set("pet", owner.New())
	expectValidation(t, d.Validate(), "pet", "should be Pet, got Owner")

	d.Set("pet", map[string]any{"name": "rex"})
	expectValidation(t, d.Validate(), "pet", "should be Pet, got object")
}

func TestValidate_Any(t *testing.T) {
	dt := mustType(t, "Bag", Fields{"stuff": Any, "meta": Object})
	d := dt.New()
	d.Set("stuff", []int{1, 2})
	d.Set("meta", map[string]any{"k": 1})
	if err := d.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	d.Set("meta", "nope")
	expectValidation(t, d.Validate(), "meta", "should be Object, got string")
}

func TestIsValidation(t *testing.T) {
	dt := mustType(t, "Person", Fields{"name": String})
	d := dt.New()
	d.Set("name", true)
	if !IsValidation(d.Validate()) {
		t.Error("IsValidation should recognize validation errors")
	}
	if IsValidation(errors.New("other")) {
		t.Error("IsValidation should reject unrelated errors")
	}
}
