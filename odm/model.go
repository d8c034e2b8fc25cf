// Package odm provides reflection-based mapping between Go structs and documents.
package odm

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/CaliLuke/go-docmap/filter"
)

var timeType = reflect.TypeOf(time.Time{})

// StructField describes one tagged field of a mapped struct.
type StructField struct {
	Tag        FieldTag
	FieldName  string
	FieldIndex int
	FieldType  reflect.Type
	// IsPointer is true for optional fields declared as pointers.
	IsPointer bool
	// IsSlice is true for fields mapped to array types.
	IsSlice bool
	// ElemType is the base type behind pointers and slices.
	ElemType reflect.Type
}

// StructInfo is the mapping metadata of a struct type.
type StructInfo struct {
	GoType reflect.Type
	Fields []StructField
	// Identity is the index of the field bound to the document identity, or -1.
	Identity int
}

var structInfos sync.Map // reflect.Type -> *StructInfo

// ExtractStructInfo reads the `odm` tags of a struct type. Untagged and
// unexported fields are ignored. Results are cached per type.
func ExtractStructInfo(t reflect.Type) (*StructInfo, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct, got %s", t.Kind())
	}
	if cached, ok := structInfos.Load(t); ok {
		return cached.(*StructInfo), nil
	}

	info := &StructInfo{GoType: t, Identity: -1}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tagStr, ok := field.Tag.Lookup("odm")
		if !ok {
			continue
		}
		tag, err := ParseTag(tagStr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		if tag.Skip {
			continue
		}
		if tag.Name == "" {
			tag.Name = lowerFirst(field.Name)
		}

		sf := StructField{
			Tag:        tag,
			FieldName:  field.Name,
			FieldIndex: i,
			FieldType:  field.Type,
			ElemType:   field.Type,
		}
		switch field.Type.Kind() {
		case reflect.Ptr:
			sf.IsPointer = true
			sf.ElemType = field.Type.Elem()
		case reflect.Slice:
			if field.Type.Elem().Kind() != reflect.Uint8 {
				sf.IsSlice = true
				sf.ElemType = field.Type.Elem()
				if sf.ElemType.Kind() == reflect.Ptr {
					sf.ElemType = sf.ElemType.Elem()
				}
			}
		}

		if tag.IsIdentity() {
			info.Identity = len(info.Fields)
		}
		info.Fields = append(info.Fields, sf)
	}

	actual, _ := structInfos.LoadOrStore(t, info)
	return actual.(*StructInfo), nil
}

// DeclareStruct derives a document type from the `odm` tags of T, registers
// it and returns it.
//
//	type Person struct {
//		ID   string   `odm:"id"`
//		Name string   `odm:"name,required"`
//		Age  int      `odm:"age,min=0"`
//		Pets []string `odm:"pets,ref=Pet"`
//	}
func DeclareStruct[T any](name string, opts ...TypeOption) (*DocumentType, error) {
	return declareStruct[T](name, false, opts)
}

// DeclareEmbeddedStruct is DeclareStruct for embedded document types.
func DeclareEmbeddedStruct[T any](name string, opts ...TypeOption) (*DocumentType, error) {
	return declareStruct[T](name, true, opts)
}

func declareStruct[T any](name string, embedded bool, opts []TypeOption) (*DocumentType, error) {
	info, err := ExtractStructInfo(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, &ConfigurationError{TypeName: name, Message: err.Error()}
	}

	fields := make(Fields, len(info.Fields))
	for _, sf := range info.Fields {
		if sf.Tag.IsIdentity() {
			continue
		}
		spec, err := fieldForStruct(sf)
		if err != nil {
			return nil, &ConfigurationError{TypeName: name, Field: sf.Tag.Name, Message: err.Error()}
		}
		fields[sf.Tag.Name] = spec
	}

	var dt *DocumentType
	if embedded {
		dt, err = NewEmbeddedType(name, fields, opts...)
	} else {
		dt, err = NewDocumentType(name, fields, opts...)
	}
	if err != nil {
		return nil, err
	}
	if err := Register(dt); err != nil {
		return nil, err
	}
	return dt, nil
}

// fieldForStruct maps a struct field onto a schema declaration.
func fieldForStruct(sf StructField) (Field, error) {
	t, err := typeForStruct(sf)
	if err != nil {
		return Field{}, err
	}
	f := Field{Type: t, Required: sf.Tag.Required, Unique: sf.Tag.Unique}
	if sf.Tag.Match != "" {
		f.Match = sf.Tag.Match
	}

	scalar := elemType(t)
	if sf.Tag.Min != "" {
		if f.Min, err = parseLiteral(scalar, sf.Tag.Min); err != nil {
			return Field{}, fmt.Errorf("min: %w", err)
		}
	}
	if sf.Tag.Max != "" {
		if f.Max, err = parseLiteral(scalar, sf.Tag.Max); err != nil {
			return Field{}, fmt.Errorf("max: %w", err)
		}
	}
	if sf.Tag.Default != "" {
		if t.Kind() == KindArray {
			return Field{}, fmt.Errorf("default is not supported on array fields")
		}
		if f.Default, err = parseLiteral(scalar, sf.Tag.Default); err != nil {
			return Field{}, fmt.Errorf("default: %w", err)
		}
	}
	for _, c := range sf.Tag.Choices {
		v, err := parseLiteral(scalar, c)
		if err != nil {
			return Field{}, fmt.Errorf("choices: %w", err)
		}
		f.Choices = append(f.Choices, v)
	}
	return f, nil
}

func typeForStruct(sf StructField) (Type, error) {
	var elem Type
	switch {
	case sf.Tag.Ref != "":
		elem = Ref(sf.Tag.Ref)
	case sf.Tag.Embed != "":
		elem = Ref(sf.Tag.Embed)
	default:
		var err error
		if elem, err = scalarFor(sf.ElemType); err != nil {
			return nil, err
		}
	}
	if sf.IsSlice {
		return ArrayOf(elem), nil
	}
	return elem, nil
}

func scalarFor(t reflect.Type) (Type, error) {
	if t == timeType {
		return Date, nil
	}
	switch t.Kind() {
	case reflect.String:
		return String, nil
	case reflect.Bool:
		return Boolean, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return Number, nil
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return Object, nil
		}
	case reflect.Interface:
		return Any, nil
	}
	return nil, fmt.Errorf("unsupported Go type %s", t)
}

// parseLiteral converts tag text into a value of the given scalar type.
func parseLiteral(t Type, s string) (any, error) {
	switch t {
	case Number:
		return strconv.ParseFloat(s, 64)
	case Boolean:
		return strconv.ParseBool(s)
	case Date:
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		return coerceToTime(s)
	}
	return s, nil
}

// Decode copies a document's values into a new T. Populated references are
// decoded as their identity unless the struct field is a struct itself.
func Decode[T any](d *Document) (*T, error) {
	out := new(T)
	if err := DecodeInto(d, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeInto copies a document's values into the struct target points to.
func DecodeInto(d *Document, target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer to struct")
	}
	return decodeStruct(d, v.Elem())
}

func decodeStruct(d *Document, v reflect.Value) error {
	info, err := ExtractStructInfo(v.Type())
	if err != nil {
		return err
	}
	for _, sf := range info.Fields {
		val := d.Get(sf.Tag.Name)
		if val == nil {
			continue
		}
		if err := setFieldValue(v.Field(sf.FieldIndex), sf, val); err != nil {
			return &HydrationError{TypeName: d.dt.name, Field: sf.Tag.Name, Cause: err}
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, sf StructField, val any) error {
	if sf.IsSlice {
		elems, ok := filter.ToSlice(val)
		if !ok {
			return fmt.Errorf("expected a list, got %T", val)
		}
		slice := reflect.MakeSlice(sf.FieldType, len(elems), len(elems))
		ptrElems := sf.FieldType.Elem().Kind() == reflect.Ptr
		for i, e := range elems {
			converted, err := coerceValue(e, sf.ElemType)
			if err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
			if ptrElems {
				ptr := reflect.New(sf.ElemType)
				ptr.Elem().Set(converted)
				slice.Index(i).Set(ptr)
			} else {
				slice.Index(i).Set(converted)
			}
		}
		field.Set(slice)
		return nil
	}

	converted, err := coerceValue(val, sf.ElemType)
	if err != nil {
		return err
	}
	if sf.IsPointer {
		ptr := reflect.New(sf.ElemType)
		ptr.Elem().Set(converted)
		field.Set(ptr)
	} else {
		field.Set(converted)
	}
	return nil
}

// coerceValue converts a stored value to the target Go type.
func coerceValue(val any, target reflect.Type) (reflect.Value, error) {
	if doc, ok := val.(*Document); ok {
		if target.Kind() == reflect.Struct && target != timeType {
			out := reflect.New(target).Elem()
			if err := decodeStruct(doc, out); err != nil {
				return reflect.Value{}, err
			}
			return out, nil
		}
		val = doc.ID()
	}

	if target == timeType {
		t, err := coerceToTime(val)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(t), nil
	}

	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := coerceToInt64(val)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(i).Convert(target), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := coerceToInt64(val)
		if err != nil {
			return reflect.Value{}, err
		}
		if i < 0 {
			return reflect.Value{}, fmt.Errorf("cannot store %d in %s", i, target)
		}
		return reflect.ValueOf(uint64(i)).Convert(target), nil
	case reflect.Float32, reflect.Float64:
		f, err := coerceToFloat64(val)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(target), nil
	case reflect.String:
		if s, ok := val.(string); ok {
			return reflect.ValueOf(s).Convert(target), nil
		}
		if h, ok := val.(interface{ Hex() string }); ok {
			return reflect.ValueOf(h.Hex()).Convert(target), nil
		}
		if s, ok := val.(fmt.Stringer); ok {
			return reflect.ValueOf(s.String()).Convert(target), nil
		}
		return reflect.ValueOf(fmt.Sprintf("%v", val)).Convert(target), nil
	case reflect.Bool:
		b, ok := val.(bool)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected bool, got %T", val)
		}
		return reflect.ValueOf(b).Convert(target), nil
	case reflect.Interface:
		if val == nil {
			return reflect.Zero(target), nil
		}
	}

	rv := reflect.ValueOf(val)
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot coerce %T to %s", val, target)
}

func coerceToInt64(val any) (int64, error) {
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	}
	return 0, fmt.Errorf("cannot coerce %T to integer", val)
}

func coerceToFloat64(val any) (float64, error) {
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return 0, fmt.Errorf("cannot coerce %T to float", val)
}

func coerceToTime(val any) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{
			time.RFC3339Nano,
			"2006-01-02T15:04:05",
			"2006-01-02",
		} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse time string: %q", v)
	}
	if ms, err := coerceToInt64(val); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot coerce %T to time.Time", val)
}

// Encode copies the tagged fields of the struct src points to into d. Struct
// values of embed fields become embedded documents of the declared type.
func Encode(d *Document, src any) error {
	v := reflect.ValueOf(src)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return fmt.Errorf("source must not be nil")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("source must be a struct, got %s", v.Kind())
	}
	info, err := ExtractStructInfo(v.Type())
	if err != nil {
		return err
	}

	for _, sf := range info.Fields {
		fv := v.Field(sf.FieldIndex)
		if sf.Tag.IsIdentity() {
			if !fv.IsZero() {
				d.SetID(fv.Interface())
			}
			continue
		}
		spec, ok := d.dt.schema.fields[sf.Tag.Name]
		if !ok {
			return fmt.Errorf("encode %s: %s is not a schema field", d.dt.name, sf.Tag.Name)
		}
		val, err := encodeValue(fv, spec.Type)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", d.dt.name, sf.Tag.Name, err)
		}
		d.values[sf.Tag.Name] = val
	}
	return nil
}

func encodeValue(fv reflect.Value, t Type) (any, error) {
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return nil, nil
		}
		fv = fv.Elem()
	}

	if arr, ok := t.(*Array); ok && fv.Kind() == reflect.Slice {
		out := make([]any, fv.Len())
		for i := range out {
			e, err := encodeValue(fv.Index(i), arr.Elem)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = e
		}
		return out, nil
	}

	if t.Kind() == KindEmbedded && fv.Kind() == reflect.Struct {
		edt, ok := documentTypeOf(t)
		if !ok {
			return nil, &NotRegisteredError{TypeName: t.Name()}
		}
		nested := edt.New()
		if err := Encode(nested, fv.Interface()); err != nil {
			return nil, err
		}
		return nested, nil
	}

	if fv.Kind() == reflect.Interface && fv.IsNil() {
		return nil, nil
	}
	return fv.Interface(), nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if strings.ToUpper(s) == s {
		return strings.ToLower(s)
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
