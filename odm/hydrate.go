// Package odm provides mechanisms for hydrating documents from raw backend records.
package odm

import (
	"fmt"
	"sort"

	"github.com/CaliLuke/go-docmap/filter"
)

// FromData builds documents from raw data. A single record (any map keyed by
// strings) yields a *Document; a slice of records yields []*Document in the
// same order, even when it holds a single record. Hydration never validates
// and never touches a backend.
func (dt *DocumentType) FromData(data any) (any, error) {
	if record, ok := filter.ToMap(data); ok {
		return dt.Hydrate(record)
	}
	records, ok := filter.ToSlice(data)
	if !ok {
		return nil, &HydrationError{TypeName: dt.name, Cause: fmt.Errorf("expected a record or a list of records, got %T", data)}
	}
	docs := make([]*Document, 0, len(records))
	for i, r := range records {
		record, ok := filter.ToMap(r)
		if !ok {
			return nil, &HydrationError{TypeName: dt.name, Field: fmt.Sprintf("[%d]", i), Cause: fmt.Errorf("expected a record, got %T", r)}
		}
		d, err := dt.Hydrate(record)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// HydrateMany hydrates each record in order.
func (dt *DocumentType) HydrateMany(records []map[string]any) ([]*Document, error) {
	docs := make([]*Document, 0, len(records))
	for _, r := range records {
		d, err := dt.Hydrate(r)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Hydrate builds one document from a raw record. Null values are replaced by
// the field's default, embedded sub-records are hydrated into their declared
// type, keys naming a virtual setter are routed to it, and any other
// non-schema key is dropped. A raw "id" key sets the identity when "_id" is
// absent.
func (dt *DocumentType) Hydrate(record map[string]any) (*Document, error) {
	d := dt.New()

	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := record[key]
		spec, inSchema := dt.schema.fields[key]
		if value == nil && inSchema {
			value = spec.DefaultValue()
		}

		if !inSchema {
			if set, ok := dt.virtuals[key]; ok {
				set(d, value)
			} else if key == idAlias && value != nil && d.ID() == nil {
				d.SetID(value)
			}
			continue
		}

		if value != nil && elemType(spec.Type).Kind() == KindEmbedded {
			hydrated, err := dt.hydrateEmbedded(key, spec.Type, value)
			if err != nil {
				return nil, err
			}
			value = hydrated
		}
		d.values[key] = value
	}
	return d, nil
}

func (dt *DocumentType) hydrateEmbedded(field string, t Type, value any) (any, error) {
	edt, ok := documentTypeOf(elemType(t))
	if !ok {
		return nil, &HydrationError{TypeName: dt.name, Field: field, Cause: &NotRegisteredError{TypeName: elemType(t).Name()}}
	}

	if t.Kind() != KindArray {
		return edt.hydrateOne(dt.name, field, value)
	}

	elems, ok := filter.ToSlice(value)
	if !ok {
		return nil, &HydrationError{TypeName: dt.name, Field: field, Cause: fmt.Errorf("expected a list, got %T", value)}
	}
	out := make([]any, len(elems))
	for i, e := range elems {
		h, err := edt.hydrateOne(dt.name, fmt.Sprintf("%s[%d]", field, i), e)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (dt *DocumentType) hydrateOne(owner, field string, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Document:
		return v, nil
	}
	record, ok := filter.ToMap(value)
	if !ok {
		return nil, &HydrationError{TypeName: owner, Field: field, Cause: fmt.Errorf("expected a %s record, got %T", dt.name, value)}
	}
	return dt.Hydrate(record)
}
