package odm

// accessor maps a public field name onto its key in a document's value store.
type accessor struct {
	key string
}

// buildAccessors generates the get/set table for a schema once, at type
// declaration time. Documents get an "id" alias for the identity key.
func buildAccessors(s *Schema, embedded bool) map[string]accessor {
	table := make(map[string]accessor, len(s.order)+1)
	for _, name := range s.order {
		table[name] = accessor{key: name}
	}
	if !embedded {
		table[idAlias] = accessor{key: IDField}
	}
	return table
}

// Lookup returns the stored value of a schema field (or the id alias) and
// whether the key is present in the value store.
func (d *Document) Lookup(name string) (any, bool) {
	acc, ok := d.dt.schema.accessors[name]
	if !ok {
		return nil, false
	}
	v, ok := d.values[acc.key]
	return v, ok
}

// Get returns the stored value of a field, or nil.
func (d *Document) Get(name string) any {
	v, _ := d.Lookup(name)
	return v
}

// Set stores v under a schema field or the id alias. It reports false and
// leaves the document untouched when name is not part of the schema.
func (d *Document) Set(name string, v any) bool {
	acc, ok := d.dt.schema.accessors[name]
	if !ok {
		return false
	}
	d.values[acc.key] = v
	return true
}

// Has reports whether name is an accessible field on this document.
func (d *Document) Has(name string) bool {
	_, ok := d.dt.schema.accessors[name]
	return ok
}
