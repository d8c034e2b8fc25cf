// Package odm resolves foreign-identity references into loaded documents.
package odm

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/CaliLuke/go-docmap/filter"
)

// Loader is what Populate needs from persistence. *Store implements it.
type Loader interface {
	LoadMany(ctx context.Context, dt *DocumentType, f filter.Filter, opts LoadOptions) ([]*Document, error)
	ToCanonicalID(id any) string
	IsNativeID(v any) bool
}

// Populate replaces foreign identifiers in reference fields with the loaded
// documents, one level deep. All docs must share one DocumentType. Each
// reference field issues at most one LoadMany for the union of its ids; the
// loads run concurrently and the call returns once every field is resolved.
//
// Array elements that are already documents are kept. A referenced document
// that does not exist leaves a single field nil and is dropped from arrays.
func Populate(ctx context.Context, loader Loader, docs ...*Document) ([]*Document, error) {
	if len(docs) == 0 {
		return docs, nil
	}
	if err := checkCtx(ctx, "populate", docs[0].dt.name); err != nil {
		return nil, err
	}
	dt := docs[0].dt

	type fieldLoad struct {
		name    string
		isArray bool
		target  *DocumentType
		ids     []any
	}
	var plan []fieldLoad
	for _, name := range dt.schema.References() {
		spec := dt.schema.fields[name]
		isArray := spec.Type.Kind() == KindArray

		var ids []any
		if isArray {
			ids = arrayRefIDs(docs, name)
		} else if looksLikeIdentifier(loader, docs, name) {
			ids = scalarRefIDs(docs, name)
		}
		if len(ids) == 0 {
			continue
		}

		target, ok := documentTypeOf(elemType(spec.Type))
		if !ok {
			return nil, &PersistenceError{Op: "populate", Collection: dt.label(), Field: name, Cause: &NotRegisteredError{TypeName: elemType(spec.Type).Name()}}
		}
		plan = append(plan, fieldLoad{
			name:    name,
			isArray: isArray,
			target:  target,
			ids:     lo.UniqBy(ids, loader.ToCanonicalID),
		})
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, fl := range plan {
		g.Go(func() error {
			loaded, err := loader.LoadMany(gctx, fl.target, filter.IDIn(fl.ids), LoadOptions{})
			if err != nil {
				return &PersistenceError{Op: "populate", Collection: dt.label(), Field: fl.name, Cause: err}
			}
			byID := lo.KeyBy(loaded, func(d *Document) string {
				return loader.ToCanonicalID(d.ID())
			})

			mu.Lock()
			defer mu.Unlock()
			for _, d := range docs {
				if fl.isArray {
					d.values[fl.name] = resolveArray(loader, byID, d.values[fl.name])
				} else {
					d.values[fl.name] = resolveScalar(loader, byID, d.values[fl.name])
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// looksLikeIdentifier decides whether a single-reference field holds foreign
// identifiers: the first non-nil value must be a string or a native id.
func looksLikeIdentifier(loader Loader, docs []*Document, name string) bool {
	for _, d := range docs {
		v := d.values[name]
		if v == nil {
			continue
		}
		if _, ok := v.(string); ok {
			return true
		}
		return loader.IsNativeID(v)
	}
	return false
}

func scalarRefIDs(docs []*Document, name string) []any {
	var ids []any
	for _, d := range docs {
		v := d.values[name]
		if v == nil {
			continue
		}
		if _, isDoc := v.(*Document); isDoc {
			continue
		}
		ids = append(ids, v)
	}
	return ids
}

func arrayRefIDs(docs []*Document, name string) []any {
	var ids []any
	for _, d := range docs {
		elems, _ := filter.ToSlice(d.values[name])
		for _, e := range elems {
			if e == nil {
				continue
			}
			if _, isDoc := e.(*Document); isDoc {
				continue
			}
			ids = append(ids, e)
		}
	}
	return ids
}

func resolveScalar(loader Loader, byID map[string]*Document, v any) any {
	if v == nil {
		return nil
	}
	if _, isDoc := v.(*Document); isDoc {
		return v
	}
	if ref, ok := byID[loader.ToCanonicalID(v)]; ok {
		return ref
	}
	return nil
}

func resolveArray(loader Loader, byID map[string]*Document, v any) any {
	elems, ok := filter.ToSlice(v)
	if !ok {
		return v
	}
	out := make([]any, 0, len(elems))
	for _, e := range elems {
		if e == nil {
			continue
		}
		if _, isDoc := e.(*Document); isDoc {
			out = append(out, e)
			continue
		}
		if ref, found := byID[loader.ToCanonicalID(e)]; found {
			out = append(out, ref)
		}
	}
	return out
}
