// Package odm provides a central registry of declared document types.
package odm

import (
	"fmt"
	"sort"
	"sync"
)

var (
	globalRegistry = &Registry{
		byName:       make(map[string]*DocumentType),
		byCollection: make(map[string]*DocumentType),
		refKinds:     make(map[string]Kind),
	}
)

// Registry maps type names and collection names to declared document types.
// References declared with Ref are resolved through it.
type Registry struct {
	mu           sync.RWMutex
	byName       map[string]*DocumentType
	byCollection map[string]*DocumentType
	// refKinds caches the kind of each reference target after its first
	// successful resolution. A registered name never changes type.
	refKinds map[string]Kind
}

// Register adds a document type to the global registry. Registering the
// same type twice is a no-op; a different type under the same name is an error.
func Register(dt *DocumentType) error {
	if dt == nil {
		return fmt.Errorf("registering nil document type")
	}

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if existing, ok := globalRegistry.byName[dt.name]; ok && existing != dt {
		return fmt.Errorf("type name %q already registered", dt.name)
	}
	if dt.collection != "" {
		if existing, ok := globalRegistry.byCollection[dt.collection]; ok && existing != dt {
			return fmt.Errorf("collection %q already registered to %s", dt.collection, existing.name)
		}
		globalRegistry.byCollection[dt.collection] = dt
	}
	globalRegistry.byName[dt.name] = dt
	return nil
}

// MustRegister is a helper that calls Register and panics if an error occurs.
// It is intended for use during application initialization.
func MustRegister(dt *DocumentType) {
	if err := Register(dt); err != nil {
		panic(err)
	}
}

// Lookup retrieves a document type by its declared name.
func Lookup(name string) (*DocumentType, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	dt, ok := globalRegistry.byName[name]
	return dt, ok
}

// LookupCollection retrieves a document type by its collection name.
func LookupCollection(collection string) (*DocumentType, bool) {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	dt, ok := globalRegistry.byCollection[collection]
	return dt, ok
}

// RegisteredTypes returns all registered types ordered by name.
func RegisteredTypes() []*DocumentType {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()
	result := make([]*DocumentType, 0, len(globalRegistry.byName))
	for _, dt := range globalRegistry.byName {
		result = append(result, dt)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].name < result[j].name })
	return result
}

// ClearRegistry resets the global registry, removing all registered types.
// This is primarily used for testing purposes.
func ClearRegistry() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.byName = make(map[string]*DocumentType)
	globalRegistry.byCollection = make(map[string]*DocumentType)
	globalRegistry.refKinds = make(map[string]Kind)
}

// refKind returns the kind of the type registered under name, caching it.
func refKind(name string) (Kind, bool) {
	globalRegistry.mu.RLock()
	k, ok := globalRegistry.refKinds[name]
	globalRegistry.mu.RUnlock()
	if ok {
		return k, true
	}

	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	dt, ok := globalRegistry.byName[name]
	if !ok {
		return KindDocument, false
	}
	k = dt.Kind()
	globalRegistry.refKinds[name] = k
	return k, true
}
