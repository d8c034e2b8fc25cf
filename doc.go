// Package docmap provides a schema-driven document mapper for Go.
//
// Declare document types with field rules (defaults, bounds, choices,
// patterns, uniqueness) and references to other documents, then load and save
// them through any storage backend that implements the adapter contract.
//
// The module is organized into these packages:
//
//   - [github.com/CaliLuke/go-docmap/odm] - type declarations, documents, validation, hydration, population and the Store
//   - [github.com/CaliLuke/go-docmap/filter] - query filters, in-process matching and sorting
//   - [github.com/CaliLuke/go-docmap/adapters/memory] - in-process backend
//   - [github.com/CaliLuke/go-docmap/adapters/sqlite] - SQLite backend (pure Go, no CGo)
//   - [github.com/CaliLuke/go-docmap/adapters/bolt] - bbolt file backend
//   - [github.com/CaliLuke/go-docmap/adapters/mongo] - MongoDB backend
//   - [github.com/CaliLuke/go-docmap/schemadef] - schema files: parser, type builder and Go code generator
//   - [github.com/CaliLuke/go-docmap/connect] - URL-based backend selection, configuration and logging
//
// Everything except the MongoDB adapter tests runs without external services.
package docmap
