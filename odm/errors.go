// Package odm defines the error types returned by schema, validation and persistence operations.
package odm

import (
	"errors"
	"fmt"
)

// ConfigurationError is returned when a schema declaration is malformed.
type ConfigurationError struct {
	TypeName string
	Field    string
	Message  string
}

// Error returns the error message for ConfigurationError.
func (e *ConfigurationError) Error() string {
	switch {
	case e.TypeName != "" && e.Field != "":
		return fmt.Sprintf("configuration %s.%s: %s", e.TypeName, e.Field, e.Message)
	case e.TypeName != "":
		return fmt.Sprintf("configuration %s: %s", e.TypeName, e.Message)
	}
	return "configuration: " + e.Message
}

// ValidationError is returned when a stored value fails a type, pattern,
// choices, range or required check.
type ValidationError struct {
	Collection string
	Field      string
	Message    string
}

// Error returns the error message for ValidationError.
func (e *ValidationError) Error() string {
	return e.Message
}

// PersistenceError wraps a storage adapter failure with the operation and
// collection it happened in.
type PersistenceError struct {
	Op         string
	Collection string
	// Field names the reference field when a population load failed.
	Field string
	Cause error
}

// Error returns the error message for PersistenceError.
func (e *PersistenceError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s %s.%s: %v", e.Op, e.Collection, e.Field, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Cause)
}

// Unwrap returns the underlying adapter error.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// HydrationError is returned when a raw record cannot be turned into a document.
type HydrationError struct {
	TypeName string
	Field    string
	Cause    error
}

// Error returns the error message for HydrationError.
func (e *HydrationError) Error() string {
	return fmt.Sprintf("hydrating %s.%s: %v", e.TypeName, e.Field, e.Cause)
}

// Unwrap returns the underlying cause of the HydrationError.
func (e *HydrationError) Unwrap() error {
	return e.Cause
}

// NotRegisteredError is returned when a type name is not in the registry.
type NotRegisteredError struct {
	TypeName string
}

// Error returns the error message for NotRegisteredError.
func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("type %q is not registered", e.TypeName)
}

// NotFoundError is returned when a query expected to return a document
// finds no matching record.
type NotFoundError struct {
	Collection string
}

// Error returns the error message for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found", e.Collection)
}

// ErrNoGeneratedID is returned by adapters when an insert yields no identity.
var ErrNoGeneratedID = errors.New("save failed to generate ID for object")

// ErrDuplicateKey is returned by adapters when a write violates a unique index.
var ErrDuplicateKey = errors.New("duplicate key")

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
