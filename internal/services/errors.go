// Package services defines the business logic behind the back-office
// resource endpoints. This file centralizes the service-level errors so
// handlers can map them to HTTP results consistently.
package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidSort is returned for an unknown sortBy field or sortOrder.
	ErrInvalidSort = errors.New("invalid sort")

	// ErrInvalidFilter is returned for an unknown filter parameter or a
	// value that does not parse.
	ErrInvalidFilter = errors.New("invalid filter")
)

// ValidationError carries per-field messages keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
