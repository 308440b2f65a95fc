// Package id provides UUIDv7 generation for ledger entities.
// UUIDv7 is time-ordered, so invoices and closures sort by creation time.
package id

import (
	"github.com/google/uuid"
)

// ID is a type alias for UUID.
type ID = uuid.UUID

// New generates a new UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// NewString generates a new UUIDv7 in canonical string form.
func NewString() string {
	return New().String()
}

// Valid reports whether s is a well-formed UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
