// Package id provides the time-ordered identifiers of every persisted row.
package id

import (
	"bytes"
	"strings"

	"github.com/google/uuid"
)

// ID is a UUIDv7. Its first 48 bits are a millisecond timestamp, so byte
// order follows creation order.
type ID = uuid.UUID

// New returns a UUIDv7, falling back to a random v4 if the clock read fails.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse reads an ID, ignoring surrounding whitespace.
func Parse(s string) (ID, error) {
	return uuid.Parse(strings.TrimSpace(s))
}

// MustParse is Parse for fixtures.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns the zero ID.
func Nil() ID {
	return uuid.Nil
}

// IsNil reports whether v is the zero ID.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Less orders IDs by their bytes, which for v7 is creation order. It breaks
// ties between rows sharing a timestamp.
func Less(a, b ID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
