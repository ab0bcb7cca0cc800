// Package ident generates the identifiers used for conversations and messages.
//
// Identifiers are RFC 9562 version 7 UUIDs: the leading 48 bits are a Unix
// millisecond timestamp, so the canonical string form sorts in creation order.
package ident

import "github.com/google/uuid"

// New returns a fresh identifier. Identifiers generated by one process are
// strictly increasing, even within the same millisecond.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Valid reports whether id parses as a time-ordered identifier.
func Valid(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.Version() == 7
}
