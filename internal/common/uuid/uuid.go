// Package uuid provides UUID functionality with random (version 4) UUIDs as
// the default. It wraps github.com/google/uuid. Project ids and job in-flight
// ids are random 16-byte values, so nothing here depends on time ordering.
package uuid

import (
	"github.com/google/uuid"
)

// UUID represents a UUID, aliased from github.com/google/uuid.UUID
type UUID = uuid.UUID

// New returns a new random UUIDv4. Panics if the random source fails.
func New() UUID {
	return uuid.New()
}

// NewRandom returns a new random UUIDv4 and any error encountered during generation.
func NewRandom() (UUID, error) {
	return uuid.NewRandom()
}

// Nil is the zero UUID value.
var Nil = uuid.Nil
