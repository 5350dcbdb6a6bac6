// Package uuid wraps github.com/google/uuid with version 7 (time ordered) as
// the default, used for request identifiers.
package uuid

import (
	"github.com/google/uuid"
)

type UUID = uuid.UUID

// NewRandom returns a new UUIDv7.
func NewRandom() (UUID, error) {
	return uuid.NewV7()
}
