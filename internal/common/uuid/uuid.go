// Package uuid issues the time-ordered identifiers that tag provisioning runs and HTTP
// requests. It wraps github.com/google/uuid with version 7 as the only version.
package uuid

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UUID represents a UUID, aliased from github.com/google/uuid.UUID
type UUID = uuid.UUID

// Nil is the zero UUID value.
var Nil = uuid.Nil

// NewRandom returns a new UUIDv7 and any error encountered during generation.
func NewRandom() (UUID, error) {
	return uuid.NewV7()
}

// New returns a new UUIDv7. Panics if UUID generation fails.
func New() UUID {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return id
}

// IsUUIDv7 reports whether id is a version 7 UUID.
func IsUUIDv7(id UUID) bool {
	return id.Version() == uuid.Version(7)
}

// Timestamp returns the creation time encoded in the top 48 bits of a UUIDv7 string.
func Timestamp(s string) (time.Time, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	if !IsUUIDv7(id) {
		return time.Time{}, fmt.Errorf("%s is not a version 7 uuid", s)
	}
	ms := binary.BigEndian.Uint64(id[0:8]) >> 16
	return time.UnixMilli(int64(ms)), nil
}
