package store

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrThreadNotFound is returned when a thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrThreadExists is returned when creating a thread whose identifier
	// is already taken.
	ErrThreadExists = errors.New("thread already exists")

	// ErrInteractionNotFound is returned when an interaction does not
	// exist.
	ErrInteractionNotFound = errors.New("interaction not found")

	// ErrInteractionExists is returned when inserting an interaction whose
	// unique id is already stored.
	ErrInteractionExists = errors.New("interaction already exists")

	// ErrDynamicInteraction is returned when a dynamic interaction is
	// handed to the store. Dynamic interactions are never persisted.
	ErrDynamicInteraction = errors.New("dynamic interactions cannot be " +
		"persisted")

	// ErrAlreadyPersisted is returned when inserting an interaction that
	// already carries a sort id.
	ErrAlreadyPersisted = errors.New("interaction already persisted")

	// ErrNotPersisted is returned when updating an interaction that was
	// never committed.
	ErrNotPersisted = errors.New("interaction not persisted")

	// ErrValueOutOfRange is returned for millisecond or sort id values
	// that do not fit the signed 64-bit columns of the database.
	ErrValueOutOfRange = errors.New("value out of storable range")
)

// toSQLInt converts v for storage in a signed INTEGER column.
func toSQLInt(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", ErrValueOutOfRange, v)
	}

	return int64(v), nil
}

// clampSQLInt converts a query bound, saturating at the largest storable
// value.
func clampSQLInt(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}
