// Package memory provides in-memory implementations of storage ports.
// Used for tests and for the "memory" database driver.
package memory

import "github.com/artpar/facturo/ports"

var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = ports.ErrNotFound

	// ErrDuplicate is returned when an ID or invoice number is already taken.
	ErrDuplicate = ports.ErrDuplicate

	// ErrConflict is returned when a conditional update lost a race.
	ErrConflict = ports.ErrConflict
)
