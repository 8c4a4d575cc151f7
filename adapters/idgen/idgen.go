// Package idgen provides ID generation implementations.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/facturo/ports"
	"github.com/google/uuid"
)

// Prefixes used for the entities the server creates.
const (
	InvoicePrefix = "inv_"
	NotePrefix    = "note_"
	DraftPrefix   = "draft_"
)

// UUID generates random UUIDs, optionally prefixed with an entity tag.
type UUID struct {
	Prefix string
}

// NewUUID creates a UUID generator for the given prefix.
func NewUUID(prefix string) UUID {
	return UUID{Prefix: prefix}
}

// New generates a new UUID v4.
func (g UUID) New() string {
	return g.Prefix + uuid.New().String()
}

// Ensure interface compliance.
var _ ports.IDGenerator = UUID{}

// Sequential generates sequential IDs (for testing).
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

// Reset resets the counter (for testing).
func (s *Sequential) Reset() {
	s.counter.Store(0)
}

// Ensure interface compliance.
var _ ports.IDGenerator = (*Sequential)(nil)
