// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/domain/wizard"
)

// Store errors shared by every adapter.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique value is already taken.
	ErrDuplicate = errors.New("already exists")

	// ErrConflict is returned when a conditional write finds the record
	// no longer in the expected state.
	ErrConflict = errors.New("changed concurrently")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// InvoiceFilter narrows an invoice listing.
type InvoiceFilter struct {
	Status invoice.Status // empty matches all
	Limit  int
	Offset int
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	// Create stores a new invoice that already carries its number.
	Create(ctx context.Context, inv invoice.Invoice) error

	// CreateNumbered reserves the next sequence number of the issue year,
	// sets inv.Number to number(seq) and stores inv in one transaction.
	// A failed insert releases the number.
	CreateNumbered(ctx context.Context, inv invoice.Invoice, number func(seq int) string) (invoice.Invoice, error)

	// Get retrieves an invoice by ID.
	Get(ctx context.Context, id string) (invoice.Invoice, error)

	// List returns invoices, newest first.
	List(ctx context.Context, filter InvoiceFilter) ([]invoice.Invoice, error)

	// UpdateStatus moves an invoice from status from to status to.
	// Returns ErrConflict when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to invoice.Status, paidAt *time.Time, updatedAt time.Time) error
}

// NoteStore persists invoice notes.
type NoteStore interface {
	// Create stores a new note.
	Create(ctx context.Context, n invoice.Note) error

	// ListByInvoice returns notes of an invoice, oldest first.
	ListByInvoice(ctx context.Context, invoiceID string) ([]invoice.Note, error)
}

// DraftStore persists wizard drafts.
type DraftStore interface {
	// Create stores a new draft.
	Create(ctx context.Context, d wizard.Draft) error

	// Get retrieves a draft by ID.
	Get(ctx context.Context, id string) (wizard.Draft, error)

	// Update replaces a draft whose stored stage is from.
	// Returns ErrConflict when the stage has moved meanwhile.
	Update(ctx context.Context, d wizard.Draft, from wizard.Stage) error
}
