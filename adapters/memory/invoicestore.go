package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/ports"
)

// InvoiceStore is an in-memory implementation of ports.InvoiceStore.
type InvoiceStore struct {
	mu        sync.RWMutex
	invoices  map[string]invoice.Invoice // by ID
	byNumber  map[string]string          // number -> ID
	sequences map[int]int                // year -> last
}

// NewInvoiceStore creates a new in-memory invoice store.
func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{
		invoices:  make(map[string]invoice.Invoice),
		byNumber:  make(map[string]string),
		sequences: make(map[int]int),
	}
}

// Create stores a new invoice.
func (s *InvoiceStore) Create(ctx context.Context, inv invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(inv)
}

// CreateNumbered numbers and stores inv under a single lock.
func (s *InvoiceStore) CreateNumbered(ctx context.Context, inv invoice.Invoice, number func(seq int) string) (invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	year := inv.IssueDate.Year()
	seq := s.sequences[year] + 1
	inv.Number = number(seq)
	if err := s.insert(inv); err != nil {
		return invoice.Invoice{}, err
	}
	s.sequences[year] = seq
	return inv, nil
}

func (s *InvoiceStore) insert(inv invoice.Invoice) error {
	if _, exists := s.invoices[inv.ID]; exists {
		return ErrDuplicate
	}
	if _, exists := s.byNumber[inv.Number]; exists {
		return ErrDuplicate
	}
	s.invoices[inv.ID] = clone(inv)
	s.byNumber[inv.Number] = inv.ID
	return nil
}

// Get retrieves an invoice by ID.
func (s *InvoiceStore) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return invoice.Invoice{}, ErrNotFound
	}
	return clone(inv), nil
}

// List returns invoices, newest first.
func (s *InvoiceStore) List(ctx context.Context, filter ports.InvoiceFilter) ([]invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []invoice.Invoice
	for _, inv := range s.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		matched = append(matched, inv)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Number > matched[j].Number
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]invoice.Invoice, len(matched))
	for i, inv := range matched {
		result[i] = clone(inv)
	}
	return result, nil
}

// UpdateStatus moves an invoice from one status to another.
func (s *InvoiceStore) UpdateStatus(ctx context.Context, id string, from, to invoice.Status, paidAt *time.Time, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return ErrNotFound
	}
	if inv.Status != from {
		return ErrConflict
	}
	inv.Status = to
	inv.UpdatedAt = updatedAt
	inv.PaidAt = nil
	if paidAt != nil {
		t := *paidAt
		inv.PaidAt = &t
	}
	s.invoices[id] = inv
	return nil
}

func clone(inv invoice.Invoice) invoice.Invoice {
	if inv.Items != nil {
		inv.Items = append([]invoice.LineItem(nil), inv.Items...)
	}
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		inv.PaidAt = &t
	}
	return inv
}

// Ensure interface compliance.
var _ ports.InvoiceStore = (*InvoiceStore)(nil)

// NoteStore is an in-memory implementation of ports.NoteStore.
type NoteStore struct {
	mu    sync.RWMutex
	ids   map[string]bool
	notes map[string][]invoice.Note // invoice ID -> notes
}

// NewNoteStore creates a new in-memory note store.
func NewNoteStore() *NoteStore {
	return &NoteStore{
		ids:   make(map[string]bool),
		notes: make(map[string][]invoice.Note),
	}
}

// Create stores a new note.
func (s *NoteStore) Create(ctx context.Context, n invoice.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ids[n.ID] {
		return ErrDuplicate
	}
	s.ids[n.ID] = true
	s.notes[n.InvoiceID] = append(s.notes[n.InvoiceID], n)
	return nil
}

// ListByInvoice returns notes of an invoice, oldest first.
func (s *NoteStore) ListByInvoice(ctx context.Context, invoiceID string) ([]invoice.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := append([]invoice.Note(nil), s.notes[invoiceID]...)
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return notes, nil
}

// Ensure interface compliance.
var _ ports.NoteStore = (*NoteStore)(nil)
