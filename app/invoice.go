// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/ports"
	"github.com/rs/zerolog"
)

// InvoiceService issues invoices and keeps their notes.
type InvoiceService struct {
	invoices   ports.InvoiceStore
	notes      ports.NoteStore
	clock      ports.Clock
	invoiceIDs ports.IDGenerator
	noteIDs    ports.IDGenerator
	logger     zerolog.Logger

	// Hot-reloadable configuration
	cfg atomic.Pointer[InvoiceConfig]
}

// InvoiceDeps contains dependencies for InvoiceService.
type InvoiceDeps struct {
	Invoices   ports.InvoiceStore
	Notes      ports.NoteStore
	Clock      ports.Clock
	InvoiceIDs ports.IDGenerator
	NoteIDs    ports.IDGenerator
	Logger     zerolog.Logger
}

// InvoiceConfig contains configuration for InvoiceService.
type InvoiceConfig struct {
	NumberPrefix   string
	Currency       string
	DefaultVATRate int64 // basis points
	DueDays        int   // 0 leaves the due date unset
}

// DefaultInvoiceConfig returns the configuration used when none is given.
func DefaultInvoiceConfig() InvoiceConfig {
	return InvoiceConfig{
		NumberPrefix:   "FAC",
		Currency:       invoice.DefaultCurrency,
		DefaultVATRate: invoice.VATStandard,
		DueDays:        30,
	}
}

// NewInvoiceService creates a new invoice service.
func NewInvoiceService(deps InvoiceDeps, cfg InvoiceConfig) *InvoiceService {
	s := &InvoiceService{
		invoices:   deps.Invoices,
		notes:      deps.Notes,
		clock:      deps.Clock,
		invoiceIDs: deps.InvoiceIDs,
		noteIDs:    deps.NoteIDs,
		logger:     deps.Logger,
	}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig replaces the configuration.
// This is thread-safe and can be called while handling requests.
func (s *InvoiceService) UpdateConfig(cfg InvoiceConfig) {
	def := DefaultInvoiceConfig()
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = def.NumberPrefix
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	s.cfg.Store(&cfg)
}

// Config returns the current configuration.
func (s *InvoiceService) Config() InvoiceConfig {
	return *s.cfg.Load()
}

// LineInput is a line item as submitted by a client.
// A nil VATRate takes the configured default.
type LineInput struct {
	Description string
	Quantity    int64
	UnitPrice   int64
	VATRate     *int64
}

// InvoiceInput holds the caller-provided parts of a new invoice.
type InvoiceInput struct {
	Client    invoice.Client
	IssueDate time.Time // zero means today
	DueDate   time.Time // zero applies the configured delay
	Items     []LineInput
	Currency  string
}

// Lines converts line inputs to line items, applying the default VAT rate.
func (s *InvoiceService) Lines(in []LineInput) []invoice.LineItem {
	if len(in) == 0 {
		return nil
	}
	rate := s.Config().DefaultVATRate
	items := make([]invoice.LineItem, len(in))
	for i, l := range in {
		items[i] = invoice.LineItem{
			Description: strings.TrimSpace(l.Description),
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			VATRate:     rate,
		}
		if l.VATRate != nil {
			items[i].VATRate = *l.VATRate
		}
	}
	return items
}

// Create validates, numbers and stores a new invoice in draft status.
func (s *InvoiceService) Create(ctx context.Context, in InvoiceInput) (invoice.Invoice, error) {
	return s.Issue(ctx, invoice.Invoice{
		Client:    in.Client,
		IssueDate: in.IssueDate,
		DueDate:   in.DueDate,
		Items:     s.Lines(in.Items),
		Currency:  in.Currency,
	})
}

// Issue completes inv with defaults, totals, an ID and the next number, then stores it.
// Numbers are only reserved for valid invoices, and the store releases the
// number when the insert fails, so the sequence has no gaps.
func (s *InvoiceService) Issue(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	cfg := s.Config()
	now := s.clock.Now()

	if inv.IssueDate.IsZero() {
		inv.IssueDate = startOfDay(now)
	}
	if inv.DueDate.IsZero() && cfg.DueDays > 0 {
		inv.DueDate = inv.IssueDate.AddDate(0, 0, cfg.DueDays)
	}
	if inv.Currency == "" {
		inv.Currency = cfg.Currency
	}
	inv.Client.Name = strings.TrimSpace(inv.Client.Name)
	inv.Status = invoice.StatusDraft
	inv.PaidAt = nil
	inv.Totals = invoice.ComputeTotals(inv.Items)

	if err := inv.Validate(); err != nil {
		return invoice.Invoice{}, fmt.Errorf("invalid invoice: %w", err)
	}

	year := inv.IssueDate.Year()
	inv.ID = s.invoiceIDs.New()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	inv, err := s.invoices.CreateNumbered(ctx, inv, func(seq int) string {
		return invoice.FormatNumber(cfg.NumberPrefix, year, seq)
	})
	if err != nil {
		s.logger.Error().Err(err).Int("year", year).Msg("failed to store invoice")
		return invoice.Invoice{}, fmt.Errorf("store invoice: %w", err)
	}

	s.logger.Info().
		Str("invoice_id", inv.ID).
		Str("number", inv.Number).
		Int64("total", inv.Totals.Total).
		Msg("invoice created")
	return inv, nil
}

// Get retrieves an invoice.
func (s *InvoiceService) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("get invoice %s: %w", id, err)
	}
	return inv, nil
}

// List returns invoices matching filter, newest first.
func (s *InvoiceService) List(ctx context.Context, filter ports.InvoiceFilter) ([]invoice.Invoice, error) {
	invoices, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}

// UpdateStatus moves an invoice to next if the transition is allowed.
func (s *InvoiceService) UpdateStatus(ctx context.Context, id string, next invoice.Status) (invoice.Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return invoice.Invoice{}, err
	}

	prev := inv.Status
	inv, err = invoice.Transition(inv, next, s.clock.Now())
	if err != nil {
		return invoice.Invoice{}, err
	}
	err = s.invoices.UpdateStatus(ctx, id, prev, inv.Status, inv.PaidAt, inv.UpdatedAt)
	if errors.Is(err, ports.ErrConflict) {
		return invoice.Invoice{}, fmt.Errorf("%w: invoice %s is no longer %s", invoice.ErrInvalidTransition, id, prev)
	}
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("update invoice %s: %w", id, err)
	}

	s.logger.Info().
		Str("invoice_id", id).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("invoice status changed")
	return inv, nil
}

// AddNote attaches a note to an existing invoice.
func (s *InvoiceService) AddNote(ctx context.Context, invoiceID, body string) (invoice.Note, error) {
	if _, err := s.Get(ctx, invoiceID); err != nil {
		return invoice.Note{}, err
	}

	n := invoice.Note{
		ID:        s.noteIDs.New(),
		InvoiceID: invoiceID,
		Body:      strings.TrimSpace(body),
		CreatedAt: s.clock.Now(),
	}
	if err := n.Validate(); err != nil {
		return invoice.Note{}, fmt.Errorf("invalid note: %w", err)
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return invoice.Note{}, fmt.Errorf("store note: %w", err)
	}

	s.logger.Debug().Str("invoice_id", invoiceID).Str("note_id", n.ID).Msg("note added")
	return n, nil
}

// ListNotes returns the notes of an existing invoice, oldest first.
func (s *InvoiceService) ListNotes(ctx context.Context, invoiceID string) ([]invoice.Note, error) {
	if _, err := s.Get(ctx, invoiceID); err != nil {
		return nil, err
	}
	notes, err := s.notes.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
