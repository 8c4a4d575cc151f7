package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/domain/wizard"
	"github.com/artpar/facturo/ports"
	"github.com/rs/zerolog"
)

// DraftService drives the invoice creation wizard.
type DraftService struct {
	drafts   ports.DraftStore
	invoices *InvoiceService
	clock    ports.Clock
	ids      ports.IDGenerator
	logger   zerolog.Logger
}

// DraftDeps contains dependencies for DraftService.
type DraftDeps struct {
	Drafts   ports.DraftStore
	Invoices *InvoiceService
	Clock    ports.Clock
	IDs      ports.IDGenerator
	Logger   zerolog.Logger
}

// NewDraftService creates a new draft service.
func NewDraftService(deps DraftDeps) *DraftService {
	return &DraftService{
		drafts:   deps.Drafts,
		invoices: deps.Invoices,
		clock:    deps.Clock,
		ids:      deps.IDs,
		logger:   deps.Logger,
	}
}

// Start opens a new draft at the details stage.
func (s *DraftService) Start(ctx context.Context) (wizard.Draft, error) {
	d := wizard.Start(s.ids.New(), s.clock.Now())
	d.Invoice.Currency = s.invoices.Config().Currency
	if err := s.drafts.Create(ctx, d); err != nil {
		return wizard.Draft{}, fmt.Errorf("store draft: %w", err)
	}
	s.logger.Debug().Str("draft_id", d.ID).Msg("draft started")
	return d, nil
}

// Get retrieves a draft.
func (s *DraftService) Get(ctx context.Context, id string) (wizard.Draft, error) {
	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		return wizard.Draft{}, fmt.Errorf("get draft %s: %w", id, err)
	}
	return d, nil
}

// Update replaces the invoice content of a draft.
func (s *DraftService) Update(ctx context.Context, id string, in InvoiceInput) (wizard.Draft, error) {
	return s.change(ctx, id, func(d wizard.Draft) (wizard.Draft, error) {
		inv := d.Invoice
		inv.Client = in.Client
		inv.IssueDate = in.IssueDate
		inv.DueDate = in.DueDate
		inv.Items = s.invoices.Lines(in.Items)
		if in.Currency != "" {
			inv.Currency = in.Currency
		}
		return wizard.Update(d, inv, s.clock.Now())
	})
}

// Advance moves a draft to its next stage.
func (s *DraftService) Advance(ctx context.Context, id string) (wizard.Draft, error) {
	return s.change(ctx, id, func(d wizard.Draft) (wizard.Draft, error) {
		return wizard.Advance(d, s.clock.Now())
	})
}

// Back moves a draft to its previous stage.
func (s *DraftService) Back(ctx context.Context, id string) (wizard.Draft, error) {
	return s.change(ctx, id, func(d wizard.Draft) (wizard.Draft, error) {
		return wizard.Back(d, s.clock.Now())
	})
}

// Submit issues the invoice of a reviewed draft.
// The draft is claimed at submitted before the invoice is issued, so
// concurrent submits issue one invoice. A failed issue puts it back at review.
func (s *DraftService) Submit(ctx context.Context, id string) (wizard.Draft, invoice.Invoice, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return wizard.Draft{}, invoice.Invoice{}, err
	}

	submitted, inv, err := wizard.Submit(d, s.clock.Now())
	if err != nil {
		return d, invoice.Invoice{}, err
	}
	if err := s.store(ctx, submitted, d.Stage); err != nil {
		return d, invoice.Invoice{}, err
	}

	inv, err = s.invoices.Issue(ctx, inv)
	if err != nil {
		if rerr := s.drafts.Update(ctx, d, wizard.StageSubmitted); rerr != nil {
			s.logger.Error().Err(rerr).Str("draft_id", id).Msg("failed to return draft to review")
		}
		return d, invoice.Invoice{}, err
	}

	submitted.InvoiceID = inv.ID
	submitted.Invoice = inv
	if err := s.drafts.Update(ctx, submitted, wizard.StageSubmitted); err != nil {
		s.logger.Error().Err(err).
			Str("draft_id", id).
			Str("invoice_id", inv.ID).
			Msg("invoice issued but not linked to its draft")
		return submitted, inv, fmt.Errorf("update draft %s: %w", id, err)
	}

	s.logger.Info().Str("draft_id", id).Str("invoice_id", inv.ID).Msg("draft submitted")
	return submitted, inv, nil
}

func (s *DraftService) change(ctx context.Context, id string, fn func(wizard.Draft) (wizard.Draft, error)) (wizard.Draft, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return wizard.Draft{}, err
	}
	next, err := fn(d)
	if err != nil {
		return d, err
	}
	if err := s.store(ctx, next, d.Stage); err != nil {
		return d, err
	}
	return next, nil
}

// store writes d if the stored draft is still at stage from.
func (s *DraftService) store(ctx context.Context, d wizard.Draft, from wizard.Stage) error {
	err := s.drafts.Update(ctx, d, from)
	if errors.Is(err, ports.ErrConflict) {
		return fmt.Errorf("%w: draft %s moved on from %s", wizard.ErrInvalidTransition, d.ID, from)
	}
	if err != nil {
		return fmt.Errorf("update draft %s: %w", d.ID, err)
	}
	return nil
}
