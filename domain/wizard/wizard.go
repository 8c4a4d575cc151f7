// Package wizard models the three-stage invoice creation flow as pure functions:
// details, then line-item verification, then review, then submitted.
package wizard

import (
	"errors"
	"fmt"
	"time"

	"github.com/artpar/facturo/domain/invoice"
)

// Stage is a step of the creation flow.
type Stage string

const (
	StageDetails      Stage = "details"
	StageVerification Stage = "verification"
	StageReview       Stage = "review"
	StageSubmitted    Stage = "submitted"
)

// sequence is the linear order of stages.
var sequence = []Stage{StageDetails, StageVerification, StageReview, StageSubmitted}

var (
	// ErrInvalidTransition is returned when a move leaves the stage sequence.
	ErrInvalidTransition = errors.New("invalid wizard transition")

	// ErrIncomplete is returned when the current stage lacks what the next one needs.
	ErrIncomplete = errors.New("wizard stage incomplete")

	// ErrSubmitted is returned when a submitted draft is modified.
	ErrSubmitted = errors.New("draft already submitted")
)

// Index returns the position of s in the sequence, or -1.
func (s Stage) Index() int {
	for i, st := range sequence {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage after s.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(sequence) {
		return "", false
	}
	return sequence[i+1], true
}

// Prev returns the stage before s. Submitted drafts cannot go back.
func (s Stage) Prev() (Stage, bool) {
	i := s.Index()
	if i <= 0 || s == StageSubmitted {
		return "", false
	}
	return sequence[i-1], true
}

// ParseStage parses a stage name.
func ParseStage(s string) (Stage, error) {
	if st := Stage(s); st.Index() >= 0 {
		return st, nil
	}
	return "", fmt.Errorf("unknown wizard stage %q", s)
}

// Draft is an invoice being composed through the wizard.
type Draft struct {
	ID        string
	Stage     Stage
	Invoice   invoice.Invoice
	InvoiceID string // set once submitted
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Start creates a draft at the details stage.
func Start(id string, now time.Time) Draft {
	return Draft{
		ID:    id,
		Stage: StageDetails,
		Invoice: invoice.Invoice{
			Currency: invoice.DefaultCurrency,
			Status:   invoice.StatusDraft,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Update replaces the invoice content of d.
func Update(d Draft, inv invoice.Invoice, now time.Time) (Draft, error) {
	if d.Stage == StageSubmitted {
		return d, ErrSubmitted
	}
	d.Invoice = inv
	d.UpdatedAt = now
	return d, nil
}

// Advance moves d to the next stage. Submitting goes through Submit.
func Advance(d Draft, now time.Time) (Draft, error) {
	next, ok := d.Stage.Next()
	if !ok || next == StageSubmitted {
		return d, fmt.Errorf("%w: cannot advance from %s", ErrInvalidTransition, d.Stage)
	}
	if err := ready(d); err != nil {
		return d, err
	}
	d.Stage = next
	d.UpdatedAt = now
	return d, nil
}

// Back moves d to the previous stage.
func Back(d Draft, now time.Time) (Draft, error) {
	prev, ok := d.Stage.Prev()
	if !ok {
		return d, fmt.Errorf("%w: cannot go back from %s", ErrInvalidTransition, d.Stage)
	}
	d.Stage = prev
	d.UpdatedAt = now
	return d, nil
}

// Submit moves a reviewed draft to submitted and returns the invoice to issue.
func Submit(d Draft, now time.Time) (Draft, invoice.Invoice, error) {
	if d.Stage != StageReview {
		return d, invoice.Invoice{}, fmt.Errorf("%w: cannot submit from %s", ErrInvalidTransition, d.Stage)
	}
	inv := d.Invoice
	inv.Totals = invoice.ComputeTotals(inv.Items)
	inv.Status = invoice.StatusDraft
	if inv.Currency == "" {
		inv.Currency = invoice.DefaultCurrency
	}
	d.Stage = StageSubmitted
	d.UpdatedAt = now
	return d, inv, nil
}

// ready checks that d carries what leaving its current stage requires.
func ready(d Draft) error {
	switch d.Stage {
	case StageDetails:
		if d.Invoice.Client.Name == "" {
			return fmt.Errorf("%w: client name is required", ErrIncomplete)
		}
	case StageVerification:
		if len(d.Invoice.Items) == 0 {
			return fmt.Errorf("%w: at least one line item is required", ErrIncomplete)
		}
	}
	return nil
}
