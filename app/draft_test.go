package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/artpar/facturo/adapters/idgen"
	"github.com/artpar/facturo/app"
	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/domain/wizard"
	"github.com/artpar/facturo/ports"
	"github.com/rs/zerolog"
)

func newTestDraftService() (*app.DraftService, *app.InvoiceService, testStores) {
	invoices, stores := newTestInvoiceService(app.DefaultInvoiceConfig())
	drafts := app.NewDraftService(app.DraftDeps{
		Drafts:   stores.drafts,
		Invoices: invoices,
		Clock:    stores.clock,
		IDs:      idgen.NewSequential("draft_"),
		Logger:   zerolog.Nop(),
	})
	return drafts, invoices, stores
}

func TestDraftService_FullFlow(t *testing.T) {
	ctx := context.Background()
	svc, invoices, _ := newTestDraftService()

	d, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if d.ID != "draft_1" || d.Stage != wizard.StageDetails {
		t.Fatalf("draft = %+v", d)
	}

	if _, err := svc.Advance(ctx, d.ID); !errors.Is(err, wizard.ErrIncomplete) {
		t.Fatalf("advance empty draft: error = %v, want ErrIncomplete", err)
	}

	in := validInput()
	if _, err := svc.Update(ctx, d.ID, in); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	for _, want := range []wizard.Stage{wizard.StageVerification, wizard.StageReview} {
		d, err = svc.Advance(ctx, d.ID)
		if err != nil || d.Stage != want {
			t.Fatalf("Advance() = %s, %v, want %s", d.Stage, err, want)
		}
	}

	d, err = svc.Back(ctx, d.ID)
	if err != nil || d.Stage != wizard.StageVerification {
		t.Fatalf("Back() = %s, %v", d.Stage, err)
	}
	if _, _, err := svc.Submit(ctx, d.ID); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Fatalf("submit from verification: error = %v", err)
	}
	if _, err := svc.Advance(ctx, d.ID); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	d, inv, err := svc.Submit(ctx, d.ID)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if d.Stage != wizard.StageSubmitted || d.InvoiceID != inv.ID {
		t.Errorf("draft = %s / %s, invoice %s", d.Stage, d.InvoiceID, inv.ID)
	}
	if inv.Number != "FAC-2026-0001" || inv.Totals.Total != 118550 {
		t.Errorf("invoice = %s, total %d", inv.Number, inv.Totals.Total)
	}

	stored, err := invoices.Get(ctx, inv.ID)
	if err != nil || stored.Status != invoice.StatusDraft {
		t.Errorf("stored invoice = %+v, %v", stored, err)
	}

	reloaded, _ := svc.Get(ctx, d.ID)
	if reloaded.Stage != wizard.StageSubmitted {
		t.Errorf("reloaded stage = %s", reloaded.Stage)
	}
	if _, err := svc.Update(ctx, d.ID, in); !errors.Is(err, wizard.ErrSubmitted) {
		t.Errorf("update after submit: error = %v, want ErrSubmitted", err)
	}
	if _, _, err := svc.Submit(ctx, d.ID); !errors.Is(err, wizard.ErrInvalidTransition) {
		t.Errorf("second submit: error = %v, want ErrInvalidTransition", err)
	}
}

func TestDraftService_SubmitInvalidKeepsReview(t *testing.T) {
	ctx := context.Background()
	svc, _, stores := newTestDraftService()

	d, _ := svc.Start(ctx)
	in := validInput()
	in.Client.Email = "invalide"
	_, _ = svc.Update(ctx, d.ID, in)
	_, _ = svc.Advance(ctx, d.ID)
	_, _ = svc.Advance(ctx, d.ID)

	if _, _, err := svc.Submit(ctx, d.ID); err == nil {
		t.Fatal("expected validation error")
	}

	reloaded, _ := stores.drafts.Get(ctx, d.ID)
	if reloaded.Stage != wizard.StageReview || reloaded.InvoiceID != "" {
		t.Errorf("draft = %s / %q, want review without invoice", reloaded.Stage, reloaded.InvoiceID)
	}
}

func TestDraftService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestDraftService()

	if _, err := svc.Get(ctx, "draft_missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Advance(ctx, "draft_missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Advance() error = %v, want ErrNotFound", err)
	}
	if _, _, err := svc.Submit(ctx, "draft_missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Submit() error = %v, want ErrNotFound", err)
	}
}
