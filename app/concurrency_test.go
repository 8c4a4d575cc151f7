package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/artpar/facturo/adapters/clock"
	"github.com/artpar/facturo/adapters/idgen"
	"github.com/artpar/facturo/adapters/memory"
	"github.com/artpar/facturo/app"
	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/domain/wizard"
	"github.com/artpar/facturo/ports"
	"github.com/rs/zerolog"
)

// Reads are slowed down so concurrent callers all see the same state
// before either of them writes.

type slowInvoiceStore struct {
	*memory.InvoiceStore
}

func (s slowInvoiceStore) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	time.Sleep(5 * time.Millisecond)
	return s.InvoiceStore.Get(ctx, id)
}

type slowDraftStore struct {
	*memory.DraftStore
}

func (s slowDraftStore) Get(ctx context.Context, id string) (wizard.Draft, error) {
	time.Sleep(5 * time.Millisecond)
	return s.DraftStore.Get(ctx, id)
}

// listIDs hands out the given ids in order.
type listIDs struct {
	mu  sync.Mutex
	ids []string
}

func (l *listIDs) New() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.ids[0]
	l.ids = l.ids[1:]
	return id
}

func newSlowServices() (*app.InvoiceService, *app.DraftService, *memory.InvoiceStore) {
	invoices := memory.NewInvoiceStore()
	clk := clock.NewFake(baseTime)
	svc := app.NewInvoiceService(app.InvoiceDeps{
		Invoices:   slowInvoiceStore{invoices},
		Notes:      memory.NewNoteStore(),
		Clock:      clk,
		InvoiceIDs: idgen.NewSequential("inv_"),
		NoteIDs:    idgen.NewSequential("note_"),
		Logger:     zerolog.Nop(),
	}, app.DefaultInvoiceConfig())
	drafts := app.NewDraftService(app.DraftDeps{
		Drafts:   slowDraftStore{memory.NewDraftStore()},
		Invoices: svc,
		Clock:    clk,
		IDs:      idgen.NewSequential("draft_"),
		Logger:   zerolog.Nop(),
	})
	return svc, drafts, invoices
}

func TestInvoiceService_UpdateStatusConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, _, store := newSlowServices()

	inv, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, inv.ID, invoice.StatusSent); err != nil {
		t.Fatalf("UpdateStatus(sent) error = %v", err)
	}

	targets := []invoice.Status{invoice.StatusPaid, invoice.StatusCancelled}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to invoice.Status) {
			defer wg.Done()
			_, errs[i] = svc.UpdateStatus(ctx, inv.ID, to)
		}(i, to)
	}
	wg.Wait()

	var won invoice.Status
	rejected := 0
	for i, err := range errs {
		switch {
		case err == nil:
			won = targets[i]
		case errors.Is(err, invoice.ErrInvalidTransition):
			rejected++
		default:
			t.Fatalf("UpdateStatus(%s) error = %v", targets[i], err)
		}
	}
	if won == "" || rejected != 1 {
		t.Fatalf("errors = %v, want exactly one transition to win", errs)
	}

	stored, _ := store.Get(ctx, inv.ID)
	if stored.Status != won {
		t.Errorf("stored status = %s, want %s", stored.Status, won)
	}
}

func TestDraftService_SubmitConcurrent(t *testing.T) {
	ctx := context.Background()
	_, drafts, store := newSlowServices()

	d, _ := drafts.Start(ctx)
	if _, err := drafts.Update(ctx, d.ID, validInput()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := drafts.Advance(ctx, d.ID); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
	}

	const n = 3
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		issued []invoice.Invoice
		errs   []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, inv, err := drafts.Submit(ctx, d.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			issued = append(issued, inv)
		}()
	}
	wg.Wait()

	if len(issued) != 1 {
		t.Fatalf("issued %d invoices from one draft, want 1", len(issued))
	}
	for _, err := range errs {
		if !errors.Is(err, wizard.ErrInvalidTransition) {
			t.Errorf("losing submit error = %v, want ErrInvalidTransition", err)
		}
	}

	all, _ := store.List(ctx, ports.InvoiceFilter{})
	if len(all) != 1 || all[0].Number != "FAC-2026-0001" {
		t.Errorf("stored invoices = %+v", all)
	}
	reloaded, _ := drafts.Get(ctx, d.ID)
	if reloaded.Stage != wizard.StageSubmitted || reloaded.InvoiceID != issued[0].ID {
		t.Errorf("draft = %s / %s, want submitted with %s", reloaded.Stage, reloaded.InvoiceID, issued[0].ID)
	}
}

func TestInvoiceService_FailedInsertKeepsNumber(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInvoiceStore()
	svc := app.NewInvoiceService(app.InvoiceDeps{
		Invoices:   store,
		Notes:      memory.NewNoteStore(),
		Clock:      clock.NewFake(baseTime),
		InvoiceIDs: &listIDs{ids: []string{"inv_a", "inv_a", "inv_b"}},
		NoteIDs:    idgen.NewSequential("note_"),
		Logger:     zerolog.Nop(),
	}, app.DefaultInvoiceConfig())

	first, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(ctx, validInput()); !errors.Is(err, ports.ErrDuplicate) {
		t.Fatalf("duplicate id: error = %v, want ErrDuplicate", err)
	}
	second, err := svc.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if first.Number != "FAC-2026-0001" || second.Number != "FAC-2026-0002" {
		t.Errorf("numbers = %s, %s, want FAC-2026-0001, FAC-2026-0002", first.Number, second.Number)
	}
}
