package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/domain/wizard"
	"github.com/artpar/facturo/ports"
)

// DraftStore implements ports.DraftStore using SQLite.
// The invoice being composed is kept as a JSON document.
type DraftStore struct {
	db *DB
}

// NewDraftStore creates a new SQLite draft store.
func NewDraftStore(db *DB) *DraftStore {
	return &DraftStore{db: db}
}

type draftClientRecord struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	SIRET   string `json:"siret,omitempty"`
}

type draftInvoiceRecord struct {
	Client    draftClientRecord `json:"client"`
	IssueDate *time.Time        `json:"issue_date,omitempty"`
	DueDate   *time.Time        `json:"due_date,omitempty"`
	Items     []lineItemRecord  `json:"items"`
	Currency  string            `json:"currency"`
}

func encodeDraftInvoice(inv invoice.Invoice) (string, error) {
	rec := draftInvoiceRecord{
		Client:   draftClientRecord(inv.Client),
		Items:    make([]lineItemRecord, len(inv.Items)),
		Currency: inv.Currency,
	}
	if !inv.IssueDate.IsZero() {
		rec.IssueDate = &inv.IssueDate
	}
	if !inv.DueDate.IsZero() {
		rec.DueDate = &inv.DueDate
	}
	for i, item := range inv.Items {
		rec.Items[i] = lineItemRecord(item)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode draft invoice: %w", err)
	}
	return string(b), nil
}

func decodeDraftInvoice(s string) (invoice.Invoice, error) {
	var rec draftInvoiceRecord
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return invoice.Invoice{}, fmt.Errorf("decode draft invoice: %w", err)
	}
	inv := invoice.Invoice{
		Client:   invoice.Client(rec.Client),
		Currency: rec.Currency,
		Status:   invoice.StatusDraft,
	}
	if rec.IssueDate != nil {
		inv.IssueDate = *rec.IssueDate
	}
	if rec.DueDate != nil {
		inv.DueDate = *rec.DueDate
	}
	if len(rec.Items) > 0 {
		inv.Items = make([]invoice.LineItem, len(rec.Items))
		for i, r := range rec.Items {
			inv.Items[i] = invoice.LineItem(r)
		}
	}
	return inv, nil
}

// Create stores a new draft.
func (s *DraftStore) Create(ctx context.Context, d wizard.Draft) error {
	doc, err := encodeDraftInvoice(d.Invoice)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, stage, invoice, invoice_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID, string(d.Stage), doc, nullString(d.InvoiceID), d.CreatedAt, d.UpdatedAt)
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

// Get retrieves a draft by ID.
func (s *DraftStore) Get(ctx context.Context, id string) (wizard.Draft, error) {
	var (
		d         wizard.Draft
		stage     string
		doc       string
		invoiceID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, stage, invoice, invoice_id, created_at, updated_at
		FROM drafts WHERE id = ?
	`, id).Scan(&d.ID, &stage, &doc, &invoiceID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return wizard.Draft{}, ErrNotFound
	}
	if err != nil {
		return wizard.Draft{}, err
	}

	d.Stage = wizard.Stage(stage)
	d.InvoiceID = invoiceID.String
	if d.Invoice, err = decodeDraftInvoice(doc); err != nil {
		return wizard.Draft{}, err
	}
	return d, nil
}

// Update replaces a draft still at stage from.
func (s *DraftStore) Update(ctx context.Context, d wizard.Draft, from wizard.Stage) error {
	doc, err := encodeDraftInvoice(d.Invoice)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE drafts
		SET stage = ?, invoice = ?, invoice_id = ?, updated_at = ?
		WHERE id = ? AND stage = ?
	`, string(d.Stage), doc, nullString(d.InvoiceID), d.UpdatedAt, d.ID, string(from))
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM drafts WHERE id = ?`, d.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// Ensure interface compliance.
var _ ports.DraftStore = (*DraftStore)(nil)
