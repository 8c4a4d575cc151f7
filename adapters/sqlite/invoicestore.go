package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/ports"
)

// InvoiceStore implements ports.InvoiceStore using SQLite.
type InvoiceStore struct {
	db *DB
}

// NewInvoiceStore creates a new SQLite invoice store.
func NewInvoiceStore(db *DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

// lineItemRecord is the JSON shape of a line in the items column.
type lineItemRecord struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	VATRate     int64  `json:"vat_rate"`
}

func encodeItems(items []invoice.LineItem) (string, error) {
	records := make([]lineItemRecord, len(items))
	for i, item := range items {
		records[i] = lineItemRecord(item)
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	return string(b), nil
}

func decodeItems(s string) ([]invoice.LineItem, error) {
	if s == "" {
		return nil, nil
	}
	var records []lineItemRecord
	if err := json.Unmarshal([]byte(s), &records); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	items := make([]invoice.LineItem, len(records))
	for i, r := range records {
		items[i] = invoice.LineItem(r)
	}
	return items, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create stores a new invoice.
func (s *InvoiceStore) Create(ctx context.Context, inv invoice.Invoice) error {
	return insertInvoice(ctx, s.db, inv)
}

// CreateNumbered bumps the sequence of the issue year and inserts inv in one
// transaction, so a failed insert rolls the number back.
func (s *InvoiceStore) CreateNumbered(ctx context.Context, inv invoice.Invoice, number func(seq int) string) (invoice.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	year := inv.IssueDate.Year()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO invoice_sequences (year, last) VALUES (?, 1)
		ON CONFLICT(year) DO UPDATE SET last = last + 1
	`, year); err != nil {
		return invoice.Invoice{}, fmt.Errorf("bump sequence: %w", err)
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT last FROM invoice_sequences WHERE year = ?`, year).Scan(&seq); err != nil {
		return invoice.Invoice{}, fmt.Errorf("read sequence: %w", err)
	}

	inv.Number = number(seq)
	if err := insertInvoice(ctx, tx, inv); err != nil {
		return invoice.Invoice{}, err
	}
	if err := tx.Commit(); err != nil {
		return invoice.Invoice{}, fmt.Errorf("commit invoice: %w", err)
	}
	return inv, nil
}

func insertInvoice(ctx context.Context, db execer, inv invoice.Invoice) error {
	now := time.Now().UTC()
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = inv.CreatedAt
	}

	items, err := encodeItems(inv.Items)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO invoices (
			id, number,
			client_name, client_email, client_address, client_siret,
			issue_date, due_date, items,
			subtotal, vat, total, currency,
			status, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID, inv.Number,
		inv.Client.Name, inv.Client.Email, inv.Client.Address, inv.Client.SIRET,
		inv.IssueDate, nullTime(&inv.DueDate), items,
		inv.Totals.Subtotal, inv.Totals.VAT, inv.Totals.Total, inv.Currency,
		string(inv.Status), nullTime(inv.PaidAt), inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

const invoiceColumns = `
	id, number,
	client_name, client_email, client_address, client_siret,
	issue_date, due_date, items,
	subtotal, vat, total, currency,
	status, paid_at, created_at, updated_at`

// Get retrieves an invoice by ID.
func (s *InvoiceStore) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	return scanInvoice(row)
}

// List returns invoices, newest first.
func (s *InvoiceStore) List(ctx context.Context, filter ports.InvoiceFilter) ([]invoice.Invoice, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, number DESC LIMIT ? OFFSET ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// UpdateStatus moves an invoice from one status to another.
// The write only applies while the stored status is still from.
func (s *InvoiceStore) UpdateStatus(ctx context.Context, id string, from, to invoice.Status, paidAt *time.Time, updatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET status = ?, paid_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), nullTime(paidAt), updatedAt, id, string(from))
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missingOrConflict(ctx, id)
	}
	return nil
}

func (s *InvoiceStore) missingOrConflict(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM invoices WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (invoice.Invoice, error) {
	var (
		inv     invoice.Invoice
		status  string
		items   string
		dueDate sql.NullTime
		paidAt  sql.NullTime
	)

	err := row.Scan(
		&inv.ID, &inv.Number,
		&inv.Client.Name, &inv.Client.Email, &inv.Client.Address, &inv.Client.SIRET,
		&inv.IssueDate, &dueDate, &items,
		&inv.Totals.Subtotal, &inv.Totals.VAT, &inv.Totals.Total, &inv.Currency,
		&status, &paidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return invoice.Invoice{}, ErrNotFound
	}
	if err != nil {
		return invoice.Invoice{}, err
	}

	inv.Status = invoice.Status(status)
	if dueDate.Valid {
		inv.DueDate = dueDate.Time
	}
	if paidAt.Valid {
		t := paidAt.Time
		inv.PaidAt = &t
	}
	if inv.Items, err = decodeItems(items); err != nil {
		return invoice.Invoice{}, err
	}
	return inv, nil
}

// Ensure interface compliance.
var _ ports.InvoiceStore = (*InvoiceStore)(nil)
