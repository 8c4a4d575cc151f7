package sqlite

import (
	"context"

	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/ports"
)

// NoteStore implements ports.NoteStore using SQLite.
type NoteStore struct {
	db *DB
}

// NewNoteStore creates a new SQLite note store.
func NewNoteStore(db *DB) *NoteStore {
	return &NoteStore{db: db}
}

// Create stores a new note. The invoice must exist.
func (s *NoteStore) Create(ctx context.Context, n invoice.Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, invoice_id, body, created_at)
		VALUES (?, ?, ?, ?)
	`, n.ID, n.InvoiceID, n.Body, n.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicate
		}
		if isForeignKeyError(err) {
			return ErrNotFound
		}
	}
	return err
}

// ListByInvoice returns notes of an invoice, oldest first.
func (s *NoteStore) ListByInvoice(ctx context.Context, invoiceID string) ([]invoice.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, body, created_at
		FROM notes
		WHERE invoice_id = ?
		ORDER BY created_at ASC, id ASC
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []invoice.Note
	for rows.Next() {
		var n invoice.Note
		if err := rows.Scan(&n.ID, &n.InvoiceID, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// Ensure interface compliance.
var _ ports.NoteStore = (*NoteStore)(nil)
