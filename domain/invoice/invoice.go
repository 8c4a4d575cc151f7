// Package invoice provides invoice value types and pure functions.
// Amounts are integer centimes; VAT rates are basis points (2000 = 20 %).
package invoice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Status represents the state of an invoice.
type Status string

const (
	StatusDraft     Status = "brouillon"
	StatusSent      Status = "envoyee"
	StatusPaid      Status = "payee"
	StatusCancelled Status = "annulee"
)

// Statuses lists every known status.
var Statuses = []Status{StatusDraft, StatusSent, StatusPaid, StatusCancelled}

// ParseStatus parses a status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown invoice status %q", s)
}

// CanTransition reports whether an invoice may move from s to next.
// Paid and cancelled invoices are final.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusSent || next == StatusCancelled
	case StatusSent:
		return next == StatusPaid || next == StatusCancelled
	default:
		return false
	}
}

// Standard French VAT rates in basis points.
const (
	VATZero         int64 = 0
	VATSuperReduced int64 = 210
	VATReduced      int64 = 550
	VATIntermediate int64 = 1000
	VATStandard     int64 = 2000
)

// DefaultCurrency is the only currency the application issues invoices in.
const DefaultCurrency = "EUR"

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid invoice status transition")

// Client identifies who is billed.
type Client struct {
	Name    string
	Email   string
	Address string
	SIRET   string
}

// Validate checks the client fields.
func (c Client) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&c.Email, is.EmailFormat),
		validation.Field(&c.Address, validation.Length(0, 500)),
		validation.Field(&c.SIRET, is.Digit, validation.Length(14, 14)),
	)
}

// LineItem is a line on an invoice.
type LineItem struct {
	Description string
	Quantity    int64
	UnitPrice   int64 // centimes, excluding VAT
	VATRate     int64 // basis points
}

// Amount returns the line total excluding VAT.
func (l LineItem) Amount() int64 {
	return l.Quantity * l.UnitPrice
}

// VAT returns the VAT for the line, rounded half up to the centime.
func (l LineItem) VAT() int64 {
	return roundDiv(l.Amount()*l.VATRate, 10000)
}

// Validate checks the line fields.
func (l LineItem) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Description, validation.Required, validation.Length(1, 500)),
		validation.Field(&l.Quantity, validation.Required, validation.Min(int64(1))),
		validation.Field(&l.UnitPrice, validation.Min(int64(0))),
		validation.Field(&l.VATRate, validation.In(VATZero, VATSuperReduced, VATReduced, VATIntermediate, VATStandard)),
	)
}

// Totals holds computed invoice totals.
type Totals struct {
	Subtotal int64
	VAT      int64
	Total    int64
}

// ComputeTotals sums line amounts and VAT.
// This is a PURE function.
func ComputeTotals(items []LineItem) Totals {
	var t Totals
	for _, item := range items {
		t.Subtotal += item.Amount()
		t.VAT += item.VAT()
	}
	t.Total = t.Subtotal + t.VAT
	return t
}

// Invoice represents an invoice (value type).
type Invoice struct {
	ID        string
	Number    string
	Client    Client
	IssueDate time.Time
	DueDate   time.Time
	Items     []LineItem
	Totals    Totals
	Currency  string
	Status    Status
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the invoice and its lines.
func (inv Invoice) Validate() error {
	return validation.ValidateStruct(&inv,
		validation.Field(&inv.Client),
		validation.Field(&inv.IssueDate, validation.Required),
		validation.Field(&inv.DueDate, validation.By(notBefore(inv.IssueDate))),
		validation.Field(&inv.Items, validation.Required),
		validation.Field(&inv.Currency, validation.Required, validation.In(DefaultCurrency)),
		validation.Field(&inv.Status, validation.In(StatusDraft, StatusSent, StatusPaid, StatusCancelled)),
	)
}

func notBefore(start time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		due, _ := value.(time.Time)
		if due.IsZero() || start.IsZero() {
			return nil
		}
		if due.Before(start) {
			return errors.New("must not be before the issue date")
		}
		return nil
	}
}

// Transition returns a copy of inv moved to next.
// Moving to paid stamps PaidAt.
func Transition(inv Invoice, next Status, now time.Time) (Invoice, error) {
	if !inv.Status.CanTransition(next) {
		return inv, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, next)
	}
	inv.Status = next
	inv.UpdatedAt = now
	if next == StatusPaid {
		paid := now
		inv.PaidAt = &paid
	}
	return inv, nil
}

// IsOverdue reports whether a sent invoice is past its due date.
// The due date itself is still on time.
func (inv Invoice) IsOverdue(now time.Time) bool {
	if inv.Status != StatusSent || inv.DueDate.IsZero() {
		return false
	}
	return !now.Before(inv.DueDate.AddDate(0, 0, 1))
}

// Note is a free-text note attached to an invoice.
type Note struct {
	ID        string
	InvoiceID string
	Body      string
	CreatedAt time.Time
}

// Validate checks the note fields.
func (n Note) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.InvoiceID, validation.Required),
		validation.Field(&n.Body, validation.Required, validation.Length(1, 5000)),
	)
}

// FormatNumber builds an invoice number such as FAC-2026-0007.
func FormatNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

// FormatAmount formats centimes the French way: "1 234,56 €".
// This is a PURE function.
func FormatAmount(centimes int64) string {
	sign := ""
	if centimes < 0 {
		sign = "-"
		centimes = -centimes
	}
	euros := groupThousands(strconv.FormatInt(centimes/100, 10))
	cents := centimes % 100
	if cents < 10 {
		return sign + euros + ",0" + strconv.FormatInt(cents, 10) + " €"
	}
	return sign + euros + "," + strconv.FormatInt(cents, 10) + " €"
}

// FormatRate formats basis points as a percentage: 550 -> "5,5 %".
func FormatRate(bp int64) string {
	whole := bp / 100
	frac := strings.TrimRight(fmt.Sprintf("%02d", bp%100), "0")
	if frac == "" {
		return strconv.FormatInt(whole, 10) + " %"
	}
	return strconv.FormatInt(whole, 10) + "," + frac + " %"
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func roundDiv(n, d int64) int64 {
	if n < 0 {
		return -((-n + d/2) / d)
	}
	return (n + d/2) / d
}
