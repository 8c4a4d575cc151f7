package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/artpar/facturo/app"
	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/domain/wizard"
	"github.com/artpar/facturo/pkg/jsonapi"
)

// Resource types.
const (
	TypeInvoice = "invoices"
	TypeNote    = "notes"
	TypeDraft   = "drafts"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Request attributes, in wire casing.

type clientAttributes struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	SIRET   string `json:"siret"`
}

type lineAttributes struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	VATRate     *int64 `json:"vat_rate"`
}

type invoiceAttributes struct {
	Client    clientAttributes `json:"client"`
	IssueDate string           `json:"issue_date"`
	DueDate   string           `json:"due_date"`
	Items     []lineAttributes `json:"items"`
	Currency  string           `json:"currency"`
}

type statusAttributes struct {
	Status string `json:"status"`
}

type noteAttributes struct {
	Body string `json:"body"`
}

// input converts request attributes to a service input.
func (a invoiceAttributes) input() (app.InvoiceInput, []jsonapi.Error) {
	in := app.InvoiceInput{
		Client:   invoice.Client(a.Client),
		Currency: a.Currency,
	}

	var errs []jsonapi.Error
	var err error
	if in.IssueDate, err = parseDate(a.IssueDate); err != nil {
		errs = append(errs, jsonapi.ErrValidation("issue_date", "must be a date formatted YYYY-MM-DD"))
	}
	if in.DueDate, err = parseDate(a.DueDate); err != nil {
		errs = append(errs, jsonapi.ErrValidation("due_date", "must be a date formatted YYYY-MM-DD"))
	}

	if len(a.Items) > 0 {
		in.Items = make([]app.LineInput, len(a.Items))
		for i, l := range a.Items {
			in.Items[i] = app.LineInput(l)
		}
	}
	return in, errs
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// decodeRequest checks the media type and decodes a request document.
// It writes the error response and returns false on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, resourceType string, attrs any) bool {
	if ct := r.Header.Get("Content-Type"); !IsJSONContentType(ct) {
		jsonapi.WriteError(w, jsonapi.ErrUnsupportedMediaType(ct))
		return false
	}
	if _, err := jsonapi.DecodeResource(r.Body, resourceType, attrs); err != nil {
		if errors.Is(err, jsonapi.ErrTooLarge) {
			jsonapi.WriteError(w, jsonapi.ErrRequestTooLarge())
			return false
		}
		jsonapi.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// Response attributes.

func clientAttrs(c invoice.Client) map[string]any {
	attrs := map[string]any{"name": c.Name}
	if c.Email != "" {
		attrs["email"] = c.Email
	}
	if c.Address != "" {
		attrs["address"] = c.Address
	}
	if c.SIRET != "" {
		attrs["siret"] = c.SIRET
	}
	return attrs
}

func itemsAttrs(items []invoice.LineItem) []map[string]any {
	out := make([]map[string]any, len(items))
	for i, item := range items {
		out[i] = map[string]any{
			"description":    item.Description,
			"quantity":       item.Quantity,
			"unit_price":     item.UnitPrice,
			"vat_rate":       item.VATRate,
			"vat_rate_label": invoice.FormatRate(item.VATRate),
			"amount":         item.Amount(),
			"vat":            item.VAT(),
		}
	}
	return out
}

func invoiceResource(inv invoice.Invoice, now time.Time) *jsonapi.ResourceBuilder {
	return jsonapi.NewResource(TypeInvoice, inv.ID).
		Attr("number", inv.Number).
		Attr("status", string(inv.Status)).
		Attr("client", clientAttrs(inv.Client)).
		Attr("issue_date", formatDate(inv.IssueDate)).
		AttrIf(!inv.DueDate.IsZero(), "due_date", formatDate(inv.DueDate)).
		Attr("items", itemsAttrs(inv.Items)).
		Attr("subtotal", inv.Totals.Subtotal).
		Attr("vat", inv.Totals.VAT).
		Attr("total", inv.Totals.Total).
		Attr("total_formatted", invoice.FormatAmount(inv.Totals.Total)).
		Attr("currency", inv.Currency).
		Attr("overdue", inv.IsOverdue(now)).
		AttrIf(inv.PaidAt != nil, "paid_at", inv.PaidAt).
		Attr("created_at", inv.CreatedAt).
		Attr("updated_at", inv.UpdatedAt).
		Link("/api/invoices/" + inv.ID)
}

func noteResource(n invoice.Note) jsonapi.Resource {
	return jsonapi.NewResource(TypeNote, n.ID).
		Attr("body", n.Body).
		Attr("created_at", n.CreatedAt).
		BelongsTo("invoice", TypeInvoice, n.InvoiceID).
		Build()
}

func draftResource(d wizard.Draft) jsonapi.Resource {
	totals := invoice.ComputeTotals(d.Invoice.Items)
	return jsonapi.NewResource(TypeDraft, d.ID).
		Attr("stage", string(d.Stage)).
		Attr("client", clientAttrs(d.Invoice.Client)).
		AttrIf(!d.Invoice.IssueDate.IsZero(), "issue_date", formatDate(d.Invoice.IssueDate)).
		AttrIf(!d.Invoice.DueDate.IsZero(), "due_date", formatDate(d.Invoice.DueDate)).
		Attr("items", itemsAttrs(d.Invoice.Items)).
		Attr("subtotal", totals.Subtotal).
		Attr("vat", totals.VAT).
		Attr("total", totals.Total).
		Attr("currency", d.Invoice.Currency).
		Attr("created_at", d.CreatedAt).
		Attr("updated_at", d.UpdatedAt).
		BelongsTo("invoice", TypeInvoice, d.InvoiceID).
		Link("/api/drafts/" + d.ID).
		Build()
}
