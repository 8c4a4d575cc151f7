package http

import (
	"net/http"

	"github.com/artpar/facturo/adapters/metrics"
	"github.com/artpar/facturo/app"
	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/pkg/jsonapi"
	"github.com/artpar/facturo/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Listing page sizes.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// InvoiceHandler serves the invoice and note endpoints.
type InvoiceHandler struct {
	invoices *app.InvoiceService
	clock    ports.Clock
	logger   zerolog.Logger
	metrics  *metrics.Collector
}

// NewInvoiceHandler creates a new invoice handler. metrics may be nil.
func NewInvoiceHandler(invoices *app.InvoiceService, clock ports.Clock, logger zerolog.Logger, m *metrics.Collector) *InvoiceHandler {
	return &InvoiceHandler{
		invoices: invoices,
		clock:    clock,
		logger:   logger,
		metrics:  m,
	}
}

// Router returns the invoice routes, to be mounted at /api/invoices.
func (h *InvoiceHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Get("/{id}/notes", h.ListNotes)
	r.Post("/{id}/notes", h.AddNote)
	return r
}

// List returns invoices, newest first.
// Query: status, page[limit]/limit, page[offset]/offset.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var filter ports.InvoiceFilter
	if v := query.Get("status"); v != "" {
		status, err := invoice.ParseStatus(v)
		if err != nil {
			jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "bad_request", "Bad Request").
				Detail(err.Error()).
				Parameter("status").
				Build())
			return
		}
		filter.Status = status
	}

	limit, offset, err := jsonapi.ParsePage(query, defaultPageSize, maxPageSize)
	if err != nil {
		jsonapi.WriteBadRequest(w, err.Error())
		return
	}
	filter.Limit, filter.Offset = limit, offset

	invoices, err := h.invoices.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, "invoice", err)
		return
	}

	now := h.clock.Now()
	resources := make([]jsonapi.Resource, len(invoices))
	for i, inv := range invoices {
		resources[i] = invoiceResource(inv, now).Build()
	}

	jsonapi.WriteCollection(w, http.StatusOK, resources, &jsonapi.Page{
		Limit:   limit,
		Offset:  offset,
		Count:   len(resources),
		BaseURL: r.URL.RequestURI(),
	})
}

// Create issues a new invoice.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var attrs invoiceAttributes
	if !decodeRequest(w, r, TypeInvoice, &attrs) {
		return
	}
	in, errs := attrs.input()
	if len(errs) > 0 {
		jsonapi.WriteError(w, errs...)
		return
	}

	inv, err := h.invoices.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, "invoice", err)
		return
	}
	if h.metrics != nil {
		h.metrics.InvoicesCreated.Inc()
	}

	jsonapi.WriteCreated(w, invoiceResource(inv, h.clock.Now()).Build(), "/api/invoices/"+inv.ID)
}

// Get returns one invoice. ?include=notes embeds its notes.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inv, err := h.invoices.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "invoice", err)
		return
	}

	res := invoiceResource(inv, h.clock.Now())
	doc := jsonapi.NewDocument()

	if r.URL.Query().Get("include") == "notes" {
		notes, err := h.invoices.ListNotes(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, h.logger, "invoice", err)
			return
		}
		ids := make([]string, len(notes))
		for i, n := range notes {
			ids[i] = n.ID
			doc.Include(noteResource(n))
		}
		res.HasMany("notes", TypeNote, ids, "/api/invoices/"+id+"/notes")
	}

	jsonapi.WriteDocument(w, http.StatusOK, doc.DataResource(res.Build()).Build())
}

// UpdateStatus changes the status of an invoice.
func (h *InvoiceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var attrs statusAttributes
	if !decodeRequest(w, r, TypeInvoice, &attrs) {
		return
	}
	status, err := invoice.ParseStatus(attrs.Status)
	if err != nil {
		jsonapi.WriteValidationError(w, "status", err.Error())
		return
	}

	inv, err := h.invoices.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeServiceError(w, r, h.logger, "invoice", err)
		return
	}
	if h.metrics != nil {
		h.metrics.StatusChanges.WithLabelValues(string(status)).Inc()
	}

	jsonapi.WriteResource(w, http.StatusOK, invoiceResource(inv, h.clock.Now()).Build())
}

// ListNotes returns the notes of an invoice, oldest first.
func (h *InvoiceHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.invoices.ListNotes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "invoice", err)
		return
	}

	resources := make([]jsonapi.Resource, len(notes))
	for i, n := range notes {
		resources[i] = noteResource(n)
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources, nil)
}

// AddNote attaches a note to an invoice.
func (h *InvoiceHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var attrs noteAttributes
	if !decodeRequest(w, r, TypeNote, &attrs) {
		return
	}

	id := chi.URLParam(r, "id")
	n, err := h.invoices.AddNote(r.Context(), id, attrs.Body)
	if err != nil {
		writeServiceError(w, r, h.logger, "invoice", err)
		return
	}

	jsonapi.WriteCreated(w, noteResource(n), "/api/invoices/"+id+"/notes")
}
