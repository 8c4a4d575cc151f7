package http

import (
	"context"
	"net/http"

	"github.com/artpar/facturo/adapters/metrics"
	"github.com/artpar/facturo/app"
	"github.com/artpar/facturo/domain/wizard"
	"github.com/artpar/facturo/pkg/jsonapi"
	"github.com/artpar/facturo/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// DraftHandler serves the invoice creation wizard.
type DraftHandler struct {
	drafts  *app.DraftService
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewDraftHandler creates a new draft handler. metrics may be nil.
func NewDraftHandler(drafts *app.DraftService, clock ports.Clock, logger zerolog.Logger, m *metrics.Collector) *DraftHandler {
	return &DraftHandler{
		drafts:  drafts,
		clock:   clock,
		logger:  logger,
		metrics: m,
	}
}

// Router returns the draft routes, to be mounted at /api/drafts.
func (h *DraftHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Start)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Post("/{id}/advance", h.Advance)
	r.Post("/{id}/back", h.Back)
	r.Post("/{id}/submit", h.Submit)
	return r
}

// Start opens a new draft at the details stage.
func (h *DraftHandler) Start(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Start(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "draft", err)
		return
	}
	jsonapi.WriteCreated(w, draftResource(d), "/api/drafts/"+d.ID)
}

// Get returns a draft.
func (h *DraftHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.drafts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "draft", err)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, draftResource(d))
}

// Update replaces the invoice content of a draft.
func (h *DraftHandler) Update(w http.ResponseWriter, r *http.Request) {
	var attrs invoiceAttributes
	if !decodeRequest(w, r, TypeDraft, &attrs) {
		return
	}
	in, errs := attrs.input()
	if len(errs) > 0 {
		jsonapi.WriteError(w, errs...)
		return
	}

	d, err := h.drafts.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, h.logger, "draft", err)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, draftResource(d))
}

// Advance moves a draft to its next stage.
func (h *DraftHandler) Advance(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.drafts.Advance)
}

// Back moves a draft to its previous stage.
func (h *DraftHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.drafts.Back)
}

// Submit issues the invoice of a reviewed draft. The response carries the
// submitted draft with the new invoice included.
func (h *DraftHandler) Submit(w http.ResponseWriter, r *http.Request) {
	d, inv, err := h.drafts.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "draft", err)
		return
	}
	if h.metrics != nil {
		h.metrics.InvoicesCreated.Inc()
	}

	doc := jsonapi.NewDocument().
		DataResource(draftResource(d)).
		Include(invoiceResource(inv, h.clock.Now()).Build()).
		Build()
	w.Header().Set("Location", "/api/invoices/"+inv.ID)
	jsonapi.WriteDocument(w, http.StatusCreated, doc)
}

func (h *DraftHandler) move(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (wizard.Draft, error)) {
	d, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "draft", err)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, draftResource(d))
}
