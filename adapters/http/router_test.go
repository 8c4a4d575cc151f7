package http_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/artpar/facturo/adapters/clock"
	apihttp "github.com/artpar/facturo/adapters/http"
	"github.com/artpar/facturo/adapters/idgen"
	"github.com/artpar/facturo/adapters/memory"
	"github.com/artpar/facturo/adapters/metrics"
	"github.com/artpar/facturo/app"
	"github.com/artpar/facturo/pkg/jsonapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

var baseTime = time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

const invoiceDocument = `{"data":{"type":"invoices","attributes":{
	"client":{"name":"Librairie Rive Gauche","email":"contact@rivegauche.fr"},
	"items":[
		{"description":"Conseil","quantity":2,"unit_price":45000},
		{"description":"Livres","quantity":4,"unit_price":2500,"vat_rate":550}
	]}}}`

type testStack struct {
	router  http.Handler
	clock   *clock.Fake
	metrics *metrics.Collector
}

type failingChecker struct{}

func (failingChecker) HealthCheck(context.Context) error { return errors.New("database is locked") }

func newTestStack(t *testing.T, checker apihttp.HealthChecker) *testStack {
	t.Helper()
	logger := zerolog.Nop()
	clk := clock.NewFake(baseTime)
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	invoices := app.NewInvoiceService(app.InvoiceDeps{
		Invoices:   memory.NewInvoiceStore(),
		Notes:      memory.NewNoteStore(),
		Clock:      clk,
		InvoiceIDs: idgen.NewSequential("inv_"),
		NoteIDs:    idgen.NewSequential("note_"),
		Logger:     logger,
	}, app.DefaultInvoiceConfig())
	drafts := app.NewDraftService(app.DraftDeps{
		Drafts:   memory.NewDraftStore(),
		Invoices: invoices,
		Clock:    clk,
		IDs:      idgen.NewSequential("draft_"),
		Logger:   logger,
	})

	casing, err := apihttp.NewCasingMiddleware(apihttp.CasingConfig{Wire: "snake"}, logger, m)
	if err != nil {
		t.Fatalf("NewCasingMiddleware error: %v", err)
	}

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Invoices:       apihttp.NewInvoiceHandler(invoices, clk, logger, m),
		Drafts:         apihttp.NewDraftHandler(drafts, clk, logger, m),
		Health:         apihttp.NewHealthHandler(checker),
		Casing:         casing,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, logger)

	return &testStack{router: router, clock: clk, metrics: m}
}

func (s *testStack) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, gjson.Result) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", jsonapi.ContentType)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec, gjson.ParseBytes(rec.Body.Bytes())
}

func (s *testStack) createInvoice(t *testing.T) gjson.Result {
	t.Helper()
	rec, doc := s.do(t, http.MethodPost, "/api/invoices", invoiceDocument)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	return doc
}

func setStatus(status string) string {
	return `{"data":{"type":"invoices","attributes":{"status":"` + status + `"}}}`
}

func TestRouter_CreateInvoice(t *testing.T) {
	s := newTestStack(t, nil)

	rec, doc := s.do(t, http.MethodPost, "/api/invoices", invoiceDocument)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/api/invoices/inv_1" {
		t.Errorf("Location = %s", loc)
	}
	if ct := rec.Header().Get("Content-Type"); ct != jsonapi.ContentType {
		t.Errorf("Content-Type = %s", ct)
	}

	checks := map[string]string{
		"data.type":                       "invoices",
		"data.id":                         "inv_1",
		"data.attributes.number":          "FAC-2026-0001",
		"data.attributes.status":          "brouillon",
		"data.attributes.issue_date":      "2026-10-14",
		"data.attributes.due_date":        "2026-11-13",
		"data.attributes.subtotal":        "100000",
		"data.attributes.vat":             "18550",
		"data.attributes.total":           "118550",
		"data.attributes.total_formatted": "1 185,50 €",
		"data.attributes.currency":        "EUR",
		"data.attributes.overdue":         "false",
		"data.attributes.client.name":     "Librairie Rive Gauche",
		"data.attributes.items.0.vat_rate":       "2000",
		"data.attributes.items.0.vat_rate_label": "20 %",
		"data.attributes.items.1.vat_rate_label": "5,5 %",
		"data.attributes.items.1.amount":         "10000",
		"data.attributes.items.1.vat":            "550",
		"data.links.self":                        "/api/invoices/inv_1",
	}
	for path, want := range checks {
		if got := doc.Get(path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	if doc.Get("data.attributes.paid_at").Exists() {
		t.Error("paid_at should be omitted before payment")
	}

	if got := testutil.ToFloat64(s.metrics.InvoicesCreated); got != 1 {
		t.Errorf("invoices created = %v, want 1", got)
	}
}

func TestRouter_NumbersAreSequential(t *testing.T) {
	s := newTestStack(t, nil)

	s.createInvoice(t)
	doc := s.createInvoice(t)

	if got := doc.Get("data.attributes.number").String(); got != "FAC-2026-0002" {
		t.Errorf("second number = %s, want FAC-2026-0002", got)
	}
}

func TestRouter_CreateInvoice_Validation(t *testing.T) {
	s := newTestStack(t, nil)

	body := `{"data":{"type":"invoices","attributes":{
		"client":{"name":"","siret":"123"},
		"items":[{"description":"Conseil","quantity":0,"unit_price":100,"vat_rate":1234}]}}}`
	rec, doc := s.do(t, http.MethodPost, "/api/invoices", body)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var pointers []string
	for _, e := range doc.Get("errors.#.source.pointer").Array() {
		pointers = append(pointers, e.String())
	}
	want := []string{
		"/data/attributes/client/name",
		"/data/attributes/client/siret",
		"/data/attributes/items/0/quantity",
		"/data/attributes/items/0/vat_rate",
	}
	if strings.Join(pointers, ",") != strings.Join(want, ",") {
		t.Errorf("pointers = %v, want %v", pointers, want)
	}

	// A rejected invoice does not consume a number.
	doc = s.createInvoice(t)
	if got := doc.Get("data.attributes.number").String(); got != "FAC-2026-0001" {
		t.Errorf("number after rejection = %s, want FAC-2026-0001", got)
	}
}

func TestRouter_CreateInvoice_BadDates(t *testing.T) {
	s := newTestStack(t, nil)

	body := `{"data":{"type":"invoices","attributes":{"client":{"name":"A"},"issue_date":"14/10/2026",
		"items":[{"description":"x","quantity":1,"unit_price":1}]}}}`
	rec, doc := s.do(t, http.MethodPost, "/api/invoices", body)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := doc.Get("errors.0.source.pointer").String(); got != "/data/attributes/issue_date" {
		t.Errorf("pointer = %s", got)
	}
}

func TestRouter_CreateInvoice_BadRequests(t *testing.T) {
	s := newTestStack(t, nil)

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"not json", "text/plain", "hello", http.StatusUnsupportedMediaType},
		{"malformed", jsonapi.ContentType, `{"data":`, http.StatusBadRequest},
		{"no data", jsonapi.ContentType, `{}`, http.StatusBadRequest},
		{"wrong type", jsonapi.ContentType, `{"data":{"type":"notes","attributes":{}}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if errs := jsonapi.DecodeErrors(rec.Body.Bytes()); len(errs) == 0 {
				t.Error("expected an error document")
			}
		})
	}
}

func TestRouter_GetInvoice(t *testing.T) {
	s := newTestStack(t, nil)
	s.createInvoice(t)

	rec, doc := s.do(t, http.MethodGet, "/api/invoices/inv_1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := doc.Get("data.attributes.number").String(); got != "FAC-2026-0001" {
		t.Errorf("number = %s", got)
	}
	if doc.Get("data.relationships.notes").Exists() {
		t.Error("notes relationship should only appear with include=notes")
	}

	rec, doc = s.do(t, http.MethodGet, "/api/invoices/inv_404", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing invoice status = %d, want 404", rec.Code)
	}
	if got := doc.Get("errors.0.code").String(); got != "not_found" {
		t.Errorf("code = %s, want not_found", got)
	}
}

func TestRouter_ListInvoices(t *testing.T) {
	s := newTestStack(t, nil)
	for i := 0; i < 3; i++ {
		s.createInvoice(t)
		s.clock.Advance(time.Minute)
	}
	if rec, _ := s.do(t, http.MethodPatch, "/api/invoices/inv_2/status", setStatus("envoyee")); rec.Code != http.StatusOK {
		t.Fatalf("status update = %d", rec.Code)
	}

	rec, doc := s.do(t, http.MethodGet, "/api/invoices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var ids []string
	for _, id := range doc.Get("data.#.id").Array() {
		ids = append(ids, id.String())
	}
	if strings.Join(ids, ",") != "inv_3,inv_2,inv_1" {
		t.Errorf("ids = %v, want newest first", ids)
	}

	_, doc = s.do(t, http.MethodGet, "/api/invoices?status=envoyee", "")
	if n := doc.Get("data.#").Int(); n != 1 || doc.Get("data.0.id").String() != "inv_2" {
		t.Errorf("filtered = %s", doc.Get("data").Raw)
	}

	_, doc = s.do(t, http.MethodGet, "/api/invoices?page[limit]=2", "")
	if n := doc.Get("data.#").Int(); n != 2 {
		t.Errorf("page size = %d, want 2", n)
	}
	if got := doc.Get("meta.limit").Int(); got != 2 {
		t.Errorf("meta.limit = %d", got)
	}
	next := doc.Get("links.next").String()
	if !strings.Contains(next, "page%5Boffset%5D=2") {
		t.Errorf("links.next = %q, want offset 2", next)
	}
	if doc.Get("links.prev").Exists() {
		t.Error("first page should have no prev link")
	}

	_, doc = s.do(t, http.MethodGet, "/api/invoices?page[limit]=2&page[offset]=2", "")
	if n := doc.Get("data.#").Int(); n != 1 || doc.Get("data.0.id").String() != "inv_1" {
		t.Errorf("second page = %s", doc.Get("data").Raw)
	}
	if doc.Get("links.next").Exists() {
		t.Error("last page should have no next link")
	}

	rec, doc = s.do(t, http.MethodGet, "/api/invoices?status=perdue", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status filter = %d, want 400", rec.Code)
	}
	if got := doc.Get("errors.0.source.parameter").String(); got != "status" {
		t.Errorf("parameter = %s, want status", got)
	}

	rec, _ = s.do(t, http.MethodGet, "/api/invoices?page[limit]=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit = %d, want 400", rec.Code)
	}
}

func TestRouter_UpdateStatus(t *testing.T) {
	s := newTestStack(t, nil)
	s.createInvoice(t)

	rec, doc := s.do(t, http.MethodPatch, "/api/invoices/inv_1/status", setStatus("envoyee"))
	if rec.Code != http.StatusOK {
		t.Fatalf("send status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := doc.Get("data.attributes.status").String(); got != "envoyee" {
		t.Errorf("status = %s", got)
	}

	// Past the due date a sent invoice is overdue.
	s.clock.Set(time.Date(2026, 11, 20, 9, 0, 0, 0, time.UTC))
	_, doc = s.do(t, http.MethodGet, "/api/invoices/inv_1", "")
	if !doc.Get("data.attributes.overdue").Bool() {
		t.Error("overdue = false, want true")
	}

	rec, doc = s.do(t, http.MethodPatch, "/api/invoices/inv_1/status", setStatus("payee"))
	if rec.Code != http.StatusOK {
		t.Fatalf("pay status = %d", rec.Code)
	}
	if !doc.Get("data.attributes.paid_at").Exists() {
		t.Error("paid_at missing after payment")
	}
	if doc.Get("data.attributes.overdue").Bool() {
		t.Error("paid invoice should not be overdue")
	}

	rec, doc = s.do(t, http.MethodPatch, "/api/invoices/inv_1/status", setStatus("annulee"))
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel paid = %d, want 409", rec.Code)
	}
	if got := doc.Get("errors.0.code").String(); got != "invalid_transition" {
		t.Errorf("code = %s, want invalid_transition", got)
	}

	rec, doc = s.do(t, http.MethodPatch, "/api/invoices/inv_1/status", setStatus("archived"))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown status = %d, want 422", rec.Code)
	}
	if got := doc.Get("errors.0.source.pointer").String(); got != "/data/attributes/status" {
		t.Errorf("pointer = %s", got)
	}

	rec, _ = s.do(t, http.MethodPatch, "/api/invoices/inv_9/status", setStatus("envoyee"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing invoice = %d, want 404", rec.Code)
	}

	if got := testutil.ToFloat64(s.metrics.StatusChanges.WithLabelValues("payee")); got != 1 {
		t.Errorf("payee changes = %v, want 1", got)
	}
}

func TestRouter_RequestTooLarge(t *testing.T) {
	s := newTestStack(t, nil)
	s.createInvoice(t)
	body := `{"data":{"type":"notes","attributes":{"body":"` + strings.Repeat("x", jsonapi.MaxRequestBytes) + `"}}}`

	for _, keyCase := range []string{"snake", "camel"} {
		t.Run(keyCase, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/invoices/inv_1/notes", strings.NewReader(body))
			req.Header.Set("Content-Type", jsonapi.ContentType)
			req.Header.Set("X-Key-Case", keyCase)
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			if rec.Code != http.StatusRequestEntityTooLarge {
				t.Fatalf("status = %d, want 413", rec.Code)
			}
			if got := gjson.GetBytes(rec.Body.Bytes(), "errors.0.code").String(); got != "request_too_large" {
				t.Errorf("code = %s", got)
			}
		})
	}

	_, doc := s.do(t, http.MethodGet, "/api/invoices/inv_1/notes", "")
	if n := len(doc.Get("data").Array()); n != 0 {
		t.Errorf("stored %d notes, want 0", n)
	}
}

func TestRouter_UpdateStatusConcurrent(t *testing.T) {
	s := newTestStack(t, nil)
	s.createInvoice(t)
	if rec, _ := s.do(t, http.MethodPatch, "/api/invoices/inv_1/status", setStatus("envoyee")); rec.Code != http.StatusOK {
		t.Fatalf("send status = %d", rec.Code)
	}

	targets := []string{"payee", "annulee"}
	codes := make([]int, len(targets))
	var wg sync.WaitGroup
	for i, status := range targets {
		wg.Add(1)
		go func(i int, status string) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPatch, "/api/invoices/inv_1/status", strings.NewReader(setStatus(status)))
			req.Header.Set("Content-Type", jsonapi.ContentType)
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i, status)
	}
	wg.Wait()

	won := ""
	for i, code := range codes {
		switch code {
		case http.StatusOK:
			won = targets[i]
		case http.StatusConflict:
		default:
			t.Fatalf("%s status = %d", targets[i], code)
		}
	}
	if won == "" || codes[0] == codes[1] {
		t.Fatalf("codes = %v, want one 200 and one 409", codes)
	}

	_, doc := s.do(t, http.MethodGet, "/api/invoices/inv_1", "")
	if got := doc.Get("data.attributes.status").String(); got != won {
		t.Errorf("status = %s, want %s", got, won)
	}
}

func TestRouter_Notes(t *testing.T) {
	s := newTestStack(t, nil)
	s.createInvoice(t)

	note := `{"data":{"type":"notes","attributes":{"body":"Relance envoyée"}}}`
	rec, doc := s.do(t, http.MethodPost, "/api/invoices/inv_1/notes", note)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add note = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := doc.Get("data.relationships.invoice.data.id").String(); got != "inv_1" {
		t.Errorf("note invoice = %s", got)
	}
	s.clock.Advance(time.Hour)
	s.do(t, http.MethodPost, "/api/invoices/inv_1/notes", `{"data":{"type":"notes","attributes":{"body":"Payé par virement"}}}`)

	_, doc = s.do(t, http.MethodGet, "/api/invoices/inv_1/notes", "")
	if got := doc.Get("data.#.attributes.body").String(); got != `["Relance envoyée","Payé par virement"]` {
		t.Errorf("bodies = %s", got)
	}

	_, doc = s.do(t, http.MethodGet, "/api/invoices/inv_1?include=notes", "")
	if got := doc.Get("data.relationships.notes.data.#.id").String(); got != `["note_1","note_2"]` {
		t.Errorf("notes linkage = %s", got)
	}
	if got := doc.Get("included.#.type").String(); got != `["notes","notes"]` {
		t.Errorf("included types = %s", got)
	}

	rec, doc = s.do(t, http.MethodPost, "/api/invoices/inv_1/notes", `{"data":{"type":"notes","attributes":{"body":"   "}}}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("blank note = %d, want 422", rec.Code)
	}
	if got := doc.Get("errors.0.source.pointer").String(); got != "/data/attributes/body" {
		t.Errorf("pointer = %s", got)
	}

	rec, _ = s.do(t, http.MethodPost, "/api/invoices/inv_7/notes", note)
	if rec.Code != http.StatusNotFound {
		t.Errorf("note on missing invoice = %d, want 404", rec.Code)
	}
	rec, _ = s.do(t, http.MethodGet, "/api/invoices/inv_7/notes", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("notes of missing invoice = %d, want 404", rec.Code)
	}
}

func TestRouter_DraftFlow(t *testing.T) {
	s := newTestStack(t, nil)

	rec, doc := s.do(t, http.MethodPost, "/api/drafts", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start = %d, body %s", rec.Code, rec.Body.String())
	}
	if doc.Get("data.id").String() != "draft_1" || doc.Get("data.attributes.stage").String() != "details" {
		t.Fatalf("draft = %s", doc.Get("data").Raw)
	}

	rec, doc = s.do(t, http.MethodPost, "/api/drafts/draft_1/advance", "")
	if rec.Code != http.StatusUnprocessableEntity || doc.Get("errors.0.code").String() != "stage_incomplete" {
		t.Errorf("advance without client = %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = s.do(t, http.MethodPost, "/api/drafts/draft_1/back", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("back from details = %d, want 409", rec.Code)
	}

	update := strings.Replace(invoiceDocument, `"type":"invoices"`, `"type":"drafts"`, 1)
	rec, doc = s.do(t, http.MethodPut, "/api/drafts/draft_1", update)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := doc.Get("data.attributes.total").Int(); got != 118550 {
		t.Errorf("draft total = %d, want 118550", got)
	}

	for _, want := range []string{"verification", "review"} {
		rec, doc = s.do(t, http.MethodPost, "/api/drafts/draft_1/advance", "")
		if rec.Code != http.StatusOK || doc.Get("data.attributes.stage").String() != want {
			t.Fatalf("advance = %d stage %s, want %s", rec.Code, doc.Get("data.attributes.stage").String(), want)
		}
	}

	rec, _ = s.do(t, http.MethodPost, "/api/drafts/draft_1/advance", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("advance past review = %d, want 409", rec.Code)
	}

	rec, doc = s.do(t, http.MethodPost, "/api/drafts/draft_1/submit", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit = %d, body %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/api/invoices/inv_1" {
		t.Errorf("Location = %s", loc)
	}
	if got := doc.Get("data.attributes.stage").String(); got != "submitted" {
		t.Errorf("stage = %s", got)
	}
	if got := doc.Get("data.relationships.invoice.data.id").String(); got != "inv_1" {
		t.Errorf("draft invoice = %s", got)
	}
	if got := doc.Get("included.0.attributes.number").String(); got != "FAC-2026-0001" {
		t.Errorf("included number = %s", got)
	}

	rec, _ = s.do(t, http.MethodGet, "/api/invoices/inv_1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("issued invoice = %d", rec.Code)
	}

	rec, _ = s.do(t, http.MethodPut, "/api/drafts/draft_1", update)
	if rec.Code != http.StatusConflict {
		t.Errorf("update after submit = %d, want 409", rec.Code)
	}
	rec, _ = s.do(t, http.MethodPost, "/api/drafts/draft_1/submit", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("second submit = %d, want 409", rec.Code)
	}
	rec, _ = s.do(t, http.MethodGet, "/api/drafts/draft_9", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing draft = %d, want 404", rec.Code)
	}
}

func TestRouter_CamelClient(t *testing.T) {
	s := newTestStack(t, nil)

	body := `{"data":{"type":"invoices","attributes":{"client":{"name":"Atelier Nord"},
		"dueDate":"2026-12-01","items":[{"description":"Reliure","quantity":1,"unitPrice":2000,"vatRate":1000}]}}}`
	req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader(body))
	req.Header.Set("Content-Type", jsonapi.ContentType)
	req.Header.Set("X-Key-Case", "camel")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	doc := gjson.ParseBytes(rec.Body.Bytes())
	if got := doc.Get("data.attributes.dueDate").String(); got != "2026-12-01" {
		t.Errorf("dueDate = %s", got)
	}
	if got := doc.Get("data.attributes.items.0.unitPrice").Int(); got != 2000 {
		t.Errorf("unitPrice = %d", got)
	}
	if got := doc.Get("data.attributes.totalFormatted").String(); got != "22,00 €" {
		t.Errorf("totalFormatted = %s", got)
	}
	if doc.Get("data.attributes.total_formatted").Exists() {
		t.Error("snake keys leaked into a camel response")
	}
}

func TestRouter_NotFound(t *testing.T) {
	s := newTestStack(t, nil)

	rec, doc := s.do(t, http.MethodGet, "/api/payments", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if got := doc.Get("errors.0.code").String(); got != "not_found" {
		t.Errorf("code = %s", got)
	}
}

func TestRouter_Health(t *testing.T) {
	s := newTestStack(t, nil)
	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec, doc := s.do(t, http.MethodGet, path, "")
		if rec.Code != http.StatusOK || doc.Get("status").String() != "ok" {
			t.Errorf("%s = %d %s", path, rec.Code, rec.Body.String())
		}
	}

	s = newTestStack(t, failingChecker{})
	rec, doc := s.do(t, http.MethodGet, "/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with failing check = %d, want 503", rec.Code)
	}
	if got := doc.Get("error").String(); got != "database is locked" {
		t.Errorf("error = %s", got)
	}
	if rec, _ := s.do(t, http.MethodGet, "/health/live", ""); rec.Code != http.StatusOK {
		t.Errorf("liveness with failing check = %d, want 200", rec.Code)
	}
}

func TestRouter_Version(t *testing.T) {
	s := newTestStack(t, nil)

	_, doc := s.do(t, http.MethodGet, "/version", "")
	if doc.Get("service").String() != "facturo" || doc.Get("version").String() != apihttp.Version {
		t.Errorf("version = %s", doc.Raw)
	}
}

func TestRouter_Metrics(t *testing.T) {
	s := newTestStack(t, nil)
	s.createInvoice(t)

	rec, _ := s.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"facturo_invoices_created_total 1",
		`facturo_requests_total{method="POST"`,
		`status="2xx"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
