package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/facturo/adapters/metrics"
	"github.com/artpar/facturo/pkg/jsonapi"
	"github.com/artpar/facturo/pkg/keycase"
	"github.com/rs/zerolog"
)

// maxResponseBytes caps response bodies read by the client.
const maxResponseBytes = 10 << 20

// ClientConfig contains configuration for the API client.
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	WireCase string // server convention, default "snake"
	AppCase  string // convention raw responses are returned in, default "camel"
	MaxDepth int
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	transport http.RoundTripper
	casing    bool
	logger    zerolog.Logger
	metrics   *metrics.Collector
}

// WithTransport sets the base transport under the interceptors.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.transport = rt }
}

// WithoutCasing disables client-side key conversion. The client then asks
// the server to answer in the application casing instead.
func WithoutCasing() ClientOption {
	return func(o *clientOptions) { o.casing = false }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

// WithClientMetrics counts client-side key collisions.
func WithClientMetrics(m *metrics.Collector) ClientOption {
	return func(o *clientOptions) { o.metrics = m }
}

// Client talks to the facturo API.
//
// Raw requests go through http and carry bodies in the application casing.
// Typed requests go through typed and always carry lower camel bodies,
// matching the struct tags below.
type Client struct {
	http        *http.Client
	typed       *http.Client
	baseURL     *url.URL
	header      string // casing header value sent with raw requests
	typedHeader string
	logger      zerolog.Logger
}

// NewClient creates a new API client.
func NewClient(cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.WireCase == "" {
		cfg.WireCase = "snake"
	}
	if cfg.AppCase == "" {
		cfg.AppCase = "camel"
	}
	wireNamer, err := keycase.Lookup(cfg.WireCase)
	if err != nil {
		return nil, fmt.Errorf("wire casing: %w", err)
	}
	appNamer, err := keycase.Lookup(cfg.AppCase)
	if err != nil {
		return nil, fmt.Errorf("app casing: %w", err)
	}

	o := clientOptions{casing: true, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	c := &Client{baseURL: baseURL, logger: o.logger}
	reqs := []RequestInterceptor{c.trace}

	if !o.casing {
		// The server converts; typed calls ask it for lower camel directly.
		c.header = strings.ToLower(cfg.AppCase)
		c.typedHeader = "camel"
		c.http = &http.Client{
			Transport: NewInterceptTransport(o.transport, reqs, nil),
			Timeout:   cfg.Timeout,
		}
		c.typed = c.http
		return c, nil
	}

	// Bodies leave in wire casing, so the server has nothing to convert.
	c.header = strings.ToLower(cfg.WireCase)
	c.typedHeader = c.header
	keyOpts := []keycase.Option{
		keycase.WithMaxDepth(cfg.MaxDepth),
		keycase.WithCollisionHook(o.metrics.CollisionHook(metrics.SideClient)),
	}
	wire := keycase.ForNamer(wireNamer, keyOpts...)
	client := func(app keycase.Namer) *http.Client {
		toWire, toApp := CasingInterceptors(wire, keycase.ForNamer(app, keyOpts...))
		return &http.Client{
			Transport: NewInterceptTransport(o.transport, append(reqs, toWire), []ResponseInterceptor{toApp}),
			Timeout:   cfg.Timeout,
		}
	}
	c.http = client(appNamer)
	c.typed = c.http
	if strings.ToLower(strings.TrimSpace(cfg.AppCase)) != "camel" {
		c.typed = client(keycase.LowerCamel)
	}
	return c, nil
}

func (c *Client) trace(req *http.Request) error {
	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("api request")
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	c.typed.CloseIdleConnections()
	return nil
}

// Invoice is an invoice as returned by the API.
type Invoice struct {
	ID             string        `json:"-"`
	Number         string        `json:"number"`
	Status         string        `json:"status"`
	Client         InvoiceClient `json:"client"`
	IssueDate      string        `json:"issueDate"`
	DueDate        string        `json:"dueDate,omitempty"`
	Items          []InvoiceLine `json:"items"`
	Subtotal       int64         `json:"subtotal"`
	VAT            int64         `json:"vat"`
	Total          int64         `json:"total"`
	TotalFormatted string        `json:"totalFormatted"`
	Currency       string        `json:"currency"`
	Overdue        bool          `json:"overdue"`
	PaidAt         *time.Time    `json:"paidAt,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	Notes          []Note        `json:"-"` // filled by GetInvoice with notes included
}

// InvoiceClient identifies who is billed.
type InvoiceClient struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	SIRET   string `json:"siret,omitempty"`
}

// InvoiceLine is a line of an invoice. A nil VATRate takes the server default.
type InvoiceLine struct {
	Description  string `json:"description"`
	Quantity     int64  `json:"quantity"`
	UnitPrice    int64  `json:"unitPrice"`
	VATRate      *int64 `json:"vatRate,omitempty"`
	VATRateLabel string `json:"vatRateLabel,omitempty"`
	Amount       int64  `json:"amount,omitempty"`
	VAT          int64  `json:"vat,omitempty"`
}

// NewInvoice holds the fields of an invoice to create.
type NewInvoice struct {
	Client    InvoiceClient `json:"client"`
	IssueDate string        `json:"issueDate,omitempty"`
	DueDate   string        `json:"dueDate,omitempty"`
	Items     []InvoiceLine `json:"items"`
	Currency  string        `json:"currency,omitempty"`
}

// Note is a note attached to an invoice.
type Note struct {
	ID        string    `json:"-"`
	InvoiceID string    `json:"-"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListOptions narrows an invoice listing.
type ListOptions struct {
	Status string
	Limit  int
	Offset int
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Errors     []jsonapi.Error
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("facturo: unexpected status %d", e.StatusCode)
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
		if err.Source != nil && err.Source.Pointer != "" {
			msgs[i] += " (" + err.Source.Pointer + ")"
		}
	}
	return "facturo: " + strings.Join(msgs, "; ")
}

// ListInvoices returns invoices, newest first.
func (c *Client) ListInvoices(ctx context.Context, opts ListOptions) ([]Invoice, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("page[limit]", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("page[offset]", strconv.Itoa(opts.Offset))
	}
	path := "/api/invoices"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	doc, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resources []resourceObject
	if err := json.Unmarshal(doc.Data, &resources); err != nil {
		return nil, fmt.Errorf("decode invoices: %w", err)
	}
	invoices := make([]Invoice, len(resources))
	for i, res := range resources {
		if invoices[i], err = res.invoice(); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

// GetInvoice returns an invoice with its notes.
func (c *Client) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	doc, err := c.call(ctx, http.MethodGet, "/api/invoices/"+url.PathEscape(id)+"?include=notes", nil)
	if err != nil {
		return Invoice{}, err
	}
	inv, err := doc.invoice()
	if err != nil {
		return Invoice{}, err
	}
	for _, res := range doc.Included {
		if res.Type != TypeNote {
			continue
		}
		n, err := res.note()
		if err != nil {
			return Invoice{}, err
		}
		n.InvoiceID = inv.ID
		inv.Notes = append(inv.Notes, n)
	}
	return inv, nil
}

// CreateInvoice issues a new invoice.
func (c *Client) CreateInvoice(ctx context.Context, in NewInvoice) (Invoice, error) {
	doc, err := c.call(ctx, http.MethodPost, "/api/invoices", requestBody(TypeInvoice, in))
	if err != nil {
		return Invoice{}, err
	}
	return doc.invoice()
}

// UpdateInvoiceStatus moves an invoice to status.
func (c *Client) UpdateInvoiceStatus(ctx context.Context, id, status string) (Invoice, error) {
	body := requestBody(TypeInvoice, map[string]string{"status": status})
	doc, err := c.call(ctx, http.MethodPatch, "/api/invoices/"+url.PathEscape(id)+"/status", body)
	if err != nil {
		return Invoice{}, err
	}
	return doc.invoice()
}

// AddNote attaches a note to an invoice.
func (c *Client) AddNote(ctx context.Context, invoiceID, body string) (Note, error) {
	doc, err := c.call(ctx, http.MethodPost, "/api/invoices/"+url.PathEscape(invoiceID)+"/notes",
		requestBody(TypeNote, map[string]string{"body": body}))
	if err != nil {
		return Note{}, err
	}
	var res resourceObject
	if err := json.Unmarshal(doc.Data, &res); err != nil {
		return Note{}, fmt.Errorf("decode note: %w", err)
	}
	n, err := res.note()
	if err != nil {
		return Note{}, err
	}
	n.InvoiceID = invoiceID
	return n, nil
}

// ListNotes returns the notes of an invoice, oldest first.
func (c *Client) ListNotes(ctx context.Context, invoiceID string) ([]Note, error) {
	doc, err := c.call(ctx, http.MethodGet, "/api/invoices/"+url.PathEscape(invoiceID)+"/notes", nil)
	if err != nil {
		return nil, err
	}
	var resources []resourceObject
	if err := json.Unmarshal(doc.Data, &resources); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	notes := make([]Note, len(resources))
	for i, res := range resources {
		if notes[i], err = res.note(); err != nil {
			return nil, err
		}
		notes[i].InvoiceID = invoiceID
	}
	return notes, nil
}

// HealthCheck verifies the server is ready.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.Do(ctx, http.MethodGet, "/health/ready", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Do sends a raw request. body, when set, is a JSON document in the
// application casing; the response body comes back in the same casing.
// The caller closes the response body.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	return c.send(ctx, c.http, c.header, method, path, body)
}

func (c *Client) send(ctx context.Context, hc *http.Client, header, method, path string, body []byte) (*http.Response, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(ref).String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", jsonapi.ContentType)
	req.Header.Set(DefaultCasingHeader, header)
	if body != nil {
		req.Header.Set("Content-Type", jsonapi.ContentType)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

type resourceObject struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

func (r resourceObject) invoice() (Invoice, error) {
	var inv Invoice
	if err := json.Unmarshal(r.Attributes, &inv); err != nil {
		return Invoice{}, fmt.Errorf("decode invoice %s: %w", r.ID, err)
	}
	inv.ID = r.ID
	return inv, nil
}

func (r resourceObject) note() (Note, error) {
	var n Note
	if err := json.Unmarshal(r.Attributes, &n); err != nil {
		return Note{}, fmt.Errorf("decode note %s: %w", r.ID, err)
	}
	n.ID = r.ID
	return n, nil
}

type responseDocument struct {
	Data     json.RawMessage  `json:"data"`
	Included []resourceObject `json:"included"`
	Errors   []jsonapi.Error  `json:"errors"`
}

func (d *responseDocument) invoice() (Invoice, error) {
	var res resourceObject
	if err := json.Unmarshal(d.Data, &res); err != nil {
		return Invoice{}, fmt.Errorf("decode invoice: %w", err)
	}
	return res.invoice()
}

func requestBody(resourceType string, attrs any) []byte {
	raw, _ := json.Marshal(attrs)
	body, _ := json.Marshal(jsonapi.RequestDocument{
		Data: &jsonapi.RequestResource{Type: resourceType, Attributes: raw},
	})
	return body
}

// call sends a request and decodes the JSON:API response document.
func (c *Client) call(ctx context.Context, method, path string, body []byte) (*responseDocument, error) {
	resp, err := c.send(ctx, c.typed, c.typedHeader, method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Errors: jsonapi.DecodeErrors(raw)}
	}

	var doc responseDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &doc, nil
}
