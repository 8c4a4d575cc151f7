package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/artpar/facturo/adapters/metrics"
	"github.com/artpar/facturo/pkg/jsonapi"
	"github.com/artpar/facturo/pkg/keycase"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// DefaultCasingHeader is the request header naming the client's key casing.
const DefaultCasingHeader = "X-Key-Case"

// CasingConfig configures the casing middleware.
type CasingConfig struct {
	Wire          string // convention handlers read and write, e.g. "snake"
	Header        string // request header selecting the client convention
	DefaultClient string // convention assumed when the header is absent
	MaxDepth      int
	Collisions    keycase.CollisionPolicy
}

// CasingMiddleware converts JSON bodies between the client's key casing and
// the wire casing the handlers use.
type CasingMiddleware struct {
	wire          string
	header        string
	toWire        *keycase.Transformer
	toClient      map[string]*keycase.Transformer
	defaultClient atomic.Pointer[string]
	logger        zerolog.Logger
	metrics       *metrics.Collector
}

// NewCasingMiddleware creates the casing middleware. metrics may be nil.
func NewCasingMiddleware(cfg CasingConfig, logger zerolog.Logger, m *metrics.Collector) (*CasingMiddleware, error) {
	if cfg.Wire == "" {
		cfg.Wire = "snake"
	}
	if cfg.Header == "" {
		cfg.Header = DefaultCasingHeader
	}
	wire := normalizeCase(cfg.Wire)
	wireNamer, err := keycase.Lookup(wire)
	if err != nil {
		return nil, fmt.Errorf("wire casing: %w", err)
	}

	c := &CasingMiddleware{
		wire:     wire,
		header:   cfg.Header,
		toClient: make(map[string]*keycase.Transformer),
		logger:   logger,
		metrics:  m,
	}

	opts := func(direction string) []keycase.Option {
		return []keycase.Option{
			keycase.WithMaxDepth(cfg.MaxDepth),
			keycase.WithCollisionPolicy(cfg.Collisions),
			keycase.WithCollisionHook(c.collisionHook(direction)),
		}
	}

	c.toWire = keycase.ForNamer(wireNamer, opts(metrics.DirectionRequest)...)
	for _, name := range keycase.Names() {
		namer, _ := keycase.Lookup(name)
		c.toClient[name] = keycase.ForNamer(namer, opts(metrics.DirectionResponse)...)
	}

	def := cfg.DefaultClient
	if def == "" {
		def = wire
	}
	if err := c.SetDefaultClientCase(def); err != nil {
		return nil, err
	}
	return c, nil
}

// SetDefaultClientCase changes the convention assumed for requests without
// the casing header. Safe to call while serving.
func (c *CasingMiddleware) SetDefaultClientCase(name string) error {
	name = normalizeCase(name)
	if _, ok := c.toClient[name]; !ok {
		return fmt.Errorf("default client casing: unknown convention %q", name)
	}
	c.defaultClient.Store(&name)
	return nil
}

// DefaultClientCase returns the convention assumed without a casing header.
func (c *CasingMiddleware) DefaultClientCase() string {
	return *c.defaultClient.Load()
}

// Handler returns the middleware handler.
func (c *CasingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", c.header)

		clientCase := c.DefaultClientCase()
		if v := r.Header.Get(c.header); v != "" {
			clientCase = normalizeCase(v)
		}
		toClient, ok := c.toClient[clientCase]
		if !ok {
			jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "unknown_key_case", "Unknown Key Case").
				Detailf("%s must be one of %s", c.header, strings.Join(keycase.Names(), ", ")).
				Header(c.header).
				Build())
			return
		}
		w.Header().Set(c.header, clientCase)

		// Already in wire casing, or explicitly untouched.
		if clientCase == c.wire || clientCase == "identity" {
			next.ServeHTTP(w, r)
			return
		}

		if err := c.convertRequest(r); errors.Is(err, jsonapi.ErrTooLarge) {
			jsonapi.WriteError(w, jsonapi.ErrRequestTooLarge())
			return
		} else if err != nil {
			c.fail(r, metrics.DirectionRequest, err)
			jsonapi.WriteError(w, jsonapi.NewError(http.StatusBadRequest, "key_conversion_failed", "Key Conversion Failed").
				Detail(err.Error()).
				Build())
			return
		}

		buf := &bufferedWriter{header: w.Header()}
		next.ServeHTTP(buf, r)

		body := buf.body.Bytes()
		if buf.status() != http.StatusNoContent && len(body) > 0 && IsJSONContentType(w.Header().Get("Content-Type")) {
			converted, err := toClient.ConvertJSON(body)
			switch {
			case errors.Is(err, keycase.ErrNotJSON):
				// Leave it as the handler wrote it.
			case err != nil:
				c.fail(r, metrics.DirectionResponse, err)
				w.Header().Del("Content-Length")
				jsonapi.WriteInternalError(w, "response keys could not be converted")
				return
			default:
				body = converted
				c.count(metrics.DirectionResponse)
			}
		}

		if len(body) > 0 {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		}
		w.WriteHeader(buf.status())
		w.Write(body)
	})
}

func (c *CasingMiddleware) convertRequest(r *http.Request) error {
	if r.Body == nil || r.Body == http.NoBody || !IsJSONContentType(r.Header.Get("Content-Type")) {
		return nil
	}
	raw, err := jsonapi.ReadBody(r.Body)
	r.Body.Close()
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	body := raw
	if len(bytes.TrimSpace(raw)) > 0 {
		converted, err := c.toWire.ConvertJSON(raw)
		switch {
		case errors.Is(err, keycase.ErrNotJSON):
			// The handler reports the malformed document.
		case err != nil:
			return err
		default:
			body = converted
			c.count(metrics.DirectionRequest)
		}
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return nil
}

func (c *CasingMiddleware) count(direction string) {
	if c.metrics != nil {
		c.metrics.Conversions.WithLabelValues(metrics.SideServer, direction).Inc()
	}
}

func (c *CasingMiddleware) fail(r *http.Request, direction string, err error) {
	if c.metrics != nil {
		c.metrics.ConversionFailures.WithLabelValues(metrics.SideServer, direction).Inc()
	}
	c.logger.Warn().
		Err(err).
		Str("direction", direction).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("key conversion failed")
}

func (c *CasingMiddleware) collisionHook(direction string) func(keycase.Collision) {
	count := c.metrics.CollisionHook(metrics.SideServer)
	return func(col keycase.Collision) {
		if count != nil {
			count(col)
		}
		c.logger.Debug().
			Str("direction", direction).
			Str("path", col.Path).
			Str("target", col.Target).
			Strs("sources", col.Sources).
			Msg("key collision")
	}
}

func normalizeCase(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// bufferedWriter holds a handler's response so its body can be rewritten.
type bufferedWriter struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.code == 0 {
		b.code = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.code == 0 {
		b.code = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) status() int {
	if b.code == 0 {
		return http.StatusOK
	}
	return b.code
}
