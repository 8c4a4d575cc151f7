package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/artpar/facturo/pkg/keycase"
)

// RequestInterceptor may rewrite an outgoing request before it is sent.
type RequestInterceptor func(*http.Request) error

// ResponseInterceptor may rewrite a response before the caller sees it.
type ResponseInterceptor func(*http.Response) error

// InterceptError reports an interceptor failure. The round trip fails as a whole.
type InterceptError struct {
	Direction string // "request" or "response"
	Method    string
	URL       string
	Err       error
}

func (e *InterceptError) Error() string {
	return fmt.Sprintf("%s interceptor for %s %s: %v", e.Direction, e.Method, e.URL, e.Err)
}

func (e *InterceptError) Unwrap() error { return e.Err }

// interceptTransport runs interceptors around a base transport.
type interceptTransport struct {
	base     http.RoundTripper
	request  []RequestInterceptor
	response []ResponseInterceptor
}

// NewInterceptTransport wraps base so that every request passes through req in
// order before being sent and every response passes through resp in order
// before being returned. A nil base uses http.DefaultTransport.
func NewInterceptTransport(base http.RoundTripper, req []RequestInterceptor, resp []ResponseInterceptor) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &interceptTransport{
		base:     base,
		request:  append([]RequestInterceptor(nil), req...),
		response: append([]ResponseInterceptor(nil), resp...),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *interceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.request) > 0 {
		// A RoundTripper must not modify the caller's request.
		req = req.Clone(req.Context())
		for _, fn := range t.request {
			if err := fn(req); err != nil {
				if req.Body != nil {
					req.Body.Close()
				}
				return nil, &InterceptError{Direction: "request", Method: req.Method, URL: req.URL.String(), Err: err}
			}
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	for _, fn := range t.response {
		if err := fn(resp); err != nil {
			resp.Body.Close()
			return nil, &InterceptError{Direction: "response", Method: req.Method, URL: req.URL.String(), Err: err}
		}
	}
	return resp, nil
}

// IsJSONContentType reports whether a Content-Type header names a JSON media
// type: application/json or any type with a +json suffix.
func IsJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// CasingInterceptors returns interceptors that convert JSON request bodies with
// wire and JSON response bodies with app. Either transformer may be nil to
// leave that direction alone.
func CasingInterceptors(wire, app *keycase.Transformer) (RequestInterceptor, ResponseInterceptor) {
	reqFn := func(req *http.Request) error {
		if wire == nil || req.Body == nil || req.Body == http.NoBody ||
			!IsJSONContentType(req.Header.Get("Content-Type")) {
			return nil
		}
		converted, err := convertBody(req.Body, wire)
		if err != nil {
			return err
		}
		req.Body = io.NopCloser(bytes.NewReader(converted))
		req.ContentLength = int64(len(converted))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(converted)), nil
		}
		if req.Header.Get("Content-Length") != "" {
			req.Header.Set("Content-Length", strconv.Itoa(len(converted)))
		}
		return nil
	}

	respFn := func(resp *http.Response) error {
		if app == nil || resp.Body == nil || resp.Body == http.NoBody ||
			!IsJSONContentType(resp.Header.Get("Content-Type")) {
			return nil
		}
		converted, err := convertBody(resp.Body, app)
		if err != nil {
			return err
		}
		resp.Body = io.NopCloser(bytes.NewReader(converted))
		resp.ContentLength = int64(len(converted))
		if resp.Header.Get("Content-Length") != "" {
			resp.Header.Set("Content-Length", strconv.Itoa(len(converted)))
		}
		return nil
	}

	return reqFn, respFn
}

// convertBody reads and closes body and returns its converted bytes.
// Bodies that are not valid JSON come back unchanged.
func convertBody(body io.ReadCloser, t *keycase.Transformer) ([]byte, error) {
	raw, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw, nil
	}
	converted, err := t.ConvertJSON(raw)
	if errors.Is(err, keycase.ErrNotJSON) {
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return converted, nil
}
