package jsonapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxRequestBytes caps request documents read by ReadBody and DecodeResource.
const MaxRequestBytes = 1 << 20

// ErrTooLarge is returned when a request document exceeds MaxRequestBytes.
var ErrTooLarge = fmt.Errorf("request document exceeds %d bytes", MaxRequestBytes)

// ReadBody reads a whole request body, failing with ErrTooLarge rather than
// truncating it.
func ReadBody(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxRequestBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxRequestBytes {
		return nil, ErrTooLarge
	}
	return raw, nil
}

// WriteDocument writes a JSON:API document to the response.
func WriteDocument(w http.ResponseWriter, status int, doc Document) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(doc)
}

// WriteResource writes a single resource response.
func WriteResource(w http.ResponseWriter, status int, r Resource) {
	WriteDocument(w, status, NewSingleResourceDocument(r))
}

// WriteCollection writes a collection response with optional pagination.
func WriteCollection(w http.ResponseWriter, status int, resources []Resource, page *Page) {
	WriteDocument(w, status, NewCollectionDocument(resources, page))
}

// WriteError writes an error response with one or more errors.
// The HTTP status is derived from the first error's status field.
func WriteError(w http.ResponseWriter, errs ...Error) {
	if len(errs) == 0 {
		WriteDocument(w, http.StatusInternalServerError, NewErrorDocument(ErrInternal("")))
		return
	}

	status := errs[0].StatusCode()
	if status == 0 {
		status = http.StatusInternalServerError
	}

	WriteDocument(w, status, NewErrorDocument(errs...))
}

// WriteCreated writes a 201 Created response with the resource and optional Location header.
func WriteCreated(w http.ResponseWriter, r Resource, location string) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	WriteResource(w, http.StatusCreated, r)
}

// WriteMeta writes a response with only metadata (no data).
func WriteMeta(w http.ResponseWriter, status int, meta Meta) {
	WriteDocument(w, status, NewDocument().MetaAll(meta).Build())
}

// WriteBadRequest is a convenience for 400 errors.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, ErrBadRequest(detail))
}

// WriteNotFound is a convenience for 404 errors.
func WriteNotFound(w http.ResponseWriter, resourceType string) {
	WriteError(w, ErrNotFound(resourceType))
}

// WriteValidationError is a convenience for 422 validation errors.
func WriteValidationError(w http.ResponseWriter, field, message string) {
	WriteError(w, ErrValidation(field, message))
}

// WriteInternalError is a convenience for 500 errors.
func WriteInternalError(w http.ResponseWriter, detail string) {
	WriteError(w, ErrInternal(detail))
}

// ErrMissingData is returned by DecodeResource when the document has no data member.
var ErrMissingData = errors.New("request document has no data member")

// DecodeResource reads a request document, checks the resource type and
// decodes its attributes into attrs.
func DecodeResource(r io.Reader, resourceType string, attrs any) (*RequestResource, error) {
	raw, err := ReadBody(r)
	if err != nil {
		return nil, fmt.Errorf("read request document: %w", err)
	}
	var doc RequestDocument
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode request document: %w", err)
	}
	if doc.Data == nil {
		return nil, ErrMissingData
	}
	if doc.Data.Type != resourceType {
		return nil, fmt.Errorf("resource type %q does not match %q", doc.Data.Type, resourceType)
	}
	if attrs != nil && len(doc.Data.Attributes) > 0 {
		if err := json.Unmarshal(doc.Data.Attributes, attrs); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return doc.Data, nil
}

// DecodeErrors extracts the error objects of an error document.
// It returns nil when body is not an error document.
func DecodeErrors(body []byte) []Error {
	var doc struct {
		Errors []Error `json:"errors"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}
	return doc.Errors
}
