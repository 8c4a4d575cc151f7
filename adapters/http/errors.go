package http

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/domain/wizard"
	"github.com/artpar/facturo/pkg/jsonapi"
	"github.com/artpar/facturo/pkg/keycase"
	"github.com/artpar/facturo/ports"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// writeServiceError maps a service error to a JSON:API error response.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, resourceType string, err error) {
	var verrs validation.Errors
	switch {
	case errors.Is(err, ports.ErrNotFound):
		jsonapi.WriteNotFound(w, resourceType)
	case errors.Is(err, ports.ErrDuplicate), errors.Is(err, ports.ErrConflict):
		jsonapi.WriteError(w, jsonapi.ErrConflict(err.Error()))
	case errors.Is(err, invoice.ErrInvalidTransition), errors.Is(err, wizard.ErrInvalidTransition):
		jsonapi.WriteError(w, jsonapi.ErrInvalidTransition(err.Error()))
	case errors.Is(err, wizard.ErrSubmitted):
		jsonapi.WriteError(w, jsonapi.ErrConflict(err.Error()))
	case errors.Is(err, wizard.ErrIncomplete):
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusUnprocessableEntity, "stage_incomplete", "Stage Incomplete").
			Detail(err.Error()).
			Build())
	case errors.As(err, &verrs):
		jsonapi.WriteError(w, validationErrors("", verrs)...)
	default:
		logger.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request failed")
		jsonapi.WriteInternalError(w, "")
	}
}

// validationErrors flattens nested ozzo errors into one error per field,
// pointing at the wire attribute name.
func validationErrors(prefix string, errs validation.Errors) []jsonapi.Error {
	var out []jsonapi.Error
	for field, err := range errs {
		path := keycase.Snake(field)
		if prefix != "" {
			path = prefix + "/" + path
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			out = append(out, validationErrors(path, nested)...)
			continue
		}
		out = append(out, jsonapi.ErrValidation(path, err.Error()))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].Source.Pointer, out[j].Source.Pointer) < 0
	})
	return out
}
