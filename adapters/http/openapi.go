package http

import (
	_ "embed"
	"net/http"

	"github.com/swaggo/swag"
)

//go:embed openapi.json
var openAPIDoc []byte

type openAPISpec struct{}

func (openAPISpec) ReadDoc() string { return string(openAPIDoc) }

func init() {
	// Serves /swagger/doc.json through httpSwagger.
	swag.Register(swag.Name, openAPISpec{})
}

// OpenAPIHandler serves the OpenAPI description of the API.
func OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(openAPIDoc)
}
