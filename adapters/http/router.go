// Package http provides the HTTP server, client and middleware of facturo.
package http

import (
	"net/http"
	"time"

	"github.com/artpar/facturo/adapters/metrics"
	"github.com/artpar/facturo/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig holds the handlers and options of the router.
type RouterConfig struct {
	Invoices       *InvoiceHandler
	Drafts         *DraftHandler
	Health         *HealthHandler
	Casing         *CasingMiddleware  // Optional; nil serves wire casing only
	Metrics        *metrics.Collector // Optional request metrics
	MetricsHandler http.Handler       // Optional exporter; defaults to promhttp when Metrics is set
	MetricsPath    string             // Default: /metrics
	RequestTimeout time.Duration      // Default: 60s
	EnableOpenAPI  bool               // Serve the API description and Swagger UI
}

// NewRouter creates the main HTTP router.
func NewRouter(cfg RouterConfig, logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	// Metrics middleware (if enabled)
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	// Health endpoints
	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(nil)
	}
	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Metrics endpoint
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if cfg.MetricsHandler != nil {
		r.Handle(metricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(metricsPath, promhttp.Handler())
	}

	// OpenAPI/Swagger endpoints (if enabled)
	if cfg.EnableOpenAPI {
		r.Get("/.well-known/openapi.json", OpenAPIHandler)
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	r.Get("/version", VersionHandler)

	// JSON:API resources
	r.Route("/api", func(api chi.Router) {
		if cfg.Casing != nil {
			api.Use(cfg.Casing.Handler)
		}
		if cfg.Invoices != nil {
			api.Mount("/invoices", cfg.Invoices.Router())
		}
		if cfg.Drafts != nil {
			api.Mount("/drafts", cfg.Drafts.Router())
		}
		api.NotFound(func(w http.ResponseWriter, r *http.Request) {
			jsonapi.WriteNotFound(w, "resource")
		})
	})

	return r
}
