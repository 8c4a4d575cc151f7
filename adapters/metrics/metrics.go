// Package metrics provides Prometheus metrics collection for facturo.
package metrics

import (
	"strings"

	"github.com/artpar/facturo/pkg/keycase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "facturo"

// Conversion sides and directions used as label values.
const (
	SideServer = "server"
	SideClient = "client"

	DirectionRequest  = "request"
	DirectionResponse = "response"
)

// Collector holds all Prometheus metrics for facturo.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Key casing metrics
	Conversions        *prometheus.CounterVec
	ConversionFailures *prometheus.CounterVec
	KeyCollisions      *prometheus.CounterVec

	// Invoice metrics
	InvoicesCreated prometheus.Counter
	StatusChanges   *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),

		Conversions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keycase",
				Name:      "conversions_total",
				Help:      "Total number of JSON bodies whose keys were converted",
			},
			[]string{"side", "direction"},
		),
		ConversionFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keycase",
				Name:      "conversion_failures_total",
				Help:      "Total number of key conversions that failed",
			},
			[]string{"side", "direction"},
		),
		KeyCollisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keycase",
				Name:      "collisions_total",
				Help:      "Total number of distinct keys that converted to the same key",
			},
			[]string{"side"},
		),

		InvoicesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoices_created_total",
				Help:      "Total number of invoices created",
			},
		),
		StatusChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoice_status_changes_total",
				Help:      "Total number of invoice status changes by target status",
			},
			[]string{"status"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// CollisionHook returns a keycase hook counting collisions for side.
// A nil collector yields a nil hook.
func (c *Collector) CollisionHook(side string) func(keycase.Collision) {
	if c == nil {
		return nil
	}
	counter := c.KeyCollisions.WithLabelValues(side)
	return func(keycase.Collision) {
		counter.Inc()
	}
}

// NormalizePath reduces cardinality by replacing identifier segments.
// e.g., /api/invoices/inv_9f2c.../notes -> /api/invoices/:id/notes
func NormalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isIdentifier(seg) {
			segments[i] = ":id"
		}
	}
	path = strings.Join(segments, "/")
	if len(path) > 50 {
		return path[:50] + "..."
	}
	return path
}

func isIdentifier(seg string) bool {
	if seg == "" {
		return false
	}
	for _, prefix := range []string{"inv_", "note_", "draft_"} {
		if strings.HasPrefix(seg, prefix) {
			return true
		}
	}
	digits, hexish := 0, 0
	for _, r := range seg {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r >= 'a' && r <= 'f', r == '-':
			hexish++
		default:
			return false
		}
	}
	// All digits, or a UUID-like run of hex.
	return digits == len(seg) || (digits > 0 && len(seg) >= 32)
}
