// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/facturo/domain/invoice"
	"github.com/artpar/facturo/pkg/keycase"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Casing   CasingConfig   `yaml:"casing"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Invoice  InvoiceConfig  `yaml:"invoice"`
	Client   ClientConfig   `yaml:"client"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	OpenAPI         bool          `yaml:"openapi"` // Serve /.well-known/openapi.json and /swagger/
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// CasingConfig configures key casing at the HTTP boundary.
type CasingConfig struct {
	Wire          string `yaml:"wire"`           // convention used by handlers and storage
	ClientDefault string `yaml:"client_default"` // applied when a request has no casing header
	Header        string `yaml:"header"`         // request header selecting the client casing
	MaxDepth      int    `yaml:"max_depth"`
	Collisions    string `yaml:"collisions"` // "last_wins" or "error"
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// InvoiceConfig configures invoice numbering and defaults.
type InvoiceConfig struct {
	NumberPrefix   string `yaml:"number_prefix"`
	Currency       string `yaml:"currency"`
	DefaultVATRate *int64 `yaml:"default_vat_rate"` // basis points; nil means 2000
	DueDays        int    `yaml:"due_days"`
}

// VATRate returns the default VAT rate in basis points.
func (c InvoiceConfig) VATRate() int64 {
	if c.DefaultVATRate == nil {
		return invoice.VATStandard
	}
	return *c.DefaultVATRate
}

// ClientConfig configures the command-line API client.
type ClientConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	AppCase string        `yaml:"app_case"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	FACTURO_SERVER_HOST            - Server host (default: 0.0.0.0)
//	FACTURO_SERVER_PORT            - Server port (default: 8080)
//	FACTURO_SERVER_OPENAPI         - Serve the API description (default: false)
//	FACTURO_DATABASE_DRIVER        - sqlite or memory (default: sqlite)
//	FACTURO_DATABASE_DSN           - Database path (default: facturo.db)
//	FACTURO_CASING_WIRE            - Wire key casing (default: snake)
//	FACTURO_CASING_CLIENT_DEFAULT  - Casing for requests without header (default: wire)
//	FACTURO_CASING_HEADER          - Casing header name (default: X-Key-Case)
//	FACTURO_CASING_MAX_DEPTH       - Nesting cap for conversions (default: 256)
//	FACTURO_CASING_COLLISIONS      - last_wins or error (default: last_wins)
//	FACTURO_LOG_LEVEL              - debug, info, warn, error (default: info)
//	FACTURO_LOG_FORMAT             - json or console (default: json)
//	FACTURO_METRICS_ENABLED        - Enable /metrics endpoint
//	FACTURO_INVOICE_NUMBER_PREFIX  - Invoice number prefix (default: FAC)
//	FACTURO_INVOICE_DEFAULT_VAT_RATE - Default VAT rate in basis points (default: 2000)
//	FACTURO_INVOICE_DUE_DAYS       - Payment delay in days (default: 30)
//	FACTURO_CLIENT_BASE_URL        - Server URL for the CLI (default: http://localhost:8080)
//	FACTURO_CLIENT_TIMEOUT         - CLI request timeout (default: 30s)
//	FACTURO_CLIENT_APP_CASE        - Casing the CLI works in (default: camel)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads from file when it exists, else from environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// LoadEnvFile loads variables from a dotenv file without overriding the
// process environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies FACTURO_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("FACTURO_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FACTURO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACTURO_SERVER_OPENAPI"); v != "" {
		cfg.Server.OpenAPI = parseBool(v)
	}
	if v := os.Getenv("FACTURO_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("FACTURO_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Database configuration
	if v := os.Getenv("FACTURO_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FACTURO_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Casing configuration
	if v := os.Getenv("FACTURO_CASING_WIRE"); v != "" {
		cfg.Casing.Wire = v
	}
	if v := os.Getenv("FACTURO_CASING_CLIENT_DEFAULT"); v != "" {
		cfg.Casing.ClientDefault = v
	}
	if v := os.Getenv("FACTURO_CASING_HEADER"); v != "" {
		cfg.Casing.Header = v
	}
	if v := os.Getenv("FACTURO_CASING_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Casing.MaxDepth = n
		}
	}
	if v := os.Getenv("FACTURO_CASING_COLLISIONS"); v != "" {
		cfg.Casing.Collisions = v
	}

	// Logging configuration
	if v := os.Getenv("FACTURO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FACTURO_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("FACTURO_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("FACTURO_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// Invoice configuration
	if v := os.Getenv("FACTURO_INVOICE_NUMBER_PREFIX"); v != "" {
		cfg.Invoice.NumberPrefix = v
	}
	if v := os.Getenv("FACTURO_INVOICE_DEFAULT_VAT_RATE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Invoice.DefaultVATRate = &n
		}
	}
	if v := os.Getenv("FACTURO_INVOICE_DUE_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Invoice.DueDays = n
		}
	}

	// Client configuration
	if v := os.Getenv("FACTURO_CLIENT_BASE_URL"); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := os.Getenv("FACTURO_CLIENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.Timeout = d
		}
	}
	if v := os.Getenv("FACTURO_CLIENT_APP_CASE"); v != "" {
		cfg.Client.AppCase = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "facturo.db"
	}

	if cfg.Casing.Wire == "" {
		cfg.Casing.Wire = "snake"
	}
	if cfg.Casing.ClientDefault == "" {
		cfg.Casing.ClientDefault = cfg.Casing.Wire
	}
	if cfg.Casing.Header == "" {
		cfg.Casing.Header = "X-Key-Case"
	}
	if cfg.Casing.MaxDepth == 0 {
		cfg.Casing.MaxDepth = keycase.DefaultMaxDepth
	}
	if cfg.Casing.Collisions == "" {
		cfg.Casing.Collisions = "last_wins"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Invoice.NumberPrefix == "" {
		cfg.Invoice.NumberPrefix = "FAC"
	}
	if cfg.Invoice.Currency == "" {
		cfg.Invoice.Currency = invoice.DefaultCurrency
	}
	if cfg.Invoice.DueDays == 0 {
		cfg.Invoice.DueDays = 30
	}

	if cfg.Client.BaseURL == "" {
		cfg.Client.BaseURL = "http://localhost:8080"
	}
	if cfg.Client.Timeout == 0 {
		cfg.Client.Timeout = 30 * time.Second
	}
	if cfg.Client.AppCase == "" {
		cfg.Client.AppCase = "camel"
	}
}

var numberPrefix = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,9}$`)

// casingName validates a naming convention name.
var casingName = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := keycase.Lookup(s); err != nil {
		return fmt.Errorf("must be one of %s", strings.Join(keycase.Names(), ", "))
	}
	return nil
})

var logLevel = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if _, err := zerolog.ParseLevel(s); err != nil {
		return errors.New("must be a zerolog level")
	}
	return nil
})

// Validate checks a configuration after defaults have been applied.
func Validate(cfg *Config) error {
	var vat any
	if cfg.Invoice.DefaultVATRate != nil {
		vat = *cfg.Invoice.DefaultVATRate
	}

	errs := validation.Errors{}
	errs["server.port"] = validation.Validate(cfg.Server.Port, validation.Required, validation.Min(1), validation.Max(65535))
	errs["database.driver"] = validation.Validate(cfg.Database.Driver, validation.In("sqlite", "memory"))
	errs["database.dsn"] = validation.Validate(cfg.Database.DSN, validation.When(cfg.Database.Driver == "sqlite", validation.Required))
	errs["casing.wire"] = validation.Validate(cfg.Casing.Wire, validation.Required, casingName)
	errs["casing.client_default"] = validation.Validate(cfg.Casing.ClientDefault, casingName)
	errs["casing.header"] = validation.Validate(cfg.Casing.Header, validation.Required)
	errs["casing.max_depth"] = validation.Validate(cfg.Casing.MaxDepth, validation.Min(1))
	errs["casing.collisions"] = validation.Validate(cfg.Casing.Collisions, validation.In("last_wins", "error"))
	errs["logging.level"] = validation.Validate(cfg.Logging.Level, logLevel)
	errs["logging.format"] = validation.Validate(cfg.Logging.Format, validation.In("json", "console"))
	errs["metrics.path"] = validation.Validate(cfg.Metrics.Path, validation.Match(regexp.MustCompile(`^/`)))
	errs["invoice.number_prefix"] = validation.Validate(cfg.Invoice.NumberPrefix, validation.Required, validation.Match(numberPrefix))
	errs["invoice.currency"] = validation.Validate(cfg.Invoice.Currency, validation.In(invoice.DefaultCurrency))
	errs["invoice.default_vat_rate"] = validation.Validate(vat, validation.In(
		invoice.VATZero, invoice.VATSuperReduced, invoice.VATReduced, invoice.VATIntermediate, invoice.VATStandard))
	errs["invoice.due_days"] = validation.Validate(cfg.Invoice.DueDays, validation.Min(0), validation.Max(365))
	errs["client.base_url"] = validation.Validate(cfg.Client.BaseURL, validation.Required, is.URL)
	errs["client.app_case"] = validation.Validate(cfg.Client.AppCase, casingName)
	return errs.Filter()
}
