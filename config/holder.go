// Package config provides configuration loading and hot reload.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Holder provides thread-safe access to configuration with hot reload support.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	onError  []func(error)
	stopCh   chan struct{}
}

// NewHolder creates a new config holder and loads the initial configuration.
// An empty path loads configuration from the environment only; such a holder
// reloads from the environment and cannot watch a file.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	if path == "" {
		cfg, err := LoadFromEnv()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return &Holder{config: cfg, logger: logger, stopCh: make(chan struct{})}, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	h := &Holder{
		config: cfg,
		path:   absPath,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	return h, nil
}

// Get returns the current configuration (thread-safe).
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// SetLogger replaces the logger. Call it before WatchFile or WatchSignals.
func (h *Holder) SetLogger(logger zerolog.Logger) {
	h.logger = logger
}

// Path returns the absolute config file path, or "" for an environment-only holder.
func (h *Holder) Path() string {
	return h.path
}

// Reload reloads the configuration from disk.
// Returns error if loading fails (keeps old config).
func (h *Holder) Reload() error {
	h.logger.Info().Str("path", h.path).Msg("reloading configuration")

	var (
		newCfg *Config
		err    error
	)
	if h.path == "" {
		newCfg, err = LoadFromEnv()
	} else {
		newCfg, err = Load(h.path)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, keeping old config")
		err = fmt.Errorf("reload config: %w", err)
		h.mu.RLock()
		listeners := h.onError
		h.mu.RUnlock()
		for _, fn := range listeners {
			fn(err)
		}
		return err
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	listeners := h.onChange
	h.mu.Unlock()

	// Log what changed
	h.logChanges(oldCfg, newCfg)

	// Notify listeners
	for _, fn := range listeners {
		fn(newCfg)
	}

	h.logger.Info().Msg("configuration reloaded successfully")
	return nil
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnReloadError registers a callback to be called when a reload fails.
func (h *Holder) OnReloadError(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onError = append(h.onError, fn)
}

// WatchFile starts watching the config file for changes.
// Changes trigger automatic reload.
func (h *Holder) WatchFile() error {
	if h.path == "" {
		return errors.New("no config file to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory (more reliable for editors that do atomic saves)
	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go h.watchLoop()

	h.logger.Info().Str("path", h.path).Msg("watching config file for changes")
	return nil
}

// WatchSignals starts listening for SIGHUP to trigger reload.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, reloading config")
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("SIGHUP reload failed")
				}
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	h.logger.Info().Msg("listening for SIGHUP to reload config")
}

// Stop stops watching for file changes and signals.
func (h *Holder) Stop() {
	close(h.stopCh)
	if h.watcher != nil {
		h.watcher.Close()
	}
}

func (h *Holder) watchLoop() {
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}

			// Only react to our config file
			if filepath.Base(event.Name) != filename {
				continue
			}

			// React to write or create (atomic save = create)
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("config file changed")

				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Msg("file watch reload failed")
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("file watcher error")

		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	// Log significant changes
	if old.Logging.Level != new.Logging.Level {
		h.logger.Info().
			Str("old", old.Logging.Level).
			Str("new", new.Logging.Level).
			Msg("log level changed")
	}

	if old.Casing.ClientDefault != new.Casing.ClientDefault {
		h.logger.Info().
			Str("old", old.Casing.ClientDefault).
			Str("new", new.Casing.ClientDefault).
			Msg("default client casing changed")
	}

	if old.Invoice.NumberPrefix != new.Invoice.NumberPrefix {
		h.logger.Info().
			Str("old", old.Invoice.NumberPrefix).
			Str("new", new.Invoice.NumberPrefix).
			Msg("invoice number prefix changed")
	}

	if old.Invoice.VATRate() != new.Invoice.VATRate() {
		h.logger.Info().
			Int64("old", old.Invoice.VATRate()).
			Int64("new", new.Invoice.VATRate()).
			Msg("default VAT rate changed")
	}

	if old.Invoice.DueDays != new.Invoice.DueDays {
		h.logger.Info().
			Int("old", old.Invoice.DueDays).
			Int("new", new.Invoice.DueDays).
			Msg("payment delay changed")
	}

	for _, field := range NonReloadableFields() {
		if fieldValue(old, field) != fieldValue(new, field) {
			h.logger.Warn().
				Str("field", field).
				Msg("config change requires restart to take effect")
		}
	}
}

func fieldValue(cfg *Config, field string) string {
	switch field {
	case "server.host":
		return cfg.Server.Host
	case "server.port":
		return fmt.Sprint(cfg.Server.Port)
	case "database.driver":
		return cfg.Database.Driver
	case "database.dsn":
		return cfg.Database.DSN
	case "casing.wire":
		return cfg.Casing.Wire
	case "casing.header":
		return cfg.Casing.Header
	case "metrics.enabled":
		return fmt.Sprint(cfg.Metrics.Enabled)
	}
	return ""
}

// ReloadableFields returns which fields can be changed without restart.
func ReloadableFields() []string {
	return []string{
		"logging.level",
		"casing.client_default",
		"invoice.number_prefix",
		"invoice.default_vat_rate",
		"invoice.due_days",
	}
}

// NonReloadableFields returns which fields require a restart.
func NonReloadableFields() []string {
	return []string{
		"server.host",
		"server.port",
		"database.driver",
		"database.dsn",
		"casing.wire",
		"casing.header",
		"metrics.enabled",
	}
}
