// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/artpar/facturo/adapters/clock"
	apihttp "github.com/artpar/facturo/adapters/http"
	"github.com/artpar/facturo/adapters/idgen"
	"github.com/artpar/facturo/adapters/memory"
	"github.com/artpar/facturo/adapters/metrics"
	"github.com/artpar/facturo/adapters/sqlite"
	"github.com/artpar/facturo/app"
	"github.com/artpar/facturo/config"
	"github.com/artpar/facturo/pkg/keycase"
	"github.com/artpar/facturo/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	DB         *sqlite.DB // nil with the memory driver
	Router     http.Handler
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	// Services
	Invoices *app.InvoiceService
	Drafts   *app.DraftService
	Casing   *apihttp.CasingMiddleware

	stopOnce sync.Once
}

// Options tunes application initialization.
type Options struct {
	// ConfigPath is the YAML file to load. Empty loads from FACTURO_* variables only.
	ConfigPath string

	// HotReload watches the config file and SIGHUP for changes.
	HotReload bool

	// Registry receives the metrics. Default: the global Prometheus registry.
	Registry *prometheus.Registry

	// Clock overrides the wall clock. Default: clock.Real.
	Clock ports.Clock

	// LogOutput receives log lines. Default: os.Stdout.
	LogOutput io.Writer
}

type stores struct {
	invoices ports.InvoiceStore
	notes    ports.NoteStore
	drafts   ports.DraftStore
	health   apihttp.HealthChecker
}

// New creates and initializes the application.
func New(opts Options) (*App, error) {
	holder, err := config.NewHolder(opts.ConfigPath, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	cfg := holder.Get()

	if opts.LogOutput == nil {
		opts.LogOutput = os.Stdout
	}
	logger := setupLogger(cfg.Logging, opts.LogOutput)
	logger.Info().Str("version", apihttp.Version).Msg("initializing facturo")

	holder.SetLogger(logger)

	a := &App{
		Logger: logger,
		Config: holder,
	}

	if cfg.Metrics.Enabled {
		if opts.Registry != nil {
			a.Metrics = metrics.NewWithRegistry(opts.Registry)
		} else {
			a.Metrics = metrics.New()
		}
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	st, err := a.initStores(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	a.Invoices = app.NewInvoiceService(app.InvoiceDeps{
		Invoices:   st.invoices,
		Notes:      st.notes,
		Clock:      clk,
		InvoiceIDs: idgen.NewUUID("inv_"),
		NoteIDs:    idgen.NewUUID("note_"),
		Logger:     logger,
	}, invoiceConfig(cfg))
	a.Drafts = app.NewDraftService(app.DraftDeps{
		Drafts:   st.drafts,
		Invoices: a.Invoices,
		Clock:    clk,
		IDs:      idgen.NewUUID("draft_"),
		Logger:   logger,
	})

	if err := a.initHTTPServer(cfg, st, clk, opts.Registry); err != nil {
		a.closeDB()
		return nil, fmt.Errorf("init http server: %w", err)
	}

	a.watchConfig(opts.HotReload)
	return a, nil
}

func (a *App) initStores(cfg config.DatabaseConfig) (stores, error) {
	switch cfg.Driver {
	case "memory":
		a.Logger.Warn().Msg("using in-memory storage, data is lost on exit")
		return stores{
			invoices: memory.NewInvoiceStore(),
			notes:    memory.NewNoteStore(),
			drafts:   memory.NewDraftStore(),
		}, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return stores{}, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return stores{}, fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		a.Logger.Info().Str("dsn", cfg.DSN).Msg("database ready")
		return stores{
			invoices: sqlite.NewInvoiceStore(db),
			notes:    sqlite.NewNoteStore(db),
			drafts:   sqlite.NewDraftStore(db),
			health:   db,
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func (a *App) initHTTPServer(cfg *config.Config, st stores, clk ports.Clock, reg *prometheus.Registry) error {
	policy, err := keycase.ParseCollisionPolicy(cfg.Casing.Collisions)
	if err != nil {
		return err
	}
	a.Casing, err = apihttp.NewCasingMiddleware(apihttp.CasingConfig{
		Wire:          cfg.Casing.Wire,
		Header:        cfg.Casing.Header,
		DefaultClient: cfg.Casing.ClientDefault,
		MaxDepth:      cfg.Casing.MaxDepth,
		Collisions:    policy,
	}, a.Logger, a.Metrics)
	if err != nil {
		return err
	}

	routerCfg := apihttp.RouterConfig{
		Invoices:       apihttp.NewInvoiceHandler(a.Invoices, clk, a.Logger, a.Metrics),
		Drafts:         apihttp.NewDraftHandler(a.Drafts, clk, a.Logger, a.Metrics),
		Health:         apihttp.NewHealthHandler(st.health),
		Casing:         a.Casing,
		Metrics:        a.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		RequestTimeout: cfg.Server.RequestTimeout,
		EnableOpenAPI:  cfg.Server.OpenAPI,
	}
	if a.Metrics != nil && reg != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	a.Router = apihttp.NewRouter(routerCfg, a.Logger)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return nil
}

// watchConfig applies reloadable settings on every successful reload.
func (a *App) watchConfig(hotReload bool) {
	a.Config.OnChange(func(cfg *config.Config) {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
		}
		if err := a.Casing.SetDefaultClientCase(cfg.Casing.ClientDefault); err != nil {
			a.Logger.Warn().Err(err).Msg("keeping previous default client casing")
		}
		a.Invoices.UpdateConfig(invoiceConfig(cfg))

		if a.Metrics != nil {
			a.Metrics.ConfigReloads.Inc()
			a.Metrics.ConfigLastReload.SetToCurrentTime()
		}
	})
	a.Config.OnReloadError(func(error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloadErrors.Inc()
		}
	})

	if !hotReload {
		return
	}
	if a.Config.Path() != "" {
		if err := a.Config.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
	}
	a.Config.WatchSignals()
}

// Run starts the HTTP server and blocks until SIGINT, SIGTERM or a server error.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown stops the server and releases resources. Safe to call twice.
func (a *App) Shutdown() error {
	var err error
	a.stopOnce.Do(func() {
		timeout := a.Config.Get().Server.ShutdownTimeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		a.Config.Stop()

		if a.HTTPServer != nil {
			if serr := a.HTTPServer.Shutdown(ctx); serr != nil {
				a.Logger.Error().Err(serr).Msg("http server shutdown error")
				err = serr
			}
		}

		a.closeDB()
		a.Logger.Info().Msg("shutdown complete")
	})
	return err
}

func (a *App) closeDB() {
	if a.DB == nil {
		return
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("database close error")
	}
	a.DB = nil
}

func invoiceConfig(cfg *config.Config) app.InvoiceConfig {
	return app.InvoiceConfig{
		NumberPrefix:   cfg.Invoice.NumberPrefix,
		Currency:       cfg.Invoice.Currency,
		DefaultVATRate: cfg.Invoice.VATRate(),
		DueDays:        cfg.Invoice.DueDays,
	}
}

func setupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
