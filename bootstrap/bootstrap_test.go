package bootstrap_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/facturo/adapters/clock"
	apihttp "github.com/artpar/facturo/adapters/http"
	"github.com/artpar/facturo/bootstrap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var baseTime = time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func newApp(t *testing.T, configYAML string) (*bootstrap.App, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facturo.yaml")
	writeConfig(t, path, configYAML)

	a, err := bootstrap.New(bootstrap.Options{
		ConfigPath: path,
		Registry:   prometheus.NewRegistry(),
		Clock:      clock.NewFake(baseTime),
		LogOutput:  io.Discard,
	})
	if err != nil {
		t.Fatalf("bootstrap.New error: %v", err)
	}
	t.Cleanup(func() { a.Shutdown() })
	return a, path
}

func newClient(t *testing.T, a *bootstrap.App) *apihttp.Client {
	t.Helper()
	srv := httptest.NewServer(a.Router)
	t.Cleanup(srv.Close)

	c, err := apihttp.NewClient(apihttp.ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return c
}

func sample() apihttp.NewInvoice {
	return apihttp.NewInvoice{
		Client: apihttp.InvoiceClient{Name: "Atelier Nord"},
		Items:  []apihttp.InvoiceLine{{Description: "Reliure", Quantity: 3, UnitPrice: 1500}},
	}
}

const memoryConfig = `
database:
  driver: memory
logging:
  level: warn
metrics:
  enabled: true
invoice:
  number_prefix: FAC
`

func TestBootstrap_MemoryDriver(t *testing.T) {
	a, _ := newApp(t, memoryConfig)

	if a.DB != nil {
		t.Error("memory driver should not open a database")
	}
	if a.HTTPServer == nil || a.HTTPServer.Addr != "0.0.0.0:8080" {
		t.Errorf("HTTPServer = %+v", a.HTTPServer)
	}

	c := newClient(t, a)
	ctx := context.Background()
	if err := c.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck error: %v", err)
	}
	inv, err := c.CreateInvoice(ctx, sample())
	if err != nil {
		t.Fatalf("CreateInvoice error: %v", err)
	}
	if inv.Number != "FAC-2026-0001" || inv.Total != 5400 {
		t.Errorf("invoice = %s total %d", inv.Number, inv.Total)
	}
	if !strings.HasPrefix(inv.ID, "inv_") || len(inv.ID) != len("inv_")+36 {
		t.Errorf("ID = %s, want inv_ and a UUID", inv.ID)
	}
	if got := testutil.ToFloat64(a.Metrics.InvoicesCreated); got != 1 {
		t.Errorf("invoices created = %v, want 1", got)
	}
}

func TestBootstrap_Reload(t *testing.T) {
	a, path := newApp(t, memoryConfig)
	c := newClient(t, a)
	ctx := context.Background()

	writeConfig(t, path, `
database:
  driver: memory
logging:
  level: warn
metrics:
  enabled: true
casing:
  client_default: kebab
invoice:
  number_prefix: AVO
  default_vat_rate: 550
  due_days: 45
`)
	if err := a.Config.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	inv, err := c.CreateInvoice(ctx, sample())
	if err != nil {
		t.Fatalf("CreateInvoice error: %v", err)
	}
	if inv.Number != "AVO-2026-0001" {
		t.Errorf("number = %s, want the reloaded prefix", inv.Number)
	}
	if inv.VAT != 248 {
		t.Errorf("VAT = %d, want 5.5%% of 4500", inv.VAT)
	}
	if inv.DueDate != "2026-11-28" {
		t.Errorf("due date = %s, want 45 days after issue", inv.DueDate)
	}
	if got := a.Casing.DefaultClientCase(); got != "kebab" {
		t.Errorf("default client casing = %s, want kebab", got)
	}
	if got := testutil.ToFloat64(a.Metrics.ConfigReloads); got != 1 {
		t.Errorf("reloads = %v, want 1", got)
	}

	writeConfig(t, path, "invoice:\n  number_prefix: lowercase\n")
	if err := a.Config.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := testutil.ToFloat64(a.Metrics.ConfigReloadErrors); got != 1 {
		t.Errorf("reload errors = %v, want 1", got)
	}
	if got := a.Invoices.Config().NumberPrefix; got != "AVO" {
		t.Errorf("prefix after failed reload = %s, want AVO", got)
	}
}

func TestBootstrap_SQLitePersists(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "facturo.db")
	cfg := "database:\n  driver: sqlite\n  dsn: " + dsn + "\nlogging:\n  level: error\n"

	a, _ := newApp(t, cfg)
	if a.DB == nil {
		t.Fatal("sqlite driver should open a database")
	}
	first, err := newClient(t, a).CreateInvoice(context.Background(), sample())
	if err != nil {
		t.Fatalf("CreateInvoice error: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	b, _ := newApp(t, cfg)
	c := newClient(t, b)
	got, err := c.GetInvoice(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("GetInvoice after restart error: %v", err)
	}
	if got.Number != first.Number || got.Total != first.Total {
		t.Errorf("reloaded %+v, want %+v", got, first)
	}

	second, err := c.CreateInvoice(context.Background(), sample())
	if err != nil {
		t.Fatalf("CreateInvoice error: %v", err)
	}
	if second.Number != "FAC-2026-0002" {
		t.Errorf("number after restart = %s, want FAC-2026-0002", second.Number)
	}
}

func TestBootstrap_MetricsDisabled(t *testing.T) {
	a, _ := newApp(t, "database:\n  driver: memory\nlogging:\n  level: error\n")
	if a.Metrics != nil {
		t.Error("metrics should be disabled by default")
	}

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics = %d, want 404", rec.Code)
	}
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facturo.yaml")
	writeConfig(t, path, "casing:\n  wire: dotted\n")

	if _, err := bootstrap.New(bootstrap.Options{ConfigPath: path, LogOutput: io.Discard}); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestBootstrap_ShutdownTwice(t *testing.T) {
	a, _ := newApp(t, memoryConfig)
	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Errorf("second Shutdown error: %v", err)
	}
}
