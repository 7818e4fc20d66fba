package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dvloznov/customer-insights/internal/config"
	"github.com/rs/zerolog"
)

func TestNew_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "customers.db")
	cfg.UploadDir = filepath.Join(dir, "uploads")
	cfg.Geocoding.Enabled = false

	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.Processor == nil || a.Storage != nil {
		t.Errorf("unexpected wiring: processor=%v storage=%v", a.Processor, a.Storage)
	}
	if a.UploadLog != a.Store {
		t.Error("expected the store to be the upload log sink by default")
	}

	// Migrations ran: the change log is queryable.
	if n, err := a.Store.ChangeCount(context.Background()); err != nil || n != 0 {
		t.Errorf("ChangeCount = %d, %v", n, err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "oracle"

	if _, err := New(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	if _, err := OpenStore(context.Background(), config.Store{Driver: "mysql"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
