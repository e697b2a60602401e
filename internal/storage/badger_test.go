package storage_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/worldsnap/internal/storage"
	"github.com/yndnr/worldsnap/internal/storage/indextest"
)

func openBadger(t *testing.T, dir string) storage.Index {
	t.Helper()
	cfg := storage.DefaultConfig(dir)
	cfg.GCInterval = time.Hour // Disable auto GC for tests

	idx, err := storage.NewBadgerIndex(cfg, slog.Default())
	if err != nil {
		t.Fatalf("NewBadgerIndex() error = %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestBadgerIndex_Conformance(t *testing.T) {
	indextest.Run(t, openBadger)
}

func TestBadgerIndex_RequiresDir(t *testing.T) {
	if _, err := storage.NewBadgerIndex(storage.Config{}, nil); err == nil {
		t.Error("NewBadgerIndex() without dir should fail")
	}
}

func TestBadgerIndex_GC(t *testing.T) {
	idx := openBadger(t, t.TempDir()).(*storage.BadgerIndex)
	if _, err := idx.GC(context.Background()); err != nil {
		t.Errorf("GC() error = %v", err)
	}
}

func TestBadgerIndex_Metrics(t *testing.T) {
	idx := openBadger(t, t.TempDir()).(*storage.BadgerIndex)
	reg := prometheus.NewRegistry()
	if err := idx.RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics() error = %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 3 {
		t.Errorf("Gather() returned %d families, want 3", len(families))
	}
}

func TestBadgerIndex_Closed(t *testing.T) {
	idx := openBadger(t, t.TempDir())
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.ListGenerations(context.Background()); err != storage.ErrClosed {
		t.Errorf("ListGenerations() after Close error = %v, want ErrClosed", err)
	}
	// Close is idempotent.
	if err := idx.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*storage.Config)
		wantErr bool
	}{
		{"default", func(*storage.Config) {}, false},
		{"sqlite", func(c *storage.Config) { c.Backend = storage.BackendSQLite }, false},
		{"file", func(c *storage.Config) { c.Backend = storage.BackendFile }, false},
		{"unknown backend", func(c *storage.Config) { c.Backend = "bolt" }, true},
		{"empty dir", func(c *storage.Config) { c.Dir = "" }, true},
		{"bad threshold", func(c *storage.Config) { c.GCThreshold = 1.5 }, true},
		{"zero interval", func(c *storage.Config) { c.GCInterval = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := storage.DefaultConfig("/tmp/index")
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
