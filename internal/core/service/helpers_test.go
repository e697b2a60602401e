package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/generation"
	"github.com/yndnr/worldsnap/internal/storage"
	"github.com/yndnr/worldsnap/internal/telemetry/metric"
	"github.com/yndnr/worldsnap/internal/world"
)

const (
	g1 = domain.GenerationID("2024-01-01T10-00")
	g2 = domain.GenerationID("2024-01-01T11-00")
	g3 = domain.GenerationID("2024-01-01T12-00")
	g4 = domain.GenerationID("2024-01-01T13-00")
)

var backends = []string{storage.BackendBadger, storage.BackendSQLite, storage.BackendFile}

// env is a world directory, a store and the three services over them.
// Labels are interpreted in UTC.
type env struct {
	t         *testing.T
	worldDir  string
	store     *generation.Store
	metrics   *metric.Registry
	backup    *BackupService
	restore   *RestoreService
	compactor *CompactionService
}

func newEnv(t *testing.T, backend string) *env {
	t.Helper()
	base := t.TempDir()
	worldDir := filepath.Join(base, "world")
	storeDir := filepath.Join(base, "backups")
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := storage.DefaultConfig(generation.DefaultIndexDir(storeDir))
	cfg.Backend = backend
	cfg.GCInterval = time.Hour
	idx, err := generation.OpenIndex(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("OpenIndex() error = %v", err)
	}
	store, err := generation.NewStore(storeDir, idx)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	catalog, err := world.NewCatalog(worldDir)
	if err != nil {
		t.Fatal(err)
	}
	m := metric.NewRegistry()
	return &env{
		t:         t,
		worldDir:  worldDir,
		store:     store,
		metrics:   m,
		backup:    NewBackupService(store, catalog, WithLocation(time.UTC), WithWorkers(3), WithBackupMetrics(m)),
		restore:   NewRestoreService(store, worldDir, nil, m),
		compactor: NewCompactionService(store, nil, m),
	}
}

// forEachBackend runs fn against a fresh environment per index backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, e *env)) {
	for _, b := range backends {
		t.Run(b, func(t *testing.T) {
			fn(t, newEnv(t, b))
		})
	}
}

// at returns the instant of label shifted by d.
func at(label domain.GenerationID, d time.Duration) time.Time {
	ts, err := label.Time(time.UTC)
	if err != nil {
		panic(err)
	}
	return ts.Add(d)
}

// write creates or replaces a world file and sets its modification time.
func (e *env) write(rel, content string, mtime time.Time) {
	e.t.Helper()
	p := filepath.Join(e.worldDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		e.t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		e.t.Fatal(err)
	}
	if err := os.Chtimes(p, mtime, mtime); err != nil {
		e.t.Fatal(err)
	}
}

func (e *env) remove(rel string) {
	e.t.Helper()
	if err := os.Remove(filepath.Join(e.worldDir, filepath.FromSlash(rel))); err != nil {
		e.t.Fatal(err)
	}
}

func (e *env) run(label domain.GenerationID, mode domain.BackupMode) *BackupResult {
	e.t.Helper()
	res, err := e.backup.Run(context.Background(), BackupRequest{Label: label, Mode: mode})
	if err != nil {
		e.t.Fatalf("Run(%s) error = %v", label, err)
	}
	return res
}

func (e *env) resolve(gen domain.GenerationID, p string) domain.Reference {
	e.t.Helper()
	ref, err := e.store.Resolve(context.Background(), gen, p)
	if err != nil {
		e.t.Fatalf("Resolve(%s, %s) error = %v", gen, p, err)
	}
	return ref
}

// bytesOf resolves path in gen and reads the physical copy.
func (e *env) bytesOf(gen domain.GenerationID, p string) string {
	e.t.Helper()
	data, err := os.ReadFile(e.store.PhysicalPath(e.resolve(gen, p)))
	if err != nil {
		e.t.Fatal(err)
	}
	return string(data)
}

// snapshot maps every path of gen to its resolved bytes.
func (e *env) snapshot(gen domain.GenerationID) map[string]string {
	e.t.Helper()
	refs, err := e.store.ListReferences(context.Background(), gen)
	if err != nil {
		e.t.Fatal(err)
	}
	out := make(map[string]string, len(refs))
	for p := range refs {
		out[p] = e.bytesOf(gen, p)
	}
	return out
}

// worldContents maps every world file to its contents.
func (e *env) worldContents() map[string]string {
	e.t.Helper()
	paths, err := world.ListFiles(e.worldDir)
	if err != nil {
		e.t.Fatal(err)
	}
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(e.worldDir, filepath.FromSlash(p)))
		if err != nil {
			e.t.Fatal(err)
		}
		out[p] = string(data)
	}
	return out
}

func (e *env) exists(gen domain.GenerationID) bool {
	_, err := os.Stat(e.store.Dir(gen))
	return err == nil
}
