package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/storage"
)

type entry struct {
	gen   *domain.Generation
	refs  map[string]domain.Reference
	dirty bool
}

// Index keeps every manifest in memory and writes a generation's file when
// its metadata changes, on Sync and on Close. Reference writes between those
// points are buffered.
type Index struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	gens   map[domain.GenerationID]*entry
	closed bool
}

var _ storage.Index = (*Index)(nil)

// Open loads every manifest in dir, creating dir if needed. A corrupted
// manifest fails the open.
func Open(dir string, logger *slog.Logger) (*Index, error) {
	if dir == "" {
		return nil, fmt.Errorf("manifest: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, domain.ErrStorage.WithDetails("manifest: create dir").WithCause(err)
	}

	idx := &Index{
		dir:    dir,
		logger: logger,
		gens:   make(map[domain.GenerationID]*entry),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("manifest: read dir").WithCause(err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		gen, refs, err := readFile(filepath.Join(dir, name))
		if err != nil {
			return nil, domain.ErrStorage.WithDetails(name).WithCause(err)
		}
		if string(gen.ID)+fileExtension != name {
			return nil, domain.ErrStorage.WithDetails(fmt.Sprintf("%s holds generation %s", name, gen.ID))
		}
		idx.gens[gen.ID] = &entry{gen: gen, refs: refs}
	}

	logger.Debug("manifest index opened", "dir", dir, "generations", len(idx.gens))
	return idx, nil
}

func (x *Index) path(id domain.GenerationID) string {
	return filepath.Join(x.dir, string(id)+fileExtension)
}

func (x *Index) flush(e *entry) error {
	if err := writeFile(x.path(e.gen.ID), e.gen, e.refs); err != nil {
		return domain.ErrStorage.WithDetails(string(e.gen.ID)).WithCause(err)
	}
	e.dirty = false
	return nil
}

// CreateGeneration registers a new generation and writes its manifest.
func (x *Index) CreateGeneration(ctx context.Context, gen *domain.Generation) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return storage.ErrClosed
	}
	if _, ok := x.gens[gen.ID]; ok {
		return domain.ErrDuplicateGeneration.WithDetails(string(gen.ID))
	}
	g := *gen
	e := &entry{gen: &g, refs: make(map[string]domain.Reference)}
	if err := x.flush(e); err != nil {
		return err
	}
	x.gens[gen.ID] = e
	return nil
}

// UpdateGeneration replaces generation metadata and rewrites its manifest,
// including any buffered references.
func (x *Index) UpdateGeneration(ctx context.Context, gen *domain.Generation) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return storage.ErrClosed
	}
	e, ok := x.gens[gen.ID]
	if !ok {
		return domain.ErrNoSuchGeneration.WithDetails(string(gen.ID))
	}
	prev := e.gen
	g := *gen
	e.gen = &g
	if err := x.flush(e); err != nil {
		e.gen = prev
		return err
	}
	return nil
}

// GetGeneration returns a copy of the generation metadata.
func (x *Index) GetGeneration(ctx context.Context, id domain.GenerationID) (*domain.Generation, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, storage.ErrClosed
	}
	e, ok := x.gens[id]
	if !ok {
		return nil, domain.ErrNoSuchGeneration.WithDetails(string(id))
	}
	g := *e.gen
	return &g, nil
}

// ListGenerations returns all generations in ascending id order.
func (x *Index) ListGenerations(ctx context.Context) ([]*domain.Generation, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, storage.ErrClosed
	}
	gens := make([]*domain.Generation, 0, len(x.gens))
	for _, e := range x.gens {
		g := *e.gen
		gens = append(gens, &g)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].ID < gens[j].ID })
	return gens, nil
}

// DropGeneration removes the manifest file and forgets the generation.
func (x *Index) DropGeneration(ctx context.Context, id domain.GenerationID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return storage.ErrClosed
	}
	if err := os.Remove(x.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.ErrStorage.WithDetails(string(id)).WithCause(err)
	}
	delete(x.gens, id)
	return nil
}

// PutRef buffers a reference write.
func (x *Index) PutRef(ctx context.Context, gen domain.GenerationID, path string, ref domain.Reference) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return storage.ErrClosed
	}
	e, ok := x.gens[gen]
	if !ok {
		return domain.ErrNoSuchGeneration.WithDetails(string(gen))
	}
	e.refs[path] = ref
	e.dirty = true
	return nil
}

// GetRef returns the reference for path in gen.
func (x *Index) GetRef(ctx context.Context, gen domain.GenerationID, path string) (domain.Reference, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return domain.Reference{}, storage.ErrClosed
	}
	e, ok := x.gens[gen]
	if !ok {
		return domain.Reference{}, domain.ErrNoSuchGeneration.WithDetails(string(gen))
	}
	ref, ok := e.refs[path]
	if !ok {
		return domain.Reference{}, storage.ErrRefNotFound
	}
	return ref, nil
}

// ListRefs returns a copy of the reference table of gen.
func (x *Index) ListRefs(ctx context.Context, gen domain.GenerationID) (map[string]domain.Reference, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, storage.ErrClosed
	}
	e, ok := x.gens[gen]
	if !ok {
		return nil, domain.ErrNoSuchGeneration.WithDetails(string(gen))
	}
	refs := make(map[string]domain.Reference, len(e.refs))
	for p, r := range e.refs {
		refs[p] = r
	}
	return refs, nil
}

// Sync writes every manifest with buffered references.
func (x *Index) Sync(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return storage.ErrClosed
	}
	return x.syncLocked()
}

func (x *Index) syncLocked() error {
	var errs []error
	for _, e := range x.gens {
		if !e.dirty {
			continue
		}
		if err := x.flush(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes buffered references and releases the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	err := x.syncLocked()
	x.closed = true
	return err
}
