// Package indextest provides a conformance suite for storage.Index
// implementations.
package indextest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/storage"
)

// Opener opens an index rooted at dir. Calling it twice with the same dir
// must reopen the same data.
type Opener func(t *testing.T, dir string) storage.Index

// Run exercises every Index operation against the backend produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, open) })
	t.Run("DuplicateGeneration", func(t *testing.T) { testDuplicate(t, open) })
	t.Run("ListGenerationsSorted", func(t *testing.T) { testListSorted(t, open) })
	t.Run("UpdateGeneration", func(t *testing.T) { testUpdate(t, open) })
	t.Run("References", func(t *testing.T) { testRefs(t, open) })
	t.Run("UnknownGeneration", func(t *testing.T) { testUnknown(t, open) })
	t.Run("DropGeneration", func(t *testing.T) { testDrop(t, open) })
	t.Run("Reopen", func(t *testing.T) { testReopen(t, open) })
	t.Run("ConcurrentPutRef", func(t *testing.T) { testConcurrentPut(t, open) })
}

// Gen builds provisional generation metadata for tests.
func Gen(id string) *domain.Generation {
	return &domain.Generation{
		ID:        domain.GenerationID(id),
		State:     domain.StateProvisional,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RunID:     "01hzz0000000000000000000aa",
	}
}

func mustCreate(t *testing.T, idx storage.Index, id string) {
	t.Helper()
	if err := idx.CreateGeneration(context.Background(), Gen(id)); err != nil {
		t.Fatalf("CreateGeneration(%s) error = %v", id, err)
	}
}

func testCreateAndGet(t *testing.T, open Opener) {
	idx := open(t, t.TempDir())
	ctx := context.Background()
	mustCreate(t, idx, "2024-01-01T00-00")

	got, err := idx.GetGeneration(ctx, "2024-01-01T00-00")
	if err != nil {
		t.Fatalf("GetGeneration() error = %v", err)
	}
	if got.ID != "2024-01-01T00-00" || got.State != domain.StateProvisional {
		t.Errorf("GetGeneration() = %+v", got)
	}
	if got.RunID != "01hzz0000000000000000000aa" {
		t.Errorf("RunID = %q", got.RunID)
	}
	if !got.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}
}

func testDuplicate(t *testing.T, open Opener) {
	idx := open(t, t.TempDir())
	mustCreate(t, idx, "2024-01-01T00-00")

	err := idx.CreateGeneration(context.Background(), Gen("2024-01-01T00-00"))
	if !errors.Is(err, domain.ErrDuplicateGeneration) {
		t.Errorf("CreateGeneration() duplicate error = %v, want ErrDuplicateGeneration", err)
	}
}

func testListSorted(t *testing.T, open Opener) {
	idx := open(t, t.TempDir())
	for _, id := range []string{"2024-03-01T00-00", "2023-12-31T23-59", "2024-01-15T08-30"} {
		mustCreate(t, idx, id)
	}

	gens, err := idx.ListGenerations(context.Background())
	if err != nil {
		t.Fatalf("ListGenerations() error = %v", err)
	}
	want := []domain.GenerationID{"2023-12-31T23-59", "2024-01-15T08-30", "2024-03-01T00-00"}
	if len(gens) != len(want) {
		t.Fatalf("ListGenerations() len = %d, want %d", len(gens), len(want))
	}
	for i, g := range gens {
		if g.ID != want[i] {
			t.Errorf("gens[%d] = %s, want %s", i, g.ID, want[i])
		}
	}
}

func testUpdate(t *testing.T, open Opener) {
	idx := open(t, t.TempDir())
	ctx := context.Background()
	mustCreate(t, idx, "2024-01-01T00-00")

	gen := Gen("2024-01-01T00-00")
	gen.State = domain.StateComplete
	gen.Files, gen.Copied, gen.Referenced, gen.Fallbacks, gen.BytesCopied = 3, 1, 2, 0, 42
	if err := idx.UpdateGeneration(ctx, gen); err != nil {
		t.Fatalf("UpdateGeneration() error = %v", err)
	}
	got, err := idx.GetGeneration(ctx, gen.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != domain.StateComplete || got.Files != 3 || got.Referenced != 2 || got.BytesCopied != 42 {
		t.Errorf("GetGeneration() after update = %+v", got)
	}

	err = idx.UpdateGeneration(ctx, Gen("2030-01-01T00-00"))
	if !errors.Is(err, domain.ErrNoSuchGeneration) {
		t.Errorf("UpdateGeneration(unknown) error = %v, want ErrNoSuchGeneration", err)
	}
}

func testRefs(t *testing.T, open Opener) {
	idx := open(t, t.TempDir())
	ctx := context.Background()
	mustCreate(t, idx, "2024-01-01T00-00")
	mustCreate(t, idx, "2024-01-02T00-00")

	g1 := domain.GenerationID("2024-01-01T00-00")
	g2 := domain.GenerationID("2024-01-02T00-00")
	self := domain.Reference{Generation: g1, Path: "dir/a.txt"}
	if err := idx.PutRef(ctx, g1, "dir/a.txt", self); err != nil {
		t.Fatalf("PutRef() error = %v", err)
	}
	if err := idx.PutRef(ctx, g2, "dir/a.txt", self); err != nil {
		t.Fatalf("PutRef() error = %v", err)
	}
	if err := idx.PutRef(ctx, g2, "b.txt", domain.Reference{Generation: g2, Path: "b.txt"}); err != nil {
		t.Fatalf("PutRef() error = %v", err)
	}

	got, err := idx.GetRef(ctx, g2, "dir/a.txt")
	if err != nil {
		t.Fatalf("GetRef() error = %v", err)
	}
	if got != self {
		t.Errorf("GetRef() = %v, want %v", got, self)
	}

	if _, err := idx.GetRef(ctx, g1, "b.txt"); !errors.Is(err, storage.ErrRefNotFound) {
		t.Errorf("GetRef(untracked) error = %v, want ErrRefNotFound", err)
	}

	refs, err := idx.ListRefs(ctx, g2)
	if err != nil {
		t.Fatalf("ListRefs() error = %v", err)
	}
	if len(refs) != 2 || refs["dir/a.txt"] != self || refs["b.txt"].Generation != g2 {
		t.Errorf("ListRefs() = %v", refs)
	}

	// Overwrite retargets the reference.
	moved := domain.Reference{Generation: g2, Path: "dir/a.txt"}
	if err := idx.PutRef(ctx, g2, "dir/a.txt", moved); err != nil {
		t.Fatal(err)
	}
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	got, _ = idx.GetRef(ctx, g2, "dir/a.txt")
	if got != moved {
		t.Errorf("GetRef() after overwrite = %v, want %v", got, moved)
	}

	empty, err := idx.ListRefs(ctx, g1)
	if err != nil || len(empty) != 1 {
		t.Errorf("ListRefs(g1) = %v, %v", empty, err)
	}
}

func testUnknown(t *testing.T, open Opener) {
	idx := open(t, t.TempDir())
	ctx := context.Background()
	unknown := domain.GenerationID("2099-01-01T00-00")

	if _, err := idx.GetGeneration(ctx, unknown); !errors.Is(err, domain.ErrNoSuchGeneration) {
		t.Errorf("GetGeneration() error = %v", err)
	}
	if _, err := idx.ListRefs(ctx, unknown); !errors.Is(err, domain.ErrNoSuchGeneration) {
		t.Errorf("ListRefs() error = %v", err)
	}
	if _, err := idx.GetRef(ctx, unknown, "a"); !errors.Is(err, domain.ErrNoSuchGeneration) {
		t.Errorf("GetRef() error = %v", err)
	}
	err := idx.PutRef(ctx, unknown, "a", domain.Reference{Generation: unknown, Path: "a"})
	if !errors.Is(err, domain.ErrNoSuchGeneration) {
		t.Errorf("PutRef() error = %v", err)
	}
	if err := idx.DropGeneration(ctx, unknown); err != nil {
		t.Errorf("DropGeneration(unknown) error = %v", err)
	}
	gens, err := idx.ListGenerations(ctx)
	if err != nil || len(gens) != 0 {
		t.Errorf("ListGenerations() = %v, %v", gens, err)
	}
}

func testDrop(t *testing.T, open Opener) {
	idx := open(t, t.TempDir())
	ctx := context.Background()
	mustCreate(t, idx, "2024-01-01T00-00")
	mustCreate(t, idx, "2024-01-02T00-00")
	g1 := domain.GenerationID("2024-01-01T00-00")
	g2 := domain.GenerationID("2024-01-02T00-00")
	for i := 0; i < 10; i++ {
		p := fmt.Sprintf("f%02d", i)
		if err := idx.PutRef(ctx, g1, p, domain.Reference{Generation: g1, Path: p}); err != nil {
			t.Fatal(err)
		}
		if err := idx.PutRef(ctx, g2, p, domain.Reference{Generation: g1, Path: p}); err != nil {
			t.Fatal(err)
		}
	}

	if err := idx.DropGeneration(ctx, g1); err != nil {
		t.Fatalf("DropGeneration() error = %v", err)
	}
	if _, err := idx.GetGeneration(ctx, g1); !errors.Is(err, domain.ErrNoSuchGeneration) {
		t.Errorf("GetGeneration(dropped) error = %v", err)
	}
	refs, err := idx.ListRefs(ctx, g2)
	if err != nil || len(refs) != 10 {
		t.Errorf("ListRefs(g2) after drop = %d refs, %v", len(refs), err)
	}

	// Recreating a dropped id starts with an empty table.
	mustCreate(t, idx, "2024-01-01T00-00")
	refs, err = idx.ListRefs(ctx, g1)
	if err != nil || len(refs) != 0 {
		t.Errorf("ListRefs(recreated) = %v, %v", refs, err)
	}
}

func testReopen(t *testing.T, open Opener) {
	dir := t.TempDir()
	ctx := context.Background()
	g := domain.GenerationID("2024-05-05T05-05")

	idx := open(t, dir)
	mustCreate(t, idx, string(g))
	if err := idx.PutRef(ctx, g, "a/b.txt", domain.Reference{Generation: g, Path: "a/b.txt"}); err != nil {
		t.Fatal(err)
	}
	meta := Gen(string(g))
	meta.State = domain.StateComplete
	if err := idx.UpdateGeneration(ctx, meta); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	idx = open(t, dir)
	got, err := idx.GetGeneration(ctx, g)
	if err != nil {
		t.Fatalf("GetGeneration() after reopen error = %v", err)
	}
	if got.State != domain.StateComplete {
		t.Errorf("State after reopen = %s", got.State)
	}
	ref, err := idx.GetRef(ctx, g, "a/b.txt")
	if err != nil || ref.Path != "a/b.txt" {
		t.Errorf("GetRef() after reopen = %v, %v", ref, err)
	}
}

func testConcurrentPut(t *testing.T, open Opener) {
	idx := open(t, t.TempDir())
	ctx := context.Background()
	g := domain.GenerationID("2024-01-01T00-00")
	mustCreate(t, idx, string(g))

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := fmt.Sprintf("dir%d/file%03d", i%7, i)
			errs <- idx.PutRef(ctx, g, p, domain.Reference{Generation: g, Path: p})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("PutRef() error = %v", err)
		}
	}

	refs, err := idx.ListRefs(ctx, g)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 100 {
		t.Errorf("ListRefs() len = %d, want 100", len(refs))
	}
}
