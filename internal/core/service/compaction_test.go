package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

func TestRemoveGeneration_ForwardsToSuccessor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		e.write("a.txt", "alpha", at(g1, -time.Hour))
		e.write("b.txt", "bravo", at(g1, -time.Hour))
		e.run(g1, "")
		e.write("b.txt", "bravo v2", at(g1, 30*time.Minute))
		e.run(g2, "")
		want := e.snapshot(g2)

		res, err := e.compactor.RemoveGeneration(ctx, g1)
		if err != nil {
			t.Fatalf("RemoveGeneration(G1) error = %v", err)
		}
		if res.Successor != g2 || res.Forwarded != 1 || res.Discarded != 1 {
			t.Errorf("result = %+v", res)
		}

		if got := e.resolve(g2, "a.txt"); got != (domain.Reference{Generation: g2, Path: "a.txt"}) {
			t.Errorf("resolve(G2, a.txt) = %v, want physical copy in G2", got)
		}
		if got := e.snapshot(g2); !reflect.DeepEqual(got, want) {
			t.Errorf("G2 bytes after compaction = %v, want %v", got, want)
		}
		if e.exists(g1) {
			t.Error("G1 storage still present")
		}
		if _, err := e.store.Generation(ctx, g1); !errors.Is(err, domain.ErrNoSuchGeneration) {
			t.Errorf("Generation(G1) error = %v", err)
		}
		if got := testutil.ToFloat64(e.metrics.Compactions); got != 1 {
			t.Errorf("compactions_total = %v", got)
		}
	})
}

func TestRemoveGeneration_RetargetsLaterReferrers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		e.write("a.txt", "alpha", at(g1, -time.Hour))
		e.run(g1, "")
		e.run(g2, "")
		e.run(g3, "")

		if _, err := e.compactor.RemoveGeneration(ctx, g1); err != nil {
			t.Fatal(err)
		}
		refs, err := e.store.ListReferences(ctx, g3)
		if err != nil {
			t.Fatal(err)
		}
		if want := (domain.Reference{Generation: g2, Path: "a.txt"}); refs["a.txt"] != want {
			t.Errorf("G3 reference = %v, want %v", refs["a.txt"], want)
		}
		if got := e.bytesOf(g3, "a.txt"); got != "alpha" {
			t.Errorf("G3 a.txt bytes = %q", got)
		}
	})
}

func TestRemoveGeneration_Middle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		e.write("a.txt", "alpha", at(g1, -time.Hour))
		e.write("b.txt", "bravo", at(g1, -time.Hour))
		e.run(g1, "")
		e.write("b.txt", "bravo v2", at(g2, -30*time.Minute))
		e.run(g2, "")
		e.write("c.txt", "charlie", at(g3, -30*time.Minute))
		e.run(g3, "")
		want1, want3 := e.snapshot(g1), e.snapshot(g3)

		if _, err := e.compactor.RemoveGeneration(ctx, g2); err != nil {
			t.Fatal(err)
		}
		if got := e.snapshot(g1); !reflect.DeepEqual(got, want1) {
			t.Errorf("G1 changed: %v", got)
		}
		if got := e.snapshot(g3); !reflect.DeepEqual(got, want3) {
			t.Errorf("G3 bytes = %v, want %v", got, want3)
		}
		if got := e.resolve(g3, "b.txt"); got.Generation != g3 {
			t.Errorf("resolve(G3, b.txt) = %v, want owned by G3", got)
		}
		if got := e.resolve(g3, "a.txt"); got.Generation != g1 {
			t.Errorf("resolve(G3, a.txt) = %v, want still owned by G1", got)
		}
	})
}

func TestRemoveGeneration_SkippedReferrer(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		for _, id := range []domain.GenerationID{g1, g2, g3} {
			if _, err := e.store.Create(ctx, id, nil, "r", domain.ModeIterative); err != nil {
				t.Fatal(err)
			}
		}
		src := e.worldDir + "/x.txt"
		e.write("x.txt", "xray", at(g1, 0))
		if _, err := e.store.Import(ctx, g1, "x.txt", src); err != nil {
			t.Fatal(err)
		}
		// G2 does not track x.txt; G3 links straight to G1.
		if err := e.store.PutReference(ctx, g3, "x.txt", g1, "x.txt"); err != nil {
			t.Fatal(err)
		}
		for _, id := range []domain.GenerationID{g1, g2, g3} {
			gen, err := e.store.Generation(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			if err := e.store.Seal(ctx, gen); err != nil {
				t.Fatal(err)
			}
		}

		if _, err := e.compactor.RemoveGeneration(ctx, g1); err != nil {
			t.Fatal(err)
		}
		if got := e.resolve(g3, "x.txt"); got != (domain.Reference{Generation: g3, Path: "x.txt"}) {
			t.Errorf("resolve(G3, x.txt) = %v", got)
		}
		if got := e.bytesOf(g3, "x.txt"); got != "xray" {
			t.Errorf("G3 x.txt bytes = %q", got)
		}
	})
}

func TestRemoveGeneration_Refusals(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		e.write("a.txt", "alpha", at(g1, -time.Hour))
		e.run(g1, "")
		e.run(g2, "")
		before1, before2 := e.snapshot(g1), e.snapshot(g2)

		if _, err := e.compactor.RemoveGeneration(ctx, g2); !errors.Is(err, domain.ErrNoNextGeneration) {
			t.Errorf("RemoveGeneration(newest) error = %v, want ErrNoNextGeneration", err)
		}
		if _, err := e.compactor.RemoveGeneration(ctx, g4); !errors.Is(err, domain.ErrNoSuchGeneration) {
			t.Errorf("RemoveGeneration(unknown) error = %v, want ErrNoSuchGeneration", err)
		}
		if _, err := e.store.Create(ctx, g3, nil, "crashed", domain.ModeIterative); err != nil {
			t.Fatal(err)
		}
		if _, err := e.compactor.RemoveGeneration(ctx, g3); !errors.Is(err, domain.ErrProvisionalGeneration) {
			t.Errorf("RemoveGeneration(provisional) error = %v, want ErrProvisionalGeneration", err)
		}

		if got := e.snapshot(g1); !reflect.DeepEqual(got, before1) {
			t.Errorf("G1 mutated: %v", got)
		}
		if got := e.snapshot(g2); !reflect.DeepEqual(got, before2) {
			t.Errorf("G2 mutated: %v", got)
		}
		if !e.exists(g1) || !e.exists(g2) {
			t.Error("refused removal deleted storage")
		}
	})
}

func TestRemoveRange(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		e.write("a.txt", "alpha", at(g1, -time.Hour))
		e.run(g1, "")
		e.write("b.txt", "bravo", at(g2, -time.Minute))
		e.run(g2, "")
		e.run(g3, "")
		want := e.snapshot(g3)

		results, err := e.compactor.RemoveRange(ctx, g1, g2)
		if err != nil {
			t.Fatalf("RemoveRange() error = %v", err)
		}
		if len(results) != 2 || results[0].Generation != g1 || results[1].Generation != g2 {
			t.Errorf("RemoveRange() results = %+v", results)
		}
		gens, _ := e.store.Generations(ctx)
		if len(gens) != 1 || gens[0].ID != g3 {
			t.Errorf("remaining generations = %v", gens)
		}
		if got := e.snapshot(g3); !reflect.DeepEqual(got, want) {
			t.Errorf("G3 bytes = %v, want %v", got, want)
		}
	})
}

func TestRemoveRange_Invalid(t *testing.T) {
	e := newEnv(t, "badger")
	ctx := context.Background()
	if _, err := e.compactor.RemoveRange(ctx, g2, g1); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("reversed range error = %v", err)
	}
	if _, err := e.compactor.RemoveRange(ctx, g1, g2); !errors.Is(err, domain.ErrNoSuchGeneration) {
		t.Errorf("empty range error = %v", err)
	}

	e.write("a.txt", "alpha", at(g1, -time.Hour))
	e.run(g1, "")
	e.run(g2, "")
	results, err := e.compactor.RemoveRange(ctx, g1, g2)
	if !errors.Is(err, domain.ErrNoNextGeneration) {
		t.Errorf("range through newest error = %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results before failure = %d, want 1", len(results))
	}
}

func TestDiscardAndCleanup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		e.write("a.txt", "alpha", at(g1, -time.Hour))
		e.run(g1, "")
		if err := e.compactor.Discard(ctx, g1); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("Discard(complete) error = %v", err)
		}

		if _, err := e.store.Create(ctx, g2, []string{"a.txt"}, "crashed", domain.ModeIterative); err != nil {
			t.Fatal(err)
		}
		if _, err := e.store.CopyIn(ctx, g2, "a.txt", e.worldDir+"/a.txt"); err != nil {
			t.Fatal(err)
		}
		if err := e.compactor.Discard(ctx, g2); err != nil {
			t.Fatalf("Discard(provisional) error = %v", err)
		}
		if e.exists(g2) {
			t.Error("discarded generation still on disk")
		}

		discarded, err := e.compactor.Cleanup(ctx)
		if err != nil || len(discarded) != 0 {
			t.Errorf("Cleanup() on clean store = %v, %v", discarded, err)
		}
	})
}

func TestPrune(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *env) {
		ctx := context.Background()
		e.write("a.txt", "alpha", at(g1, -time.Hour))
		for _, id := range []domain.GenerationID{g1, g2, g3, g4} {
			e.run(id, "")
		}

		if _, err := e.compactor.Prune(ctx, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("Prune(0) error = %v", err)
		}
		results, err := e.compactor.Prune(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 {
			t.Errorf("Prune(2) removed %d", len(results))
		}
		gens, _ := e.store.Generations(ctx)
		if len(gens) != 2 || gens[0].ID != g3 {
			t.Errorf("remaining generations = %v", gens)
		}
		if got := e.bytesOf(g4, "a.txt"); got != "alpha" {
			t.Errorf("G4 a.txt bytes = %q", got)
		}

		results, err = e.compactor.Prune(ctx, 5)
		if err != nil || results != nil {
			t.Errorf("Prune(5) = %v, %v", results, err)
		}
	})
}
