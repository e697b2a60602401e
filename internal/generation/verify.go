package generation

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// ResolveAll resolves every path of gen. The first broken chain aborts the
// whole resolution, so callers can act on a complete mapping or not at all.
func (s *Store) ResolveAll(ctx context.Context, gen domain.GenerationID) (map[string]domain.Reference, error) {
	refs, err := s.ListReferences(ctx, gen)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(refs))
	for p := range refs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make(map[string]domain.Reference, len(refs))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		owner, err := s.Resolve(ctx, gen, p)
		if err != nil {
			return nil, err
		}
		out[p] = owner
	}
	return out, nil
}

// Problem is one integrity violation found by Verify.
type Problem struct {
	Generation domain.GenerationID `json:"generation"`
	Path       string              `json:"path,omitempty"`
	Code       string              `json:"code,omitempty"`
	Error      string              `json:"error"`
}

// Report summarizes a store integrity check.
type Report struct {
	Generations   int                   `json:"generations"`
	References    int                   `json:"references"`
	PhysicalFiles int                   `json:"physical_files"`
	Provisional   []domain.GenerationID `json:"provisional,omitempty"`
	Orphans       []string              `json:"orphans,omitempty"`
	Broken        []Problem             `json:"broken,omitempty"`
}

// OK reports whether every reference resolves and no run was left
// unfinished.
func (r *Report) OK() bool {
	return len(r.Broken) == 0 && len(r.Provisional) == 0
}

// Verify resolves every reference of every generation and lists store
// directories the index does not know about. Broken chains are collected,
// not returned as errors.
func (s *Store) Verify(ctx context.Context) (*Report, error) {
	gens, err := s.Generations(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Generations: len(gens)}
	known := make(map[string]bool, len(gens))

	for _, g := range gens {
		known[string(g.ID)] = true
		if !g.IsComplete() {
			report.Provisional = append(report.Provisional, g.ID)
		}

		refs, err := s.ListReferences(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		paths := make([]string, 0, len(refs))
		for p := range refs {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report.References++
			if refs[p].IsSelf(g.ID, p) {
				report.PhysicalFiles++
			}
			if _, err := s.Resolve(ctx, g.ID, p); err != nil {
				if !errors.Is(err, domain.ErrBrokenChain) {
					return nil, err
				}
				report.Broken = append(report.Broken, Problem{Generation: g.ID, Path: p, Code: domain.GetErrorCode(err), Error: err.Error()})
			}
		}
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, domain.ErrAccess.WithDetails(s.root).WithCause(err)
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || known[name] {
			continue
		}
		report.Orphans = append(report.Orphans, name)
	}

	return report, nil
}
