package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/storage"
	"github.com/yndnr/worldsnap/internal/world"
)

// Store is the generation store rooted at a backup directory.
type Store struct {
	root   string
	index  storage.Index
	copier *world.Copier
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCopier sets the copier used for imports and adoptions.
func WithCopier(c *world.Copier) Option {
	return func(s *Store) {
		s.copier = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock sets the time source for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a store over an opened index. The store owns the index.
func NewStore(root string, idx storage.Index, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, domain.ErrAccess.WithDetails(root).WithCause(err)
	}
	s := &Store{
		root:   root,
		index:  idx,
		copier: world.NewCopier(0),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Index returns the underlying reference index.
func (s *Store) Index() storage.Index {
	return s.index
}

// Dir returns the storage directory of a generation.
func (s *Store) Dir(id domain.GenerationID) string {
	return filepath.Join(s.root, string(id))
}

// PhysicalPath returns the file holding the bytes a self reference names.
func (s *Store) PhysicalPath(ref domain.Reference) string {
	return filepath.Join(s.root, string(ref.Generation), filepath.FromSlash(ref.Path))
}

// MostRecent returns the greatest existing generation id.
func (s *Store) MostRecent(ctx context.Context) (domain.GenerationID, bool, error) {
	gens, err := s.index.ListGenerations(ctx)
	if err != nil {
		return "", false, fmt.Errorf("most recent generation: %w", err)
	}
	if len(gens) == 0 {
		return "", false, nil
	}
	return gens[len(gens)-1].ID, true, nil
}

// Generations returns all generations in ascending order.
func (s *Store) Generations(ctx context.Context) ([]*domain.Generation, error) {
	gens, err := s.index.ListGenerations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return gens, nil
}

// Generation returns the metadata of one generation.
func (s *Store) Generation(ctx context.Context, id domain.GenerationID) (*domain.Generation, error) {
	return s.index.GetGeneration(ctx, id)
}

// Next returns the nearest generation after id.
func (s *Store) Next(ctx context.Context, id domain.GenerationID) (domain.GenerationID, bool, error) {
	gens, err := s.Generations(ctx)
	if err != nil {
		return "", false, err
	}
	i := sort.Search(len(gens), func(i int) bool { return gens[i].ID > id })
	if i == len(gens) {
		return "", false, nil
	}
	return gens[i].ID, true, nil
}

// Provisional returns the generations left by unfinished runs.
func (s *Store) Provisional(ctx context.Context) ([]*domain.Generation, error) {
	gens, err := s.Generations(ctx)
	if err != nil {
		return nil, err
	}
	var out []*domain.Generation
	for _, g := range gens {
		if !g.IsComplete() {
			out = append(out, g)
		}
	}
	return out, nil
}

// Create registers id as a provisional generation, then creates its storage
// directory and the parent directory of every path.
func (s *Store) Create(ctx context.Context, id domain.GenerationID, paths []string, runID string, mode domain.BackupMode) (*domain.Generation, error) {
	dirs := map[string]struct{}{s.Dir(id): {}}
	for _, p := range paths {
		p, err := domain.CleanPath(p)
		if err != nil {
			return nil, err
		}
		dirs[filepath.Dir(s.PhysicalPath(domain.Reference{Generation: id, Path: p}))] = struct{}{}
	}

	gen := &domain.Generation{
		ID:        id,
		State:     domain.StateProvisional,
		CreatedAt: s.now().UTC(),
		RunID:     runID,
		Mode:      mode,
	}
	if err := s.index.CreateGeneration(ctx, gen); err != nil {
		return nil, fmt.Errorf("create generation %s: %w", id, err)
	}

	for d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, domain.ErrAccess.WithDetails(d).WithCause(err)
		}
	}

	s.logger.Debug("generation created", "generation", id, "paths", len(paths))
	return gen, nil
}

// PutReference records that path in gen lives at (targetGen, targetPath).
// Both paths are normalized; paths escaping the world are rejected. Chains
// are not validated.
func (s *Store) PutReference(ctx context.Context, gen domain.GenerationID, p string, targetGen domain.GenerationID, targetPath string) error {
	p, err := domain.CleanPath(p)
	if err != nil {
		return err
	}
	if targetPath, err = domain.CleanPath(targetPath); err != nil {
		return err
	}
	ref := domain.Reference{Generation: targetGen, Path: targetPath}
	if err := s.index.PutRef(ctx, gen, p, ref); err != nil {
		return fmt.Errorf("put reference %s:%s: %w", gen, p, err)
	}
	return nil
}

// CopyIn copies a world file into gen's storage at path p without touching
// the reference table.
func (s *Store) CopyIn(ctx context.Context, gen domain.GenerationID, p, src string) (int64, error) {
	p, err := domain.CleanPath(p)
	if err != nil {
		return 0, err
	}
	return s.copier.Copy(ctx, src, s.PhysicalPath(domain.Reference{Generation: gen, Path: p}))
}

// Import copies a world file into gen's storage and records it as a
// physical copy.
func (s *Store) Import(ctx context.Context, gen domain.GenerationID, p, src string) (int64, error) {
	n, err := s.CopyIn(ctx, gen, p, src)
	if err != nil {
		return n, err
	}
	if err := s.PutReference(ctx, gen, p, gen, p); err != nil {
		return n, err
	}
	return n, nil
}

// Export copies the physical copy owner names to dst.
func (s *Store) Export(ctx context.Context, owner domain.Reference, dst string) (int64, error) {
	return s.copier.Copy(ctx, s.PhysicalPath(owner), dst)
}

// Adopt gives the bytes of the physical copy from to generation gen at path
// p, hard-linking when possible. It reports whether a byte copy was needed.
// The reference table is not touched.
func (s *Store) Adopt(ctx context.Context, from domain.Reference, gen domain.GenerationID, p string) (bool, error) {
	dst := s.PhysicalPath(domain.Reference{Generation: gen, Path: p})
	copied, _, err := s.copier.LinkOrCopy(ctx, s.PhysicalPath(from), dst)
	if err != nil {
		return copied, fmt.Errorf("adopt %s into %s: %w", from, gen, err)
	}
	return copied, nil
}

// Resolve follows the reference chain of path in gen to its physical copy.
//
// A path gen does not track yields ErrPathNotTracked. A link to a missing
// generation or path, a self reference without a physical file, or a cycle
// yields ErrBrokenChain.
func (s *Store) Resolve(ctx context.Context, gen domain.GenerationID, p string) (domain.Reference, error) {
	p, err := domain.CleanPath(p)
	if err != nil {
		return domain.Reference{}, err
	}
	ref, err := s.index.GetRef(ctx, gen, p)
	switch {
	case errors.Is(err, storage.ErrRefNotFound):
		return domain.Reference{}, domain.ErrPathNotTracked.WithDetails(fmt.Sprintf("%s:%s", gen, p))
	case err != nil:
		return domain.Reference{}, err
	}

	cur := domain.Reference{Generation: gen, Path: p}
	visited := map[domain.Reference]struct{}{cur: {}}
	for {
		if ref == cur {
			if _, err := os.Stat(s.PhysicalPath(ref)); err != nil {
				return domain.Reference{}, domain.ErrBrokenChain.
					WithDetails(fmt.Sprintf("%s:%s: physical copy %s missing", gen, p, ref)).
					WithCause(err)
			}
			return ref, nil
		}
		if _, seen := visited[ref]; seen {
			return domain.Reference{}, domain.ErrBrokenChain.WithDetails(fmt.Sprintf("%s:%s: cycle at %s", gen, p, ref))
		}
		visited[ref] = struct{}{}

		cur = ref
		ref, err = s.index.GetRef(ctx, cur.Generation, cur.Path)
		if errors.Is(err, storage.ErrRefNotFound) || errors.Is(err, domain.ErrNoSuchGeneration) {
			return domain.Reference{}, domain.ErrBrokenChain.
				WithDetails(fmt.Sprintf("%s:%s: dangling link to %s", gen, p, cur)).
				WithCause(err)
		}
		if err != nil {
			return domain.Reference{}, err
		}
	}
}

// ListReferences returns the reference table of gen.
func (s *Store) ListReferences(ctx context.Context, gen domain.GenerationID) (map[string]domain.Reference, error) {
	refs, err := s.index.ListRefs(ctx, gen)
	if err != nil {
		return nil, fmt.Errorf("list references of %s: %w", gen, err)
	}
	return refs, nil
}

// referrerFinder is implemented by indexes that can look up references by
// target without scanning every table.
type referrerFinder interface {
	Referrers(ctx context.Context, ref domain.Reference) (map[domain.GenerationID][]string, error)
}

// Referrers returns, for every generation after gen, the paths whose
// reference points at target.
func (s *Store) Referrers(ctx context.Context, gen domain.GenerationID, target domain.Reference) (map[domain.GenerationID][]string, error) {
	out := make(map[domain.GenerationID][]string)
	if rf, ok := s.index.(referrerFinder); ok {
		all, err := rf.Referrers(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("referrers of %s: %w", target, err)
		}
		for g, paths := range all {
			if g > gen {
				out[g] = paths
			}
		}
		return out, nil
	}

	gens, err := s.Generations(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range gens {
		if g.ID <= gen {
			continue
		}
		refs, err := s.ListReferences(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		for p, r := range refs {
			if r == target {
				out[g.ID] = append(out[g.ID], p)
			}
		}
		sort.Strings(out[g.ID])
	}
	return out, nil
}

// Seal marks a generation complete, records the run counters and flushes
// the index.
func (s *Store) Seal(ctx context.Context, gen *domain.Generation) error {
	sealed := *gen
	sealed.State = domain.StateComplete
	sealed.SealedAt = s.now().UTC()
	if err := s.index.UpdateGeneration(ctx, &sealed); err != nil {
		return fmt.Errorf("seal generation %s: %w", gen.ID, err)
	}
	if err := s.index.Sync(ctx); err != nil {
		return fmt.Errorf("seal generation %s: %w", gen.ID, err)
	}
	*gen = sealed
	return nil
}

// Remove drops the reference table of gen, then deletes its storage
// directory. A directory left behind by a failed delete shows up as an
// orphan in Verify.
func (s *Store) Remove(ctx context.Context, gen domain.GenerationID) error {
	if err := s.index.DropGeneration(ctx, gen); err != nil {
		return fmt.Errorf("remove generation %s: %w", gen, err)
	}
	if err := os.RemoveAll(s.Dir(gen)); err != nil {
		return domain.ErrAccess.WithDetails(s.Dir(gen)).WithCause(err)
	}
	s.logger.Debug("generation removed", "generation", gen)
	return nil
}

// RemovePhysical deletes one physical copy owned by gen. Emptied parent
// directories inside the generation are left in place.
func (s *Store) RemovePhysical(gen domain.GenerationID, p string) error {
	err := os.Remove(s.PhysicalPath(domain.Reference{Generation: gen, Path: p}))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.ErrAccess.WithDetails(path.Join(string(gen), p)).WithCause(err)
	}
	return nil
}

// Sync flushes the index.
func (s *Store) Sync(ctx context.Context) error {
	return s.index.Sync(ctx)
}

// Close flushes and closes the index.
func (s *Store) Close() error {
	return s.index.Close()
}
