package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/generation"
	"github.com/yndnr/worldsnap/internal/telemetry/metric"
	"github.com/yndnr/worldsnap/internal/world"
)

// RestoreRequest describes one restore.
type RestoreRequest struct {
	// Target is a generation id or "recent".
	Target string

	// Into overrides the destination directory. Empty means the world.
	Into string

	// Progress, when set, is called after each file is written.
	Progress func(done, total int, bytes int64)
}

// RestoreResult reports the outcome of a restore.
type RestoreResult struct {
	Generation domain.GenerationID `json:"generation"`
	Into       string              `json:"into"`
	Files      int                 `json:"files"`
	Bytes      int64               `json:"bytes"`
	Elapsed    time.Duration       `json:"elapsed"`
}

// RestoreService materializes a generation into a directory.
type RestoreService struct {
	store     *generation.Store
	worldRoot string
	logger    *slog.Logger
	metrics   *metric.Registry
}

// NewRestoreService creates a restore resolver writing to worldRoot.
func NewRestoreService(store *generation.Store, worldRoot string, logger *slog.Logger, metrics *metric.Registry) *RestoreService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RestoreService{
		store:     store,
		worldRoot: worldRoot,
		logger:    logger,
		metrics:   metrics,
	}
}

// Target resolves a restore target to a complete generation.
func (s *RestoreService) Target(ctx context.Context, target string) (*domain.Generation, error) {
	if target == "" || target == domain.RecentTarget {
		provisional, err := s.store.Provisional(ctx)
		if err != nil {
			return nil, err
		}
		if len(provisional) > 0 {
			return nil, domain.ErrProvisionalGeneration.WithDetails(string(provisional[0].ID) + " (run cleanup first)")
		}
		id, ok, err := s.store.MostRecent(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrNoSuchGeneration.WithDetails("store is empty")
		}
		return s.store.Generation(ctx, id)
	}

	id, err := domain.ParseGenerationID(target)
	if err != nil {
		return nil, err
	}
	gen, err := s.store.Generation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !gen.IsComplete() {
		return nil, domain.ErrProvisionalGeneration.WithDetails(string(id))
	}
	return gen, nil
}

// Restore replaces the contents of the destination with generation
// req.Target.
//
// Every reference is resolved before the destination is touched; a broken
// chain leaves it as it was. Restored files carry the time of the restore
// as their modification time, so the next iterative backup copies them.
func (s *RestoreService) Restore(ctx context.Context, req RestoreRequest) (*RestoreResult, error) {
	start := time.Now()
	gen, err := s.Target(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	into := req.Into
	if into == "" {
		into = s.worldRoot
	}
	nested, err := world.Nested(into, s.store.Root())
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails(into).WithCause(err)
	}
	if nested {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("restore destination %s overlaps the store %s", into, s.store.Root()))
	}

	owners, err := s.store.ResolveAll(ctx, gen.ID)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", gen.ID, err)
	}

	logger := s.logger.With("generation", gen.ID, "into", into)
	logger.Debug("references resolved", "files", len(owners))

	if err := world.Empty(into); err != nil {
		return nil, fmt.Errorf("restore %s: %w", gen.ID, err)
	}

	paths := make([]string, 0, len(owners))
	for p := range owners {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	result := &RestoreResult{Generation: gen.ID, Into: into}
	for _, p := range paths {
		n, err := s.store.Export(ctx, owners[p], filepath.Join(into, filepath.FromSlash(p)))
		if err != nil {
			logger.Error("restore interrupted", "written", result.Files, "total", len(paths), "error", err)
			s.metrics.ObserveRestore(result.Files)
			return result, fmt.Errorf("restore %s: %d of %d files written: %w", gen.ID, result.Files, len(paths), err)
		}
		result.Files++
		result.Bytes += n
		if req.Progress != nil {
			req.Progress(result.Files, len(paths), result.Bytes)
		}
	}

	result.Elapsed = time.Since(start)
	s.metrics.ObserveRestore(result.Files)
	logger.Info("restore complete", "files", result.Files, "bytes", result.Bytes)
	return result, nil
}
