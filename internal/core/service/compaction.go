package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/generation"
	"github.com/yndnr/worldsnap/internal/telemetry/metric"
)

// CompactionResult reports the removal of one generation.
type CompactionResult struct {
	Generation domain.GenerationID `json:"generation"`

	// Successor is the generation following the removed one.
	Successor domain.GenerationID `json:"successor"`

	// Forwarded counts physical files handed to a later generation.
	Forwarded int `json:"forwarded"`

	// Copied counts forwarded files that could not be hard-linked.
	Copied int `json:"copied"`

	// Retargeted counts later references rewritten to a new owner.
	Retargeted int `json:"retargeted"`

	// Discarded counts physical files no later generation needed.
	Discarded int `json:"discarded"`
}

// CompactionService removes generations while keeping every later
// reference chain intact.
type CompactionService struct {
	store   *generation.Store
	logger  *slog.Logger
	metrics *metric.Registry
}

// NewCompactionService creates a compactor over store.
func NewCompactionService(store *generation.Store, logger *slog.Logger, metrics *metric.Registry) *CompactionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompactionService{store: store, logger: logger, metrics: metrics}
}

// RemoveGeneration deletes generation id.
//
// Physical files of id that a later generation references are moved to the
// earliest such generation, and every later reference is rewritten to the
// new owner before id is deleted. The newest generation cannot be removed.
func (s *CompactionService) RemoveGeneration(ctx context.Context, id domain.GenerationID) (*CompactionResult, error) {
	gen, err := s.store.Generation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !gen.IsComplete() {
		return nil, domain.ErrProvisionalGeneration.WithDetails(string(id) + " (use cleanup)")
	}
	next, ok, err := s.store.Next(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNoNextGeneration.WithDetails(string(id))
	}

	refs, err := s.store.ListReferences(ctx, id)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(refs))
	for p := range refs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	logger := s.logger.With("generation", id, "successor", next)
	result := &CompactionResult{Generation: id, Successor: next}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		here := domain.Reference{Generation: id, Path: p}
		referrers, err := s.store.Referrers(ctx, id, here)
		if err != nil {
			return nil, err
		}

		ref := refs[p]
		if !ref.IsSelf(id, p) {
			// id only linked further back; point its referrers there directly.
			n, err := s.retarget(ctx, referrers, ref, domain.Reference{})
			if err != nil {
				return nil, err
			}
			result.Retargeted += n
			continue
		}

		if len(referrers) == 0 {
			result.Discarded++
			continue
		}

		owner := earliest(referrers)
		copied, err := s.store.Adopt(ctx, here, owner.Generation, owner.Path)
		if err != nil {
			return nil, err
		}
		if copied {
			result.Copied++
		}
		result.Forwarded++

		n, err := s.retarget(ctx, referrers, owner, owner)
		if err != nil {
			return nil, err
		}
		result.Retargeted += n
	}

	// References are durable before any bytes disappear.
	if err := s.store.Sync(ctx); err != nil {
		return nil, err
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return nil, err
	}

	s.metrics.ObserveCompaction()
	logger.Info("generation removed",
		"forwarded", result.Forwarded,
		"copied", result.Copied,
		"retargeted", result.Retargeted,
		"discarded", result.Discarded)
	return result, nil
}

// earliest picks the first path of the earliest referring generation.
func earliest(referrers map[domain.GenerationID][]string) domain.Reference {
	var best domain.GenerationID
	for g := range referrers {
		if best == "" || g < best {
			best = g
		}
	}
	paths := append([]string(nil), referrers[best]...)
	sort.Strings(paths)
	return domain.Reference{Generation: best, Path: paths[0]}
}

// retarget points every referrer at to. The owner itself becomes a self
// reference; skip it when it is already written as such.
func (s *CompactionService) retarget(ctx context.Context, referrers map[domain.GenerationID][]string, to, owner domain.Reference) (int, error) {
	n := 0
	for g, paths := range referrers {
		for _, p := range paths {
			if err := s.store.PutReference(ctx, g, p, to.Generation, to.Path); err != nil {
				return n, err
			}
			if g != owner.Generation || p != owner.Path {
				n++
			}
		}
	}
	return n, nil
}

// RemoveRange removes every generation with from <= id <= to, oldest first.
// It stops at the first failure.
func (s *CompactionService) RemoveRange(ctx context.Context, from, to domain.GenerationID) ([]*CompactionResult, error) {
	if to.Before(from) {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("range %s..%s is reversed", from, to))
	}
	gens, err := s.store.Generations(ctx)
	if err != nil {
		return nil, err
	}
	var ids []domain.GenerationID
	for _, g := range gens {
		if g.ID >= from && g.ID <= to {
			ids = append(ids, g.ID)
		}
	}
	if len(ids) == 0 {
		return nil, domain.ErrNoSuchGeneration.WithDetails(fmt.Sprintf("no generation in %s..%s", from, to))
	}

	results := make([]*CompactionResult, 0, len(ids))
	for _, id := range ids {
		r, err := s.RemoveGeneration(ctx, id)
		if err != nil {
			return results, fmt.Errorf("remove %s: %w", id, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// Discard deletes a provisional generation left by an interrupted run.
func (s *CompactionService) Discard(ctx context.Context, id domain.GenerationID) error {
	gen, err := s.store.Generation(ctx, id)
	if err != nil {
		return err
	}
	if gen.IsComplete() {
		return domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("generation %s is complete; use remove", id))
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	s.logger.Info("provisional generation discarded", "generation", id, "run_id", gen.RunID)
	return nil
}

// Cleanup discards every provisional generation.
func (s *CompactionService) Cleanup(ctx context.Context) ([]domain.GenerationID, error) {
	provisional, err := s.store.Provisional(ctx)
	if err != nil {
		return nil, err
	}
	var discarded []domain.GenerationID
	var errs []error
	for _, g := range provisional {
		if err := s.Discard(ctx, g.ID); err != nil {
			errs = append(errs, fmt.Errorf("discard %s: %w", g.ID, err))
			continue
		}
		discarded = append(discarded, g.ID)
	}
	return discarded, errors.Join(errs...)
}

// Prune removes the oldest complete generations until at most keep remain.
func (s *CompactionService) Prune(ctx context.Context, keep int) ([]*CompactionResult, error) {
	if keep < 1 {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("keep must be at least 1, got %d", keep))
	}
	gens, err := s.store.Generations(ctx)
	if err != nil {
		return nil, err
	}
	var complete []domain.GenerationID
	for _, g := range gens {
		if g.IsComplete() {
			complete = append(complete, g.ID)
		}
	}
	if len(complete) <= keep {
		return nil, nil
	}

	var results []*CompactionResult
	for _, id := range complete[:len(complete)-keep] {
		r, err := s.RemoveGeneration(ctx, id)
		if err != nil {
			return results, fmt.Errorf("prune %s: %w", id, err)
		}
		results = append(results, r)
	}
	return results, nil
}
