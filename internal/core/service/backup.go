package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/generation"
	"github.com/yndnr/worldsnap/internal/telemetry/metric"
	"github.com/yndnr/worldsnap/internal/world"
)

// DefaultWorkers is the default size of the classify/copy worker pool.
const DefaultWorkers = 4

// BackupRequest describes one backup run.
type BackupRequest struct {
	// Label names the new generation.
	Label domain.GenerationID

	// Mode selects full or iterative behavior. Empty means iterative.
	Mode domain.BackupMode

	// RunID identifies the invocation. Generated when empty.
	RunID string
}

// BackupResult reports the outcome of a backup run.
type BackupResult struct {
	// Generation is the sealed generation, nil when UpToDate.
	Generation *domain.Generation

	// Previous is the generation unchanged files were classified against.
	Previous domain.GenerationID

	// UpToDate is set when a generation with the label already exists.
	UpToDate bool

	Elapsed time.Duration
}

// BackupService is the incremental snapshot engine.
type BackupService struct {
	store      *generation.Store
	catalog    *world.Catalog
	classifier *world.Classifier
	location   *time.Location
	workers    int
	logger     *slog.Logger
	metrics    *metric.Registry
}

// BackupOption configures a BackupService.
type BackupOption func(*BackupService)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) BackupOption {
	return func(s *BackupService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLocation sets the time zone generation labels are interpreted in.
func WithLocation(loc *time.Location) BackupOption {
	return func(s *BackupService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithBackupLogger sets the logger.
func WithBackupLogger(l *slog.Logger) BackupOption {
	return func(s *BackupService) {
		s.logger = l
	}
}

// WithBackupMetrics sets the metrics registry.
func WithBackupMetrics(m *metric.Registry) BackupOption {
	return func(s *BackupService) {
		s.metrics = m
	}
}

// NewBackupService creates a snapshot engine for the world catalog and store.
func NewBackupService(store *generation.Store, catalog *world.Catalog, opts ...BackupOption) *BackupService {
	s := &BackupService{
		store:      store,
		catalog:    catalog,
		classifier: world.NewClassifier(catalog.Root()),
		location:   time.UTC,
		workers:    DefaultWorkers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run takes a snapshot of the world as generation req.Label.
//
// Run is a no-op when req.Label already is the most recent generation. It
// refuses to run while a provisional generation exists. On any failure the
// new generation stays provisional.
func (s *BackupService) Run(ctx context.Context, req BackupRequest) (*BackupResult, error) {
	start := time.Now()
	mode, err := domain.ParseBackupMode(string(req.Mode))
	if err != nil {
		return nil, err
	}

	result, err := s.run(ctx, req, mode)
	elapsed := time.Since(start)
	switch {
	case err != nil:
		s.metrics.ObserveBackup(mode, metric.ResultFailure, elapsed, nil)
	case result.UpToDate:
		s.metrics.ObserveBackup(mode, metric.ResultUpToDate, elapsed, nil)
	default:
		result.Elapsed = elapsed
		s.metrics.ObserveBackup(mode, metric.ResultSuccess, elapsed, result.Generation)
	}
	return result, err
}

func (s *BackupService) run(ctx context.Context, req BackupRequest, mode domain.BackupMode) (*BackupResult, error) {
	label, err := domain.ParseGenerationID(string(req.Label))
	if err != nil {
		return nil, err
	}
	runID := req.RunID
	switch {
	case runID == "":
		if runID, err = domain.NewRunID(); err != nil {
			return nil, err
		}
	case !domain.IsRunID(runID):
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("run id %q", runID))
	}
	logger := s.logger.With("generation", label, "mode", mode, "run_id", runID)

	provisional, err := s.store.Provisional(ctx)
	if err != nil {
		return nil, err
	}
	if len(provisional) > 0 {
		ids := make([]string, 0, len(provisional))
		for _, g := range provisional {
			ids = append(ids, string(g.ID))
		}
		return nil, domain.ErrProvisionalGeneration.WithDetails(strings.Join(ids, ", ") + " (run cleanup first)")
	}

	prev, hasPrev, err := s.store.MostRecent(ctx)
	if err != nil {
		return nil, err
	}
	if hasPrev {
		if prev == label {
			logger.Info("backup already up to date")
			return &BackupResult{Previous: prev, UpToDate: true}, nil
		}
		if label.Before(prev) {
			return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("label %s is older than the most recent generation %s", label, prev))
		}
	}

	paths, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("world cataloged", "files", len(paths))

	gen, err := s.store.Create(ctx, label, paths, runID, mode)
	if err != nil {
		return nil, err
	}

	r := &recorder{store: s.store, gen: gen}
	if mode == domain.ModeFull || !hasPrev {
		err = s.copyAll(ctx, r, paths)
	} else {
		var reference time.Time
		reference, err = prev.Time(s.location)
		if err == nil {
			err = s.classify(ctx, r, prev, reference, paths, logger)
		}
	}
	if err != nil {
		logger.Error("backup failed; generation left provisional", "error", err)
		return nil, fmt.Errorf("backup %s: %w", label, err)
	}

	gen.Files = len(paths)
	if err := s.store.Seal(ctx, gen); err != nil {
		return nil, err
	}

	logger.Info("backup complete",
		"files", gen.Files,
		"copied", gen.Copied,
		"referenced", gen.Referenced,
		"fallbacks", gen.Fallbacks,
		"bytes", gen.BytesCopied)

	result := &BackupResult{Generation: gen}
	if hasPrev {
		result.Previous = prev
	}
	return result, nil
}

// recorder serializes reference writes and counter updates from the
// worker pool.
type recorder struct {
	mu    sync.Mutex
	store *generation.Store
	gen   *domain.Generation
}

func (r *recorder) copied(ctx context.Context, p string, n int64, fallback bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.PutReference(ctx, r.gen.ID, p, r.gen.ID, p); err != nil {
		return err
	}
	r.gen.Copied++
	r.gen.BytesCopied += n
	if fallback {
		r.gen.Fallbacks++
	}
	return nil
}

func (r *recorder) referenced(ctx context.Context, p string, owner domain.Reference) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.PutReference(ctx, r.gen.ID, p, owner.Generation, owner.Path); err != nil {
		return err
	}
	r.gen.Referenced++
	return nil
}

func (s *BackupService) worldPath(p string) string {
	return filepath.Join(s.catalog.Root(), filepath.FromSlash(p))
}

func (s *BackupService) copyOne(ctx context.Context, r *recorder, p string, fallback bool) error {
	n, err := s.store.CopyIn(ctx, r.gen.ID, p, s.worldPath(p))
	if err != nil {
		return err
	}
	return r.copied(ctx, p, n, fallback)
}

func (s *BackupService) copyAll(ctx context.Context, r *recorder, paths []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, p := range paths {
		p := p // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			return s.copyOne(ctx, r, p, false)
		})
	}
	return g.Wait()
}

func (s *BackupService) classify(ctx context.Context, r *recorder, prev domain.GenerationID, reference time.Time, paths []string, logger *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, p := range paths {
		p := p // per-iteration copy; go.mod targets go1.21 loop semantics
		g.Go(func() error {
			changed, err := s.classifier.IsChanged(p, reference)
			if err != nil {
				return err
			}
			if changed {
				return s.copyOne(ctx, r, p, false)
			}

			owner, err := s.store.Resolve(ctx, prev, p)
			switch {
			case err == nil:
				return r.referenced(ctx, p, owner)
			case errors.Is(err, domain.ErrPathNotTracked):
				logger.Info("unchanged file not tracked by previous generation; copying",
					"path", p, "previous", prev)
			case errors.Is(err, domain.ErrBrokenChain):
				logger.Warn("reference chain broken; copying instead",
					"path", p, "previous", prev, "error", err)
			default:
				return err
			}
			return s.copyOne(ctx, r, p, true)
		})
	}
	return g.Wait()
}
