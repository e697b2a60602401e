package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/worldsnap/internal/cli/output"
	"github.com/yndnr/worldsnap/internal/config"
	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/core/service"
	"github.com/yndnr/worldsnap/internal/generation"
	"github.com/yndnr/worldsnap/internal/infra/confloader"
	"github.com/yndnr/worldsnap/internal/infra/lock"
	"github.com/yndnr/worldsnap/internal/telemetry/logger"
	"github.com/yndnr/worldsnap/internal/telemetry/metric"
	"github.com/yndnr/worldsnap/internal/world"
)

// session is everything one command invocation works with.
type session struct {
	cfg     *config.Config
	loader  *confloader.Loader
	logger  *slog.Logger
	runID   string
	out     io.Writer
	errOut  io.Writer
	format  output.Format
	wide    bool
	store   *generation.Store
	lock    *lock.Lock
	metrics *metric.Registry
}

// loadConfig layers defaults, the config file, the environment and global
// flags, then verifies the result.
func loadConfig(c *cli.Context) (*config.Config, *confloader.Loader, error) {
	path := c.String("config")
	if path == "" {
		if p := config.DefaultPath(); p != "" {
			if _, err := os.Stat(p); err == nil {
				path = p
			}
		}
	}
	loader := confloader.NewLoader(confloader.WithConfigFile(path))
	if err := loader.LoadMap(overrides(c)); err != nil {
		return nil, nil, err
	}
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, nil, domain.ErrInvalidArgument.WithDetails("config").WithCause(err)
	}
	return cfg, loader, nil
}

// newSession loads the configuration and sets up logging. The store is not
// opened.
func newSession(c *cli.Context) (*session, error) {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails(err.Error())
	}
	cfg, loader, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	runID, err := domain.NewRunID()
	if err != nil {
		return nil, err
	}
	base := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: c.App.ErrWriter,
	})
	s := &session{
		cfg:     cfg,
		loader:  loader,
		logger:  base.With("run_id", runID),
		runID:   runID,
		out:     c.App.Writer,
		errOut:  c.App.ErrWriter,
		format:  format,
		wide:    c.Bool("wide"),
		metrics: metric.NewRegistry(),
	}
	c.Context = logger.WithRunID(logger.WithLogger(c.Context, base), runID)
	return s, nil
}

// openSession creates a session holding the store lock with the store open.
func openSession(c *cli.Context) (*session, error) {
	s, err := newSession(c)
	if err != nil {
		return nil, err
	}
	if err := s.open(c.Context); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) open(ctx context.Context) error {
	l, err := lock.TryAcquire(s.cfg.Store.Dir)
	if err != nil {
		return err
	}
	idx, err := generation.OpenIndex(ctx, s.cfg.IndexConfig(), s.logger)
	if err != nil {
		l.Release()
		return err
	}
	if m, ok := idx.(interface {
		RegisterMetrics(prometheus.Registerer) error
	}); ok {
		if err := m.RegisterMetrics(s.metrics.Registerer()); err != nil {
			s.logger.Warn("index metrics not registered", "error", err)
		}
	}
	store, err := generation.NewStore(s.cfg.Store.Dir, idx,
		generation.WithCopier(world.NewCopier(s.cfg.CopyRate())),
		generation.WithLogger(s.logger))
	if err != nil {
		idx.Close()
		l.Release()
		return err
	}
	if err := s.metrics.Registerer().Register(metric.NewCollector(store)); err != nil {
		s.logger.Warn("generation metrics not registered", "error", err)
	}
	s.store, s.lock = store, l
	return nil
}

// close writes the metrics textfile, closes the store and releases the lock.
func (s *session) close() error {
	var errs []error
	if s.store != nil {
		if err := s.metrics.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, err)
		}
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		s.store = nil
	}
	if err := s.lock.Release(); err != nil {
		errs = append(errs, err)
	}
	s.lock = nil
	return errors.Join(errs...)
}

func (s *session) location() *time.Location {
	loc, err := s.cfg.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *session) backupService() (*service.BackupService, error) {
	catalog, err := world.NewCatalog(s.cfg.World.Dir, world.WithExclude(s.cfg.World.Exclude...))
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails("world.exclude").WithCause(err)
	}
	return service.NewBackupService(s.store, catalog,
		service.WithWorkers(s.cfg.Store.Workers),
		service.WithLocation(s.location()),
		service.WithBackupLogger(s.logger),
		service.WithBackupMetrics(s.metrics)), nil
}

func (s *session) restoreService() *service.RestoreService {
	return service.NewRestoreService(s.store, s.cfg.World.Dir, s.logger, s.metrics)
}

func (s *session) compactionService() *service.CompactionService {
	return service.NewCompactionService(s.store, s.logger, s.metrics)
}

// print renders a result in the selected format.
func (s *session) print(data any) error {
	return output.NewFormatter(s.format, s.wide).Format(s.out, data)
}

// interactive reports whether progress output should be drawn.
func (s *session) interactive() bool {
	return s.format == output.FormatTable && output.IsTerminal(s.errOut)
}

// withSession runs fn with an open session and closes it afterwards.
func withSession(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) (err error) {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := s.close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(c, s)
	}
}
