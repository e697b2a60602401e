package command

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/worldsnap/internal/config"
	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/core/service"
	"github.com/yndnr/worldsnap/internal/infra/confloader"
	"github.com/yndnr/worldsnap/internal/infra/shutdown"
	"github.com/yndnr/worldsnap/internal/telemetry/logger"
)

const shutdownTimeout = 30 * time.Second

// DaemonCommand returns the daemon command.
func DaemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run iterative backups every schedule.interval",
		Description: `Each cycle takes an iterative backup labelled with the current minute,
then prunes to retention.keep generations when it is set. Changes to the
config file are picked up between cycles; world, store and index settings
need a restart.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "run a single cycle and exit"},
		},
		Action: withSession(runDaemon),
	}
}

func runDaemon(c *cli.Context, s *session) error {
	sched := newScheduler(s)
	if c.Bool("once") {
		return sched.cycle(c.Context)
	}

	h := shutdown.NewHandler(shutdownTimeout)
	ctx := h.Context(c.Context)

	if path := s.loader.FilePath(); path != "" {
		w, err := confloader.NewWatcher(confloader.WithWatcherLogger(s.logger))
		if err != nil {
			return err
		}
		if err := w.Watch(path); err != nil {
			w.Stop()
			return err
		}
		w.OnChange(func(string) { sched.reload() })
		w.StartAsync()
		h.OnShutdown(func(context.Context) error { return w.Stop() })
	}

	s.logger.Info("daemon started", "interval", s.cfg.Schedule.Interval, "keep", s.cfg.Retention.Keep)
	sched.loop(ctx)
	s.logger.Info("daemon stopping")
	return h.Shutdown()
}

// scheduler runs backup cycles. Reloaded configuration is handed over
// through pending and applied at the start of the next cycle.
type scheduler struct {
	s       *session
	now     func() time.Time
	pending atomic.Pointer[config.Config]
	wake    chan struct{}
}

func newScheduler(s *session) *scheduler {
	return &scheduler{s: s, now: time.Now, wake: make(chan struct{}, 1)}
}

// loop runs a cycle immediately and then every schedule.interval until ctx
// is done. Failed cycles are logged and retried at the next tick. A config
// reload restarts the wait with the new interval without running a cycle.
func (d *scheduler) loop(ctx context.Context) {
	for {
		if err := d.cycle(ctx); err != nil && ctx.Err() == nil {
			d.s.logger.Error("backup cycle failed", "error", err)
		}
		if !d.wait(ctx) {
			return
		}
	}
}

// wait blocks until the next tick. It returns false once ctx is done.
func (d *scheduler) wait(ctx context.Context) bool {
	for {
		timer := time.NewTimer(d.s.cfg.Schedule.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-d.wake:
			timer.Stop()
			d.apply()
		case <-timer.C:
			return true
		}
	}
}

// cycle takes one iterative backup and prunes. The metrics textfile is
// rewritten afterwards whatever the outcome.
func (d *scheduler) cycle(ctx context.Context) error {
	d.apply()
	s := d.s
	defer func() {
		if err := s.metrics.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			s.logger.Warn("metrics textfile not written", "error", err)
		}
	}()

	runID, err := domain.NewRunID()
	if err != nil {
		return err
	}
	svc, err := s.backupService()
	if err != nil {
		return err
	}
	label := domain.NewGenerationID(d.now().In(s.location()))
	result, err := svc.Run(logger.WithRunID(ctx, runID), service.BackupRequest{
		Label: label,
		Mode:  domain.ModeIterative,
		RunID: runID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrProvisionalGeneration) {
			s.logger.Error("backups blocked by an interrupted run; run worldsnap cleanup", "error", err)
		}
		return err
	}
	if result.UpToDate {
		s.logger.Debug("generation already taken this minute", "generation", label)
	}

	if keep := s.cfg.Retention.Keep; keep > 0 {
		removed, err := s.compactionService().Prune(ctx, keep)
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			s.logger.Info("pruned generations", "removed", len(removed), "keep", keep)
		}
	}
	return nil
}

// reload rereads the configuration. Invalid files are logged and ignored.
func (d *scheduler) reload() {
	s := d.s
	next := config.Default()
	if err := s.loader.Reload(next); err != nil {
		s.logger.Warn("config reload failed", "error", err)
		return
	}
	if err := config.Verify(next); err != nil {
		s.logger.Warn("reloaded config rejected", "error", err)
		return
	}
	d.pending.Store(next)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// apply adopts a pending configuration. Only settings that do not need the
// store reopened take effect.
func (d *scheduler) apply() {
	next := d.pending.Swap(nil)
	if next == nil {
		return
	}
	s := d.s
	cur := *s.cfg
	if next.World.Dir != cur.World.Dir || next.World.Location != cur.World.Location ||
		next.Store.Dir != cur.Store.Dir || next.Index != cur.Index {
		s.logger.Warn("world, store, index and location changes need a restart")
	}
	if next.Store.CopyRateMBps != cur.Store.CopyRateMBps {
		s.logger.Warn("store.copy_rate_mbps change needs a restart")
	}
	cur.World.Exclude = slices.Clone(next.World.Exclude)
	cur.Store.Workers = next.Store.Workers
	cur.Retention = next.Retention
	cur.Schedule = next.Schedule
	cur.Log.Level = next.Log.Level
	cur.Metrics = next.Metrics
	s.cfg = &cur
	logger.SetLevel(cur.Log.Level)
	s.logger.Info("config reloaded", "interval", cur.Schedule.Interval, "keep", cur.Retention.Keep, "level", cur.Log.Level)
}
