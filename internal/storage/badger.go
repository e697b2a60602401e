package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// Key layout:
//
//	gen/<id>          JSON domain.Generation
//	ref/<id>/<path>   JSON domain.Reference
const (
	genPrefix = "gen/"
	refPrefix = "ref/"
)

func genKey(id domain.GenerationID) []byte {
	return []byte(genPrefix + string(id))
}

func refGenPrefix(id domain.GenerationID) []byte {
	return []byte(refPrefix + string(id) + "/")
}

func refKey(id domain.GenerationID, path string) []byte {
	return []byte(refPrefix + string(id) + "/" + path)
}

// BadgerIndex implements Index using Badger v3.
type BadgerIndex struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewBadgerIndex opens (or creates) a Badger index in cfg.Dir.
func NewBadgerIndex(cfg Config, logger *slog.Logger) (*BadgerIndex, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = DefaultConfig(cfg.Dir).GCInterval
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = DefaultConfig(cfg.Dir).GCThreshold
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites
	opts.BlockCacheSize = 16 << 20
	opts.ValueLogFileSize = 64 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("badger: open db").WithCause(err)
	}

	idx := &BadgerIndex{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go idx.gcLoop()

	logger.Debug("badger index opened",
		"dir", cfg.Dir,
		"gc_interval", cfg.GCInterval)

	return idx, nil
}

// CreateGeneration registers a new generation.
func (b *BadgerIndex) CreateGeneration(ctx context.Context, gen *domain.Generation) error {
	if b.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(gen)
	if err != nil {
		return fmt.Errorf("marshal generation: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(genKey(gen.ID))
		if err == nil {
			return domain.ErrDuplicateGeneration.WithDetails(string(gen.ID))
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(genKey(gen.ID), data)
	})
	return wrapBadger(err)
}

// UpdateGeneration replaces the metadata of an existing generation.
func (b *BadgerIndex) UpdateGeneration(ctx context.Context, gen *domain.Generation) error {
	if b.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(gen)
	if err != nil {
		return fmt.Errorf("marshal generation: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := requireGeneration(txn, gen.ID); err != nil {
			return err
		}
		return txn.Set(genKey(gen.ID), data)
	})
	return wrapBadger(err)
}

// GetGeneration returns the metadata of a generation.
func (b *BadgerIndex) GetGeneration(ctx context.Context, id domain.GenerationID) (*domain.Generation, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	var gen domain.Generation
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(genKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNoSuchGeneration.WithDetails(string(id))
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &gen)
		})
	})
	if err != nil {
		return nil, wrapBadger(err)
	}
	return &gen, nil
}

// ListGenerations returns all generations in ascending id order.
func (b *BadgerIndex) ListGenerations(ctx context.Context) ([]*domain.Generation, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	var gens []*domain.Generation
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(genPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var gen domain.Generation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &gen)
			}); err != nil {
				return err
			}
			gens = append(gens, &gen)
		}
		return nil
	})
	if err != nil {
		return nil, wrapBadger(err)
	}
	return gens, nil
}

// DropGeneration deletes a generation and its reference table.
func (b *BadgerIndex) DropGeneration(ctx context.Context, id domain.GenerationID) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := b.db.DropPrefix(refGenPrefix(id)); err != nil {
		return wrapBadger(err)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(genKey(id))
	})
	return wrapBadger(err)
}

// PutRef records the reference for path in generation gen.
func (b *BadgerIndex) PutRef(ctx context.Context, gen domain.GenerationID, path string, ref domain.Reference) error {
	if b.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal reference: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if err := requireGeneration(txn, gen); err != nil {
			return err
		}
		return txn.Set(refKey(gen, path), data)
	})
	return wrapBadger(err)
}

// GetRef returns the reference for path in generation gen.
func (b *BadgerIndex) GetRef(ctx context.Context, gen domain.GenerationID, path string) (domain.Reference, error) {
	if b.closed.Load() {
		return domain.Reference{}, ErrClosed
	}
	var ref domain.Reference
	err := b.db.View(func(txn *badger.Txn) error {
		if err := requireGeneration(txn, gen); err != nil {
			return err
		}
		item, err := txn.Get(refKey(gen, path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRefNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ref)
		})
	})
	if err != nil {
		return domain.Reference{}, wrapBadger(err)
	}
	return ref, nil
}

// ListRefs returns the full reference table of a generation.
func (b *BadgerIndex) ListRefs(ctx context.Context, gen domain.GenerationID) (map[string]domain.Reference, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	refs := make(map[string]domain.Reference)
	prefix := refGenPrefix(gen)
	err := b.db.View(func(txn *badger.Txn) error {
		if err := requireGeneration(txn, gen); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			path := strings.TrimPrefix(string(item.Key()), string(prefix))
			var ref domain.Reference
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &ref)
			}); err != nil {
				return err
			}
			refs[path] = ref
		}
		return nil
	})
	if err != nil {
		return nil, wrapBadger(err)
	}
	return refs, nil
}

// Sync flushes writes to disk.
func (b *BadgerIndex) Sync(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return wrapBadger(b.db.Sync())
}

// GC runs value log garbage collection until nothing more can be rewritten.
func (b *BadgerIndex) GC(ctx context.Context) (int, error) {
	startTime := time.Now()

	runs := 0
	for {
		if err := ctx.Err(); err != nil {
			return runs, err
		}
		err := b.db.RunValueLogGC(b.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return runs, fmt.Errorf("gc: %w", err)
		}
		runs++
	}

	b.lastGCTime.Store(time.Now().UnixMilli())
	b.gcRuns.Add(uint64(runs))

	b.logger.Debug("badger gc completed",
		"rewrites", runs,
		"elapsed", time.Since(startTime))

	return runs, nil
}

// Close gracefully shuts down the index.
func (b *BadgerIndex) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.stopCh)
		<-b.doneCh

		if cerr := b.db.Close(); cerr != nil {
			err = fmt.Errorf("close db: %w", cerr)
		}
	})
	return err
}

// RegisterMetrics exposes Badger size and GC gauges on reg.
func (b *BadgerIndex) RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "worldsnap",
			Subsystem: "badger",
			Name:      "lsm_size_bytes",
			Help:      "Badger LSM tree size in bytes",
		}, func() float64 {
			lsm, _ := b.db.Size()
			return float64(lsm)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "worldsnap",
			Subsystem: "badger",
			Name:      "value_log_size_bytes",
			Help:      "Badger value log size in bytes",
		}, func() float64 {
			_, vlog := b.db.Size()
			return float64(vlog)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "worldsnap",
			Subsystem: "badger",
			Name:      "gc_rewrites_total",
			Help:      "Value log files rewritten by Badger garbage collection",
		}, func() float64 {
			return float64(b.gcRuns.Load())
		}),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register badger metrics: %w", err)
		}
	}
	return nil
}

// gcLoop runs periodic garbage collection.
func (b *BadgerIndex) gcLoop() {
	defer close(b.doneCh)

	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := b.GC(ctx); err != nil {
				b.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-b.stopCh:
			return
		}
	}
}

func requireGeneration(txn *badger.Txn, id domain.GenerationID) error {
	_, err := txn.Get(genKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNoSuchGeneration.WithDetails(string(id))
	}
	return err
}

// wrapBadger passes domain and sentinel errors through and marks everything
// else as a storage failure.
func wrapBadger(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsDomainError(err, "") || errors.Is(err, ErrRefNotFound) || errors.Is(err, ErrClosed) {
		return err
	}
	return domain.ErrStorage.WithDetails("badger").WithCause(err)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
// Badger is chatty at info level; its info output is logged at debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
