package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// Backend names accepted by Config.Backend.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Common errors
var (
	ErrRefNotFound = errors.New("reference not found")
	ErrClosed      = errors.New("index closed")
)

// Index stores generation metadata and reference tables.
//
// Implementations must be safe for concurrent use and durable across
// process restarts once Sync returns.
type Index interface {
	// CreateGeneration registers a new generation.
	// Returns domain.ErrDuplicateGeneration if the id exists.
	CreateGeneration(ctx context.Context, gen *domain.Generation) error

	// UpdateGeneration replaces the metadata of an existing generation.
	// Returns domain.ErrNoSuchGeneration if the id does not exist.
	UpdateGeneration(ctx context.Context, gen *domain.Generation) error

	// GetGeneration returns the metadata of a generation.
	// Returns domain.ErrNoSuchGeneration if the id does not exist.
	GetGeneration(ctx context.Context, id domain.GenerationID) (*domain.Generation, error)

	// ListGenerations returns all generations in ascending id order.
	ListGenerations(ctx context.Context) ([]*domain.Generation, error)

	// DropGeneration deletes a generation and its reference table.
	// Dropping an unknown id is not an error.
	DropGeneration(ctx context.Context, id domain.GenerationID) error

	// PutRef records the reference for path in generation gen, replacing
	// any previous value. Returns domain.ErrNoSuchGeneration if gen does not
	// exist.
	PutRef(ctx context.Context, gen domain.GenerationID, path string, ref domain.Reference) error

	// GetRef returns the reference for path in generation gen.
	// Returns domain.ErrNoSuchGeneration or ErrRefNotFound.
	GetRef(ctx context.Context, gen domain.GenerationID, path string) (domain.Reference, error)

	// ListRefs returns the full reference table of a generation.
	// Returns domain.ErrNoSuchGeneration if gen does not exist.
	ListRefs(ctx context.Context, gen domain.GenerationID) (map[string]domain.Reference, error)

	// Sync flushes buffered writes to stable storage.
	Sync(ctx context.Context) error

	// Close releases the index. Pending writes are flushed.
	Close() error
}

// Config configures a reference index.
type Config struct {
	// Backend is one of "badger", "sqlite" or "file".
	// Default: "badger"
	Backend string

	// Dir is the index directory.
	Dir string

	// GCInterval is the interval between value log GC runs (badger only).
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the value log discard ratio (badger only).
	// Default: 0.5
	GCThreshold float64

	// SyncWrites fsyncs every write instead of only on Sync.
	// Default: false
	SyncWrites bool
}

// DefaultConfig returns the default index configuration.
func DefaultConfig(dir string) Config {
	return Config{
		Backend:     BackendBadger,
		Dir:         dir,
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		SyncWrites:  false,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendBadger, BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("unknown index backend %q", c.Backend)
	}
	if c.Dir == "" {
		return errors.New("index dir is required")
	}
	if c.Backend == BackendBadger {
		if c.GCInterval <= 0 {
			return errors.New("gc interval must be positive")
		}
		if c.GCThreshold <= 0 || c.GCThreshold >= 1 {
			return errors.New("gc threshold must be in (0, 1)")
		}
	}
	return nil
}
