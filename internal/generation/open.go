package generation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/yndnr/worldsnap/internal/storage"
	"github.com/yndnr/worldsnap/internal/storage/manifest"
	"github.com/yndnr/worldsnap/internal/storage/sqlindex"
)

// IndexDir is the index directory name inside a store root. Dot-prefixed
// names are never generations.
const IndexDir = ".index"

// DefaultIndexDir returns the index directory of the store at root.
func DefaultIndexDir(root string) string {
	return filepath.Join(root, IndexDir)
}

// OpenIndex opens the index backend selected by cfg.Backend.
func OpenIndex(ctx context.Context, cfg storage.Config, logger *slog.Logger) (storage.Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	switch cfg.Backend {
	case storage.BackendBadger:
		return storage.NewBadgerIndex(cfg, logger)
	case storage.BackendSQLite:
		return sqlindex.Open(ctx, cfg.Dir, cfg.SyncWrites, logger)
	case storage.BackendFile:
		return manifest.Open(cfg.Dir, logger)
	default:
		return nil, fmt.Errorf("open index: unknown backend %q", cfg.Backend)
	}
}
