// Package sqlindex implements storage.Index on SQLite through bun.
//
// Schema:
//
//	generations(id PK, state, created_at, sealed_at, run_id, mode, counters...)
//	refs(generation, path, target_generation, target_path, PK(generation, path))
package sqlindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/yndnr/worldsnap/internal/core/domain"
	"github.com/yndnr/worldsnap/internal/storage"
)

// DatabaseFile is the database file name inside the index directory.
const DatabaseFile = "index.db"

// Index is a bun-backed storage.Index.
type Index struct {
	db     *bun.DB
	logger *slog.Logger

	closeOnce sync.Once
}

var _ storage.Index = (*Index)(nil)

// Open opens (or creates) the SQLite index in dir.
func Open(ctx context.Context, dir string, syncWrites bool, logger *slog.Logger) (*Index, error) {
	if dir == "" {
		return nil, fmt.Errorf("sqlindex: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, domain.ErrStorage.WithDetails("sqlindex: create dir").WithCause(err)
	}

	path := filepath.Join(dir, DatabaseFile)
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.ErrStorage.WithDetails("sqlindex: open").WithCause(err)
	}
	// PRAGMAs are per connection; keep exactly one.
	sqlDB.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, sqlDB, syncWrites); err != nil {
		sqlDB.Close()
		return nil, domain.ErrStorage.WithDetails("sqlindex: pragmas").WithCause(err)
	}

	idx := &Index{
		db:     bun.NewDB(sqlDB, sqlitedialect.New()),
		logger: logger,
	}
	if err := idx.createSchema(ctx); err != nil {
		idx.db.Close()
		return nil, domain.ErrStorage.WithDetails("sqlindex: schema").WithCause(err)
	}

	logger.Debug("sqlite index opened", "path", path)
	return idx, nil
}

func applyPragmas(ctx context.Context, db *sql.DB, syncWrites bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	if syncWrites {
		pragmas[2] = "PRAGMA synchronous = FULL"
	}
	for _, p := range pragmas {
		rows, err := db.QueryContext(ctx, p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		rows.Close()
	}
	return nil
}

func (x *Index) createSchema(ctx context.Context) error {
	if _, err := x.db.NewCreateTable().
		Model((*GenerationModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}
	if _, err := x.db.NewCreateTable().
		Model((*RefModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}
	_, err := x.db.NewCreateIndex().
		Model((*RefModel)(nil)).
		Index("refs_target_idx").
		Column("target_generation", "target_path").
		IfNotExists().
		Exec(ctx)
	return err
}

func generationExists(ctx context.Context, idb bun.IDB, id domain.GenerationID) error {
	ok, err := idb.NewSelect().
		Model((*GenerationModel)(nil)).
		Where("id = ?", string(id)).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNoSuchGeneration.WithDetails(string(id))
	}
	return nil
}

// CreateGeneration inserts a generation row.
func (x *Index) CreateGeneration(ctx context.Context, gen *domain.Generation) error {
	err := x.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := generationExists(ctx, tx, gen.ID)
		if err == nil {
			return domain.ErrDuplicateGeneration.WithDetails(string(gen.ID))
		}
		if !errors.Is(err, domain.ErrNoSuchGeneration) {
			return err
		}
		_, err = tx.NewInsert().Model(generationToModel(gen)).Exec(ctx)
		return err
	})
	return wrap(err)
}

// UpdateGeneration replaces the metadata of an existing generation.
func (x *Index) UpdateGeneration(ctx context.Context, gen *domain.Generation) error {
	res, err := x.db.NewUpdate().
		Model(generationToModel(gen)).
		WherePK().
		Exec(ctx)
	if err != nil {
		return wrap(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNoSuchGeneration.WithDetails(string(gen.ID))
	}
	return nil
}

// GetGeneration returns a generation's metadata.
func (x *Index) GetGeneration(ctx context.Context, id domain.GenerationID) (*domain.Generation, error) {
	var m GenerationModel
	err := x.db.NewSelect().
		Model(&m).
		Where("id = ?", string(id)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoSuchGeneration.WithDetails(string(id))
	}
	if err != nil {
		return nil, wrap(err)
	}
	return m.toDomain(), nil
}

// ListGenerations returns all generations in ascending id order.
func (x *Index) ListGenerations(ctx context.Context) ([]*domain.Generation, error) {
	var models []GenerationModel
	if err := x.db.NewSelect().
		Model(&models).
		Order("id ASC").
		Scan(ctx); err != nil {
		return nil, wrap(err)
	}
	gens := make([]*domain.Generation, 0, len(models))
	for i := range models {
		gens = append(gens, models[i].toDomain())
	}
	return gens, nil
}

// DropGeneration deletes a generation and its references in one transaction.
func (x *Index) DropGeneration(ctx context.Context, id domain.GenerationID) error {
	err := x.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*RefModel)(nil)).Where("generation = ?", string(id)).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*GenerationModel)(nil)).Where("id = ?", string(id)).Exec(ctx); err != nil {
			return err
		}
		return nil
	})
	return wrap(err)
}

// PutRef upserts a reference.
func (x *Index) PutRef(ctx context.Context, gen domain.GenerationID, path string, ref domain.Reference) error {
	err := x.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := generationExists(ctx, tx, gen); err != nil {
			return err
		}
		_, err := tx.NewInsert().
			Model(&RefModel{
				Generation:       string(gen),
				Path:             path,
				TargetGeneration: string(ref.Generation),
				TargetPath:       ref.Path,
			}).
			On("CONFLICT (generation, path) DO UPDATE").
			Set("target_generation = EXCLUDED.target_generation").
			Set("target_path = EXCLUDED.target_path").
			Exec(ctx)
		return err
	})
	return wrap(err)
}

// GetRef returns the reference for path in gen.
func (x *Index) GetRef(ctx context.Context, gen domain.GenerationID, path string) (domain.Reference, error) {
	if err := generationExists(ctx, x.db, gen); err != nil {
		return domain.Reference{}, wrap(err)
	}
	var m RefModel
	err := x.db.NewSelect().
		Model(&m).
		Where("generation = ?", string(gen)).
		Where("path = ?", path).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reference{}, storage.ErrRefNotFound
	}
	if err != nil {
		return domain.Reference{}, wrap(err)
	}
	return domain.Reference{Generation: domain.GenerationID(m.TargetGeneration), Path: m.TargetPath}, nil
}

// ListRefs returns the reference table of gen.
func (x *Index) ListRefs(ctx context.Context, gen domain.GenerationID) (map[string]domain.Reference, error) {
	if err := generationExists(ctx, x.db, gen); err != nil {
		return nil, wrap(err)
	}
	var models []RefModel
	if err := x.db.NewSelect().
		Model(&models).
		Where("generation = ?", string(gen)).
		Scan(ctx); err != nil {
		return nil, wrap(err)
	}
	refs := make(map[string]domain.Reference, len(models))
	for _, m := range models {
		refs[m.Path] = domain.Reference{Generation: domain.GenerationID(m.TargetGeneration), Path: m.TargetPath}
	}
	return refs, nil
}

// Referrers returns every (generation, path) whose reference points at ref.
func (x *Index) Referrers(ctx context.Context, ref domain.Reference) (map[domain.GenerationID][]string, error) {
	var models []RefModel
	if err := x.db.NewSelect().
		Model(&models).
		Where("target_generation = ?", string(ref.Generation)).
		Where("target_path = ?", ref.Path).
		Order("generation ASC", "path ASC").
		Scan(ctx); err != nil {
		return nil, wrap(err)
	}
	out := make(map[domain.GenerationID][]string)
	for _, m := range models {
		g := domain.GenerationID(m.Generation)
		out[g] = append(out[g], m.Path)
	}
	return out, nil
}

// Sync checkpoints the write-ahead log into the database file.
func (x *Index) Sync(ctx context.Context) error {
	rows, err := x.db.QueryContext(ctx, "PRAGMA wal_checkpoint(FULL)")
	if err != nil {
		return wrap(err)
	}
	return rows.Close()
}

// Close closes the database.
func (x *Index) Close() error {
	var err error
	x.closeOnce.Do(func() {
		err = x.db.Close()
	})
	return err
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsDomainError(err, "") || errors.Is(err, storage.ErrRefNotFound) {
		return err
	}
	if errors.Is(err, sql.ErrConnDone) {
		return storage.ErrClosed
	}
	return domain.ErrStorage.WithDetails("sqlite").WithCause(err)
}
