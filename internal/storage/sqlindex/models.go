package sqlindex

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// GenerationModel is a row of the generations table.
type GenerationModel struct {
	bun.BaseModel `bun:"table:generations"`

	ID          string `bun:"id,pk"`
	State       string `bun:"state,notnull"`
	CreatedAt   int64  `bun:"created_at,notnull"`
	SealedAt    int64  `bun:"sealed_at,notnull,default:0"`
	RunID       string `bun:"run_id,notnull"`
	Mode        string `bun:"mode,notnull"`
	Files       int    `bun:"files,notnull,default:0"`
	Copied      int    `bun:"copied,notnull,default:0"`
	Referenced  int    `bun:"referenced,notnull,default:0"`
	Fallbacks   int    `bun:"fallbacks,notnull,default:0"`
	BytesCopied int64  `bun:"bytes_copied,notnull,default:0"`
}

// RefModel is a row of the refs table.
type RefModel struct {
	bun.BaseModel `bun:"table:refs"`

	Generation       string `bun:"generation,pk"`
	Path             string `bun:"path,pk"`
	TargetGeneration string `bun:"target_generation,notnull"`
	TargetPath       string `bun:"target_path,notnull"`
}

func generationToModel(g *domain.Generation) *GenerationModel {
	m := &GenerationModel{
		ID:          string(g.ID),
		State:       string(g.State),
		CreatedAt:   g.CreatedAt.UnixNano(),
		RunID:       g.RunID,
		Mode:        string(g.Mode),
		Files:       g.Files,
		Copied:      g.Copied,
		Referenced:  g.Referenced,
		Fallbacks:   g.Fallbacks,
		BytesCopied: g.BytesCopied,
	}
	if !g.SealedAt.IsZero() {
		m.SealedAt = g.SealedAt.UnixNano()
	}
	return m
}

func (m *GenerationModel) toDomain() *domain.Generation {
	g := &domain.Generation{
		ID:          domain.GenerationID(m.ID),
		State:       domain.GenerationState(m.State),
		CreatedAt:   time.Unix(0, m.CreatedAt).UTC(),
		RunID:       m.RunID,
		Mode:        domain.BackupMode(m.Mode),
		Files:       m.Files,
		Copied:      m.Copied,
		Referenced:  m.Referenced,
		Fallbacks:   m.Fallbacks,
		BytesCopied: m.BytesCopied,
	}
	if m.SealedAt != 0 {
		g.SealedAt = time.Unix(0, m.SealedAt).UTC()
	}
	return g
}
