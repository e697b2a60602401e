package domain

import (
	"crypto/rand"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// GenerationLayout is the time layout of a generation label.
// Labels sort lexicographically in chronological order.
const GenerationLayout = "2006-01-02T15-04"

// RecentTarget selects the most recent generation in restore requests.
const RecentTarget = "recent"

// GenerationID names one snapshot of the world.
type GenerationID string

// NewGenerationID formats t (truncated to the minute) as a generation label.
func NewGenerationID(t time.Time) GenerationID {
	return GenerationID(t.Format(GenerationLayout))
}

// ParseGenerationID validates s as a generation label.
func ParseGenerationID(s string) (GenerationID, error) {
	if _, err := time.Parse(GenerationLayout, s); err != nil {
		return "", ErrInvalidArgument.WithDetails(fmt.Sprintf("generation label %q", s)).WithCause(err)
	}
	return GenerationID(s), nil
}

// Time returns the instant the label denotes in loc.
func (g GenerationID) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(GenerationLayout, string(g), loc)
	if err != nil {
		return time.Time{}, ErrInvalidArgument.WithDetails(fmt.Sprintf("generation label %q", g)).WithCause(err)
	}
	return t, nil
}

// Before reports whether g sorts before other.
func (g GenerationID) Before(other GenerationID) bool {
	return g < other
}

func (g GenerationID) String() string {
	return string(g)
}

// Reference locates the physical bytes of a world-relative path.
// A reference whose Generation equals the owning generation, with the same
// path, is a physical copy.
type Reference struct {
	Generation GenerationID `json:"generation"`
	Path       string       `json:"path"`
}

// IsSelf reports whether r is a physical copy owned by gen at path p.
func (r Reference) IsSelf(gen GenerationID, p string) bool {
	return r.Generation == gen && r.Path == p
}

func (r Reference) String() string {
	return string(r.Generation) + ":" + r.Path
}

// CleanPath normalizes a world-relative path to the slash-separated form
// stored in the index. It rejects absolute paths and paths escaping the root.
func CleanPath(p string) (string, error) {
	p = filepath.ToSlash(p)
	if p == "" || strings.HasPrefix(p, "/") {
		return "", ErrInvalidArgument.WithDetails(fmt.Sprintf("path %q is not world-relative", p))
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrInvalidArgument.WithDetails(fmt.Sprintf("path %q escapes the world", p))
	}
	return c, nil
}

// GenerationState is the lifecycle state of a generation.
type GenerationState string

const (
	// StateProvisional marks a generation whose run has not finished.
	StateProvisional GenerationState = "provisional"

	// StateComplete marks a sealed generation.
	StateComplete GenerationState = "complete"
)

// Generation is the metadata recorded for one generation.
type Generation struct {
	ID        GenerationID    `json:"id"`
	State     GenerationState `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	SealedAt  time.Time       `json:"sealed_at,omitzero"`
	RunID     string          `json:"run_id"`
	Mode      BackupMode      `json:"mode,omitempty"`

	// Run counters, filled in when the generation is sealed.
	Files       int   `json:"files"`
	Copied      int   `json:"copied"`
	Referenced  int   `json:"referenced"`
	Fallbacks   int   `json:"fallbacks"`
	BytesCopied int64 `json:"bytes_copied"`
}

// IsComplete reports whether the generation has been sealed.
func (g *Generation) IsComplete() bool {
	return g.State == StateComplete
}

// BackupMode selects how a backup treats unchanged files.
type BackupMode string

const (
	// ModeFull copies every file.
	ModeFull BackupMode = "full"

	// ModeIterative copies changed files and references the rest.
	ModeIterative BackupMode = "iterative"
)

// ParseBackupMode parses a mode name. Empty means iterative.
func ParseBackupMode(s string) (BackupMode, error) {
	switch strings.ToLower(s) {
	case "", string(ModeIterative):
		return ModeIterative, nil
	case string(ModeFull):
		return ModeFull, nil
	default:
		return "", ErrInvalidArgument.WithDetails(fmt.Sprintf("backup mode %q", s))
	}
}

// NewRunID returns a new lowercase ULID identifying one invocation.
func NewRunID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return strings.ToLower(id.String()), nil
}

// IsRunID reports whether s is a run id produced by NewRunID.
func IsRunID(s string) bool {
	if len(s) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(s))
	return err == nil
}
