package world

import (
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// Classifier decides whether a world file changed since a reference instant.
type Classifier struct {
	root string
}

// NewClassifier creates a classifier for the world rooted at root.
func NewClassifier(root string) *Classifier {
	return &Classifier{root: root}
}

// IsChanged reports whether the file at the world-relative path rel was
// modified at or after reference. Equality counts as changed so that a file
// written in the same minute as the previous label is never skipped.
func (c *Classifier) IsChanged(rel string, reference time.Time) (bool, error) {
	mod, err := c.ModTime(rel)
	if err != nil {
		return false, err
	}
	return !mod.Before(reference), nil
}

// ModTime returns the modification time of a world file, following symlinks.
func (c *Classifier) ModTime(rel string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(c.root, filepath.FromSlash(rel)))
	if err != nil {
		return time.Time{}, domain.ErrStat.WithDetails(rel).WithCause(err)
	}
	return info.ModTime(), nil
}
