package world

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// Catalog enumerates the files of a world directory.
type Catalog struct {
	root    string
	exclude []string
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithExclude skips entries matching any of the glob patterns. A pattern is
// matched against the slash-separated relative path and against the base name.
// An excluded directory is not descended into.
func WithExclude(patterns ...string) CatalogOption {
	return func(c *Catalog) {
		c.exclude = append(c.exclude, patterns...)
	}
}

// NewCatalog creates a catalog rooted at root.
func NewCatalog(root string, opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{root: root}
	for _, opt := range opts {
		opt(c)
	}
	for _, p := range c.exclude {
		if _, err := path.Match(p, ""); err != nil {
			return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("exclude pattern %q", p)).WithCause(err)
		}
	}
	return c, nil
}

// Root returns the world directory.
func (c *Catalog) Root() string {
	return c.root
}

// ListFiles returns every file under root as sorted, slash-separated
// relative paths.
func ListFiles(root string) ([]string, error) {
	c, err := NewCatalog(root)
	if err != nil {
		return nil, err
	}
	return c.List(context.Background())
}

// List walks the world. Regular files and symlinks resolving to regular
// files are returned; directories are implicit. Any unreadable directory
// aborts the walk with ErrAccess.
func (c *Catalog) List(ctx context.Context) ([]string, error) {
	info, err := os.Stat(c.root)
	if err != nil {
		return nil, domain.ErrAccess.WithDetails(c.root).WithCause(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrAccess.WithDetails(c.root + " is not a directory")
	}

	var paths []string
	err = filepath.WalkDir(c.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return domain.ErrAccess.WithDetails(p).WithCause(err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == c.root {
			return nil
		}

		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return domain.ErrAccess.WithDetails(p).WithCause(err)
		}
		rel = filepath.ToSlash(rel)

		if c.excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch {
		case d.IsDir():
			return nil
		case d.Type().IsRegular():
			paths = append(paths, rel)
		case d.Type()&fs.ModeSymlink != 0:
			// Follow the link; only links to regular files are snapshotted.
			target, err := os.Stat(p)
			if err == nil && target.Mode().IsRegular() {
				paths = append(paths, rel)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

func (c *Catalog) excluded(rel string) bool {
	base := path.Base(rel)
	for _, p := range c.exclude {
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Nested reports whether a and b are the same directory or one contains the
// other.
func Nested(a, b string) (bool, error) {
	aa, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	bb, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return within(aa, bb) || within(bb, aa), nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
