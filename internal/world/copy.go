package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// copyChunk is the unit of I/O and of rate limiter accounting.
const copyChunk = 256 << 10

// Copier copies files between the world and the store.
type Copier struct {
	limiter *rate.Limiter
}

// NewCopier creates a copier. bytesPerSecond <= 0 disables throttling.
func NewCopier(bytesPerSecond int64) *Copier {
	c := &Copier{}
	if bytesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), copyChunk)
	}
	return c
}

// Copy writes the contents of src to dst atomically (temp file, fsync,
// rename), creating dst's parent directories. The permission bits of src are
// kept; the modification time of dst is the time of the copy.
func (c *Copier) Copy(ctx context.Context, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, domain.ErrAccess.WithDetails(src).WithCause(err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, domain.ErrAccess.WithDetails(src).WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, domain.ErrAccess.WithDetails(dst).WithCause(err)
	}

	n, err := c.writeAtomic(ctx, in, dst, info.Mode().Perm())
	if err != nil {
		return n, domain.ErrAccess.WithDetails(dst).WithCause(err)
	}
	return n, nil
}

// LinkOrCopy hard-links src to dst, falling back to a copy when linking is
// not possible (cross-device, unsupported filesystem). It reports whether the
// bytes were copied.
func (c *Copier) LinkOrCopy(ctx context.Context, src, dst string) (copied bool, n int64, err error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, 0, domain.ErrAccess.WithDetails(dst).WithCause(err)
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, 0, domain.ErrAccess.WithDetails(dst).WithCause(err)
	}
	if err := os.Link(src, dst); err == nil {
		return false, 0, nil
	}
	n, err = c.Copy(ctx, src, dst)
	return true, n, err
}

func (c *Copier) writeAtomic(ctx context.Context, r io.Reader, dst string, perm os.FileMode) (n int64, err error) {
	f, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	buf := make([]byte, copyChunk)
	for {
		if err = ctx.Err(); err != nil {
			return n, err
		}
		m, rerr := r.Read(buf)
		if m > 0 {
			if c.limiter != nil {
				if err = c.limiter.WaitN(ctx, m); err != nil {
					return n, err
				}
			}
			if _, err = f.Write(buf[:m]); err != nil {
				return n, fmt.Errorf("write temp file: %w", err)
			}
			n += int64(m)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			err = rerr
			return n, fmt.Errorf("read source: %w", err)
		}
	}

	if err = f.Sync(); err != nil {
		return n, fmt.Errorf("fsync temp file: %w", err)
	}
	if err = f.Chmod(perm); err != nil {
		return n, fmt.Errorf("chmod temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return n, fmt.Errorf("rename temp to target: %w", err)
	}
	return n, nil
}

// Empty removes every entry inside dir, creating dir if it does not exist.
func Empty(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.ErrAccess.WithDetails(dir).WithCause(err)
		}
		return nil
	}
	if err != nil {
		return domain.ErrAccess.WithDetails(dir).WithCause(err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return domain.ErrAccess.WithDetails(filepath.Join(dir, e.Name())).WithCause(err)
		}
	}
	return nil
}
