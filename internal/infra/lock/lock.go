package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

// FileName is the lock file inside a store root. Dot-prefixed names are
// never generations.
const FileName = ".lock"

const (
	minBackoff = 50 * time.Millisecond
	maxBackoff = 1 * time.Second
)

// Lock is a held store lock.
type Lock struct {
	file *os.File
	path string
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// TryAcquire takes the exclusive lock on the store at root without waiting.
// It fails with ErrStoreLocked when another process holds it.
func TryAcquire(root string) (*Lock, error) {
	return Acquire(context.Background(), root, 0)
}

// Acquire takes the exclusive lock on the store at root, polling with
// backoff for up to wait. The store root is created if needed.
func Acquire(ctx context.Context, root string, wait time.Duration) (*Lock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, domain.ErrAccess.WithDetails(root).WithCause(err)
	}
	path := filepath.Join(root, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, domain.ErrAccess.WithDetails(path).WithCause(err)
	}

	err = flock(f)
	if err == nil {
		return held(f, path), nil
	}
	if !errors.Is(err, unix.EWOULDBLOCK) || wait <= 0 {
		f.Close()
		return nil, lockError(path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			f.Close()
			return nil, domain.ErrStoreLocked.WithDetails(fmt.Sprintf("%s after %v", path, wait)).WithCause(ctx.Err())
		case <-time.After(backoff):
			err = flock(f)
			if err == nil {
				return held(f, path), nil
			}
			if !errors.Is(err, unix.EWOULDBLOCK) {
				f.Close()
				return nil, lockError(path, err)
			}
			backoff = min(backoff*2, maxBackoff)
		}
	}
}

func flock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func lockError(path string, err error) error {
	if errors.Is(err, unix.EWOULDBLOCK) {
		return domain.ErrStoreLocked.WithDetails(path + " (another worldsnap process is running)")
	}
	return domain.ErrAccess.WithDetails(path).WithCause(err)
}

// held records the owner pid in the lock file for operators.
func held(f *os.File, path string) *Lock {
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{file: f, path: path}
}

// Release drops the lock. It is safe to call on a nil or released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return f.Close()
}
