package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

func TestAcquireAndRelease(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backups")

	l, err := TryAcquire(root)
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if l.Path() != filepath.Join(root, FileName) {
		t.Errorf("Path() = %q", l.Path())
	}
	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock file content = %q, want pid", got)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}

	again, err := TryAcquire(root)
	if err != nil {
		t.Fatalf("TryAcquire() after release error = %v", err)
	}
	again.Release()
}

// flock locks belong to the open file description, so a second open in
// the same process contends like another process would.
func TestAcquire_Contended(t *testing.T) {
	root := t.TempDir()
	first, err := TryAcquire(root)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Release()

	if _, err := TryAcquire(root); !errors.Is(err, domain.ErrStoreLocked) {
		t.Errorf("TryAcquire() while held error = %v, want ErrStoreLocked", err)
	}

	start := time.Now()
	_, err = Acquire(context.Background(), root, 150*time.Millisecond)
	if !errors.Is(err, domain.ErrStoreLocked) {
		t.Errorf("Acquire() with timeout error = %v, want ErrStoreLocked", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("Acquire() returned before the wait elapsed")
	}
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	root := t.TempDir()
	first, err := TryAcquire(root)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		first.Release()
	}()

	second, err := Acquire(context.Background(), root, 2*time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	second.Release()
}

func TestRelease_Nil(t *testing.T) {
	var l *Lock
	if err := l.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
}
