package world

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "dir/nested/c.dat", "c")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ListFiles(root)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	want := []string{"a.txt", "b.txt", "dir/nested/c.dat"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListFiles() = %v, want %v", got, want)
	}
}

func TestListFiles_Empty(t *testing.T) {
	got, err := ListFiles(t.TempDir())
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListFiles() = %v, want empty", got)
	}
}

func TestListFiles_MissingRoot(t *testing.T) {
	_, err := ListFiles(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, domain.ErrAccess) {
		t.Errorf("ListFiles() error = %v, want ErrAccess", err)
	}
}

func TestListFiles_UnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root := t.TempDir()
	writeFile(t, root, "ok.txt", "ok")
	locked := filepath.Join(root, "locked")
	writeFile(t, root, "locked/secret.txt", "s")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	_, err := ListFiles(root)
	if !errors.Is(err, domain.ErrAccess) {
		t.Errorf("ListFiles() error = %v, want ErrAccess", err)
	}
}

func TestCatalog_Symlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.txt", "r")
	if err := os.Symlink("real.txt", filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink("nowhere", filepath.Join(root, "dangling")); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "d"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("d", filepath.Join(root, "dirlink")); err != nil {
		t.Fatal(err)
	}

	got, err := ListFiles(root)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	want := []string{"link.txt", "real.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListFiles() = %v, want %v", got, want)
	}
}

func TestCatalog_Exclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "k")
	writeFile(t, root, "session.lock", "l")
	writeFile(t, root, "cache/x.bin", "x")
	writeFile(t, root, "region/r.0.0.mca", "r")
	writeFile(t, root, "region/old/r.1.1.mca", "r")

	c, err := NewCatalog(root, WithExclude("*.lock", "cache", "region/old"))
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	got, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"keep.txt", "region/r.0.0.mca"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestNewCatalog_BadPattern(t *testing.T) {
	_, err := NewCatalog(t.TempDir(), WithExclude("[unterminated"))
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("NewCatalog() error = %v, want ErrInvalidArgument", err)
	}
}

func TestNested(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"same", root, root, true},
		{"child", root, filepath.Join(root, "store"), true},
		{"parent", filepath.Join(root, "world", "x"), filepath.Join(root, "world"), true},
		{"siblings", filepath.Join(root, "world"), filepath.Join(root, "backups"), false},
		{"prefix sibling", filepath.Join(root, "world"), filepath.Join(root, "world2"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Nested(tt.a, tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Nested(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestClassifier_IsChanged(t *testing.T) {
	root := t.TempDir()
	p := writeFile(t, root, "f.txt", "x")
	ref := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewClassifier(root)

	tests := []struct {
		name  string
		mtime time.Time
		want  bool
	}{
		{"before reference", ref.Add(-time.Minute), false},
		{"equal to reference", ref, true},
		{"after reference", ref.Add(time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.Chtimes(p, tt.mtime, tt.mtime); err != nil {
				t.Fatal(err)
			}
			got, err := c.IsChanged("f.txt", ref)
			if err != nil {
				t.Fatalf("IsChanged() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsChanged() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifier_MissingFile(t *testing.T) {
	_, err := NewClassifier(t.TempDir()).IsChanged("gone.txt", time.Now())
	if !errors.Is(err, domain.ErrStat) {
		t.Errorf("IsChanged() error = %v, want ErrStat", err)
	}
}

func TestCopier_Copy(t *testing.T) {
	src := writeFile(t, t.TempDir(), "src.txt", "hello world")
	if err := os.Chmod(src, 0o600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-24 * time.Hour)
	if err := os.Chtimes(src, old, old); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(t.TempDir(), "a", "b", "dst.txt")

	before := time.Now().Add(-time.Second)
	n, err := NewCopier(0).Copy(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if n != int64(len("hello world")) {
		t.Errorf("Copy() n = %d", n)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "hello world" {
		t.Fatalf("ReadFile() = %q, %v", data, err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	if info.ModTime().Before(before) {
		t.Errorf("copy kept the source mtime %v", info.ModTime())
	}
}

func TestCopier_RateLimited(t *testing.T) {
	src := writeFile(t, t.TempDir(), "src.bin", string(make([]byte, 64<<10)))
	dst := filepath.Join(t.TempDir(), "dst.bin")

	n, err := NewCopier(1<<30).Copy(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if n != 64<<10 {
		t.Errorf("Copy() n = %d, want %d", n, 64<<10)
	}
}

func TestCopier_Cancelled(t *testing.T) {
	src := writeFile(t, t.TempDir(), "src.txt", "data")
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewCopier(0).Copy(ctx, src, filepath.Join(dir, "dst.txt")); err == nil {
		t.Fatal("Copy() with cancelled context should fail")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestCopier_LinkOrCopy(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src.txt", "payload")
	dst := filepath.Join(dir, "gen", "dst.txt")
	writeFile(t, dir, "gen/dst.txt", "stale")

	if _, _, err := NewCopier(0).LinkOrCopy(context.Background(), src, dst); err != nil {
		t.Fatalf("LinkOrCopy() error = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "payload" {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
	// The destination must survive removal of the source.
	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("destination lost with source: %v", err)
	}
}

func TestEmpty(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "d/b.txt", "b")

	if err := Empty(root); err != nil {
		t.Fatalf("Empty() error = %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries left: %v", entries)
	}

	missing := filepath.Join(root, "new")
	if err := Empty(missing); err != nil {
		t.Fatalf("Empty(missing) error = %v", err)
	}
	if info, err := os.Stat(missing); err != nil || !info.IsDir() {
		t.Errorf("Empty should create a missing directory")
	}
}
