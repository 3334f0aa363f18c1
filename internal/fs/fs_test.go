package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsRegularAndIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if ok, err := IsRegular(file); err != nil || !ok {
		t.Fatalf("IsRegular(file) = %v, %v", ok, err)
	}
	if ok, err := IsDir(dir); err != nil || !ok {
		t.Fatalf("IsDir(dir) = %v, %v", ok, err)
	}
	if ok, err := IsRegular(filepath.Join(dir, "missing")); err != nil || ok {
		t.Fatalf("IsRegular(missing) = %v, %v, want false, nil", ok, err)
	}
	if _, err := IsRegular(dir); err == nil {
		t.Fatal("expected IsRegular on a directory to error")
	}
}

func TestAtomicWriteFileReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")

	if err := AtomicWriteFile(path, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWriteFile(path, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("expected %q, got %q", "second", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestCopyDirPreservesTree(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "copy")
	if err := CopyDir(src, dest); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	if err != nil {
		t.Fatalf("expected nested file to be copied: %v", err)
	}
	if string(got) != "b" {
		t.Fatalf("expected %q, got %q", "b", got)
	}
}

func TestLockAcquireTimesOutWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")

	first := NewLock(path)
	if err := first.Acquire(time.Second, time.Millisecond); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	second := NewLock(path)
	err := second.Acquire(20*time.Millisecond, 5*time.Millisecond)
	if err == nil {
		t.Fatal("expected a second Acquire against an already-held lock to time out")
	}
}

func TestLockAcquireReleaseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")
	l := NewLock(path)
	if err := l.Acquire(time.Second, time.Millisecond); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	again := NewLock(path)
	if err := again.Acquire(time.Second, time.Millisecond); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again.Release()
}
