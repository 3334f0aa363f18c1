// Package fs provides the small set of filesystem primitives the rest of
// quill needs: existence checks, atomic file writes, directory copies and a
// cross-process advisory lock. Adapted from the equivalent helpers in the
// tool this package's approach is modeled on.
package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/theckman/go-flock"
)

// IsRegular reports whether name exists and is a regular file.
func IsRegular(name string) (bool, error) {
	fi, err := os.Stat(name)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if fi.IsDir() {
		return false, fmt.Errorf("%q is a directory, expected a file", name)
	}
	return true, nil
}

// IsDir reports whether name exists and is a directory.
func IsDir(name string) (bool, error) {
	fi, err := os.Stat(name)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

// AtomicWriteFile writes data to path by writing to a sibling temp file and
// renaming it into place, so readers never observe a partially-written
// file. On rename failure across devices it falls back to a copy.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return errors.Wrap(err, "creating temp file for atomic write")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "writing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "chmod temp file")
	}

	if err := renameWithFallback(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "renaming temp file into place")
	}
	return nil
}

// renameWithFallback attempts to rename src to dest, falling back to a copy
// when the two paths are on different devices (common in CI containers with
// an overlay tmp mount).
func renameWithFallback(src, dest string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}

	if runtime.GOOS == "windows" && fi.IsDir() {
		if err := CopyDir(src, dest); err != nil {
			return err
		}
		return os.RemoveAll(src)
	}

	err = os.Rename(src, dest)
	if err == nil {
		return nil
	}

	terr, ok := err.(*os.LinkError)
	if !ok {
		return err
	}

	var cerr error
	if terr.Err == syscall.EXDEV {
		if fi.IsDir() {
			cerr = CopyDir(src, dest)
		} else {
			cerr = CopyFile(src, dest)
		}
	} else {
		return terr
	}

	if cerr != nil {
		return cerr
	}
	return os.RemoveAll(src)
}

// CopyDir recursively copies src to dest, preserving file modes.
func CopyDir(src, dest string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, fi.Mode()); err != nil {
		return err
	}

	dir, err := os.Open(src)
	if err != nil {
		return err
	}
	defer dir.Close()

	entries, err := dir.Readdir(-1)
	if err != nil {
		return err
	}

	for _, obj := range entries {
		if obj.Mode()&os.ModeSymlink != 0 {
			continue
		}
		srcPath := filepath.Join(src, obj.Name())
		destPath := filepath.Join(dest, obj.Name())
		if obj.IsDir() {
			if err := CopyDir(srcPath, destPath); err != nil {
				return err
			}
			continue
		}
		if err := CopyFile(srcPath, destPath); err != nil {
			return err
		}
	}
	return nil
}

// CopyFile copies src to dest, preserving permission bits.
func CopyFile(src, dest string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	destFile, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, srcFile); err != nil {
		return err
	}

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dest, info.Mode())
}

// Lock is an advisory, cross-process filesystem lock guarding mutation of a
// single file (the PinsStore in particular), backed by flock(2) semantics.
type Lock struct {
	f *flock.Flock
}

// NewLock builds a Lock over path+".lock".
func NewLock(path string) *Lock {
	return &Lock{f: flock.NewFlock(path + ".lock")}
}

// Acquire blocks (polling at the given interval) until the lock is held or
// timeout elapses. go-flock's TryLock has no context-aware variant, so the
// polling loop is hand-rolled here rather than delegated to the library.
func (l *Lock) Acquire(timeout, pollInterval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.f.TryLock()
		if err != nil {
			return errors.Wrap(err, "acquiring filesystem lock")
		}
		if locked {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("timed out acquiring filesystem lock")
		}
		time.Sleep(pollInterval)
	}
}

// Release unlocks l.
func (l *Lock) Release() error {
	return l.f.Unlock()
}
