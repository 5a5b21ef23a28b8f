// Package filelock keeps docrouter runs from overlapping across processes and
// places files on disk so that readers never observe a partial write.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockHeld is returned by Acquire when another process keeps the run lock
// until the context ends.
var ErrLockHeld = errors.New("run lock held by another process")

// RunLock is an exclusive, advisory lock on a lock file
type RunLock struct {
	flock *flock.Flock
	path  string
}

// NewRunLock creates a lock backed by the file at path. The file and its
// directory are created when the lock is first taken.
func NewRunLock(path string) *RunLock {
	return &RunLock{
		flock: flock.New(path),
		path:  path,
	}
}

// Path returns the lock file path
func (l *RunLock) Path() string {
	return l.path
}

// TryAcquire takes the lock without blocking. It reports false when another
// process holds it.
func (l *RunLock) TryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("try lock %s: %w", l.path, err)
	}
	return ok, nil
}

// Acquire retries every retryDelay until the lock is taken or ctx ends
func (l *RunLock) Acquire(ctx context.Context, retryDelay time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLockContext(ctx, retryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s", ErrLockHeld, l.path)
		}
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, l.path)
	}
	return nil
}

// Release drops the lock. Releasing a lock that is not held is a no-op.
func (l *RunLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return nil
}

// AtomicWrite replaces path with data. The data goes to a temp file in the
// target directory which is then renamed over path, so the previous content
// survives any failure.
func AtomicWrite(path string, data []byte) error {
	return writeAtomically(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// CopyFile copies src to dst, overwriting dst, using the same temp-and-rename
// placement as AtomicWrite. It returns the number of bytes copied.
func CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	var n int64
	err = writeAtomically(dst, func(w io.Writer) error {
		var cerr error
		n, cerr = io.Copy(w, in)
		return cerr
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func writeAtomically(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".docrouter-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	placed := false
	defer func() {
		if !placed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := fill(tmp); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	placed = true
	return nil
}
