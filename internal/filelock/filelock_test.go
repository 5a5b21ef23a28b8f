package filelock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewRunLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")

	lock := NewRunLock(lockPath)
	if lock == nil {
		t.Fatal("NewRunLock should not return nil")
	}
	if lock.Path() != lockPath {
		t.Errorf("Expected lock path %s, got %s", lockPath, lock.Path())
	}
}

func TestTryAcquireExcludesSecondHolder(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")

	first := NewRunLock(lockPath)
	second := NewRunLock(lockPath)

	ok, err := first.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if !ok {
		t.Fatal("First TryAcquire should succeed")
	}

	ok, err = second.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if ok {
		t.Error("Second TryAcquire should fail while the lock is held")
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	ok, err = second.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if !ok {
		t.Error("TryAcquire should succeed after release")
	}
	second.Release()
}

func TestTryAcquireCreatesDirectory(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "state", "nested", "run.lock")

	lock := NewRunLock(lockPath)
	ok, err := lock.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if !ok {
		t.Fatal("TryAcquire should succeed")
	}
	defer lock.Release()

	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("Lock file should exist: %v", err)
	}
}

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")

	holder := NewRunLock(lockPath)
	if ok, err := holder.TryAcquire(); err != nil || !ok {
		t.Fatalf("holder TryAcquire: ok=%v err=%v", ok, err)
	}
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := NewRunLock(lockPath).Acquire(ctx, 10*time.Millisecond)
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("Expected ErrLockHeld, got %v", err)
	}
}

func TestAcquireAfterRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "run.lock")

	holder := NewRunLock(lockPath)
	if ok, err := holder.TryAcquire(); err != nil || !ok {
		t.Fatalf("holder TryAcquire: ok=%v err=%v", ok, err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		holder.Release()
	}()

	waiter := NewRunLock(lockPath)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := waiter.Acquire(ctx, 5*time.Millisecond); err != nil {
		t.Fatalf("Acquire should succeed once released: %v", err)
	}
	waiter.Release()
}

func TestReleaseWithoutAcquire(t *testing.T) {
	lock := NewRunLock(filepath.Join(t.TempDir(), "run.lock"))
	if err := lock.Release(); err != nil {
		t.Errorf("Release of an unheld lock should be a no-op, got %v", err)
	}
}

func TestAtomicWrite(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "scan.xml")

	content := []byte("<FileAttributes></FileAttributes>")
	if err := AtomicWrite(targetPath, content); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	got, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Expected content %q, got %q", content, got)
	}
}

func TestAtomicWriteOverwrite(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "scan.xml")
	if err := os.WriteFile(targetPath, []byte("old"), 0600); err != nil {
		t.Fatalf("Failed to write initial file: %v", err)
	}

	if err := AtomicWrite(targetPath, []byte("new")); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	got, _ := os.ReadFile(targetPath)
	if string(got) != "new" {
		t.Errorf("Expected content %q, got %q", "new", got)
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		t.Fatalf("Failed to stat file: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("Expected permissions 0644, got %v", info.Mode().Perm())
	}
}

func TestAtomicWriteCreatesDirectory(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "archive", "2026", "scan.xml")

	if err := AtomicWrite(targetPath, []byte("x")); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}
	if _, err := os.Stat(targetPath); err != nil {
		t.Errorf("File should exist: %v", err)
	}
}

func TestAtomicWriteNoTempFileLeftBehind(t *testing.T) {
	tmpDir := t.TempDir()
	if err := AtomicWrite(filepath.Join(tmpDir, "scan.xml"), []byte("x")); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read directory: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "scan.xml" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only scan.xml, found %v", names)
	}
}

func TestConcurrentAtomicWrites(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "scan.xml")

	const goroutines = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			if err := AtomicWrite(targetPath, []byte{byte('A' + id)}); err != nil {
				t.Errorf("AtomicWrite failed for goroutine %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 byte, got %q", got)
	}
}

func TestCopyFile(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "in.tif")
	dst := filepath.Join(tmpDir, "out", "in.tif")
	data := []byte("II*\x00\x08\x00\x00\x00image")
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	n, err := CopyFile(src, dst)
	if err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("Expected %d bytes copied, got %d", len(data), n)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != string(data) {
		t.Errorf("Copy differs from source")
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("Source should remain after copy: %v", err)
	}
}

func TestCopyFileOverwrites(t *testing.T) {
	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "in.tif")
	dst := filepath.Join(tmpDir, "dst.tif")
	os.WriteFile(src, []byte("fresh"), 0644)
	os.WriteFile(dst, []byte("stale content"), 0644)

	if _, err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "fresh" {
		t.Errorf("Expected overwritten content, got %q", got)
	}
}

func TestCopyFileMissingSource(t *testing.T) {
	tmpDir := t.TempDir()
	dst := filepath.Join(tmpDir, "dst.tif")

	_, err := CopyFile(filepath.Join(tmpDir, "missing.tif"), dst)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("Destination should not be created when the source is missing")
	}
}
