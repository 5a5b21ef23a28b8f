// Package watcher wakes the ingestion loop when scanned images land in the
// watch folder, so serve mode does not have to wait for the next poll tick.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettleDelay is how long a file must stay quiet before a wakeup fires.
// Scanners write images in several chunks.
const DefaultSettleDelay = 2 * time.Second

// FolderWatcher reports activity on *.tif files in a single directory.
// Bursts of events are coalesced into one wakeup once the folder settles.
type FolderWatcher struct {
	watcher *fsnotify.Watcher
	wake    chan struct{}
	errors  chan error
	done    chan struct{}
	dir     string
	ext     string

	mu          sync.Mutex
	settleDelay time.Duration
	timer       *time.Timer
	closed      bool
}

// New starts watching dir for files with the given extension (e.g. ".tif").
// The directory must exist.
func New(dir, ext string) (*FolderWatcher, error) {
	dir = filepath.Clean(dir)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	fw := &FolderWatcher{
		watcher:     w,
		wake:        make(chan struct{}, 1),
		errors:      make(chan error, 10),
		done:        make(chan struct{}),
		dir:         dir,
		ext:         ext,
		settleDelay: DefaultSettleDelay,
	}
	go fw.processEvents()
	return fw, nil
}

func (fw *FolderWatcher) processEvents() {
	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			default:
			}
		}
	}
}

func (fw *FolderWatcher) handleEvent(event fsnotify.Event) {
	if !fw.matches(event.Name) {
		return
	}
	// Remove and Rename fire on the old name; the router deleting a file
	// must not trigger another run.
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
		return
	}
	fw.schedule()
}

func (fw *FolderWatcher) matches(path string) bool {
	if fw.ext == "" {
		return true
	}
	return strings.EqualFold(filepath.Ext(path), fw.ext)
}

// schedule restarts the settle timer
func (fw *FolderWatcher) schedule() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return
	}
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.settleDelay, fw.fire)
}

func (fw *FolderWatcher) fire() {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return
	}
	fw.timer = nil
	fw.mu.Unlock()

	select {
	case fw.wake <- struct{}{}:
	default:
		// a wakeup is already queued
	}
}

// Wake delivers one value per settled burst of activity
func (fw *FolderWatcher) Wake() <-chan struct{} {
	return fw.wake
}

// Errors returns the channel for receiving watcher errors
func (fw *FolderWatcher) Errors() <-chan error {
	return fw.errors
}

// Dir returns the watched directory
func (fw *FolderWatcher) Dir() string {
	return fw.dir
}

// SetSettleDelay changes the quiet period. Call it before files arrive.
func (fw *FolderWatcher) SetSettleDelay(d time.Duration) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.settleDelay = d
}

// Close stops the watcher and releases resources
func (fw *FolderWatcher) Close() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	if fw.timer != nil {
		fw.timer.Stop()
		fw.timer = nil
	}
	fw.mu.Unlock()

	close(fw.done)
	return fw.watcher.Close()
}
