// Package unknown selects the holding folder for documents that could not be
// classified or indexed.
//
// Folders live directly under a base directory and are named with the time they
// were first needed ("2006-01-02 150405"). A folder is reused for the rest of
// the day until it holds the configured number of files, then a new one is
// started. The choice is recomputed for every document and is not atomic across
// processes: two writers may both fill the same folder slightly past its limit.
package unknown

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/harrison/docrouter/internal/models"
)

const (
	dayLayout    = "2006-01-02"
	folderLayout = "2006-01-02 150405"
)

// Allocator picks unknown-tree folders. Now defaults to time.Now.
type Allocator struct {
	Now func() time.Time
}

// NewAllocator returns an Allocator using the wall clock
func NewAllocator() *Allocator {
	return &Allocator{Now: time.Now}
}

func (a *Allocator) now() time.Time {
	if a == nil || a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// FolderName returns the timestamped folder name for t
func FolderName(t time.Time) string {
	return t.Format(folderLayout)
}

type candidate struct {
	name    string
	count   int
	modTime time.Time
}

// Allocate returns the folder under base that should receive the next document and
// how many files it already holds. When no folder from today has room, a fresh
// timestamped name with a count of 0 is returned; the folder itself is not created.
func (a *Allocator) Allocate(base string, limit int) (models.UnknownFolderState, error) {
	now := a.now()
	state := models.UnknownFolderState{
		WorkingFolderName: FolderName(now),
		FileCount:         0,
	}

	dir := CleanDirectoryName(base)
	if dir == "" {
		return state, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("list unknown folders in %s: %w", dir, err)
	}

	today := now.Format(dayLayout)
	taken := make(map[string]bool, len(entries))
	var candidates []candidate
	for _, entry := range entries {
		name := entry.Name()
		taken[name] = true
		if !entry.IsDir() {
			continue
		}
		if len(name) <= len(dayLayout) || name[:len(dayLayout)] != today {
			continue
		}

		count, err := countFiles(filepath.Join(dir, name))
		if err != nil {
			return state, err
		}
		if count >= limit {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return state, fmt.Errorf("stat unknown folder %s: %w", name, err)
		}
		candidates = append(candidates, candidate{name: name, count: count, modTime: info.ModTime()})
	}

	if len(candidates) == 0 {
		state.WorkingFolderName = freshName(now, taken)
		return state, nil
	}

	// Most recently written folder wins.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})

	state.WorkingFolderName = candidates[0].name
	state.FileCount = candidates[0].count
	return state, nil
}

// freshName returns the folder name for now, moved forward a second at a time
// past names already present under the base. A full folder created in the
// current second is never handed out again.
func freshName(now time.Time, taken map[string]bool) string {
	name := FolderName(now)
	for taken[name] {
		now = now.Add(time.Second)
		name = FolderName(now)
	}
	return name
}

// countFiles counts the regular files directly inside dir
func countFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("count files in %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			n++
		}
	}
	return n, nil
}

// CleanDirectoryName strips a single trailing path separator. It never fails.
func CleanDirectoryName(dir string) string {
	if len(dir) > 1 && (strings.HasSuffix(dir, "/") || strings.HasSuffix(dir, `\`)) {
		return dir[:len(dir)-1]
	}
	return dir
}
