package reload

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type fileState struct {
	modTime time.Time
	size    int64
	missing bool
}

// Watcher keeps track of state files and detects modifications made by
// other processes.
type Watcher struct {
	mu    sync.Mutex
	paths []string
	files map[string]fileState
}

// NewWatcher builds a watcher tracking the given files. Files that do not
// exist yet are tracked and reported once they appear.
func NewWatcher(paths ...string) *Watcher {
	watcher := &Watcher{paths: uniquePaths(absPaths(paths))}
	watcher.Update()
	return watcher
}

// Paths returns the tracked files.
func (w *Watcher) Paths() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.paths...)
}

// Update snapshots the current state of every tracked file. Call it after
// writing a tracked file so the write is not reported as external.
func (w *Watcher) Update() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	states := make(map[string]fileState, len(w.paths))
	for _, path := range w.paths {
		states[path] = stat(path)
	}
	w.files = states
}

// Check reports the files that changed since the last snapshot.
func (w *Watcher) Check() []string {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0)
	for path, state := range w.files {
		current := stat(path)
		if current.missing && state.missing {
			continue
		}
		if current.missing != state.missing || current.modTime.After(state.modTime) || current.size != state.size {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}

func stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fileState{missing: true}
	}
	return fileState{modTime: info.ModTime(), size: info.Size()}
}

func absPaths(paths []string) []string {
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		result = append(result, path)
	}
	return result
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		result = append(result, path)
	}
	return result
}
