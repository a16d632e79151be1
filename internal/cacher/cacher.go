// Package cacher implements the source cacher collaborator named in
// spec.md §6: it tracks which sources are expected to have a cache file on
// disk and reconciles that expectation against what's actually present,
// the same fsnotify-driven watch-and-debounce idiom the teacher uses to
// watch its JSONL file for external changes (cmd/bd/daemon_watcher.go),
// narrowed here to presence-only reconciliation — the coordinator never
// interprets a cache file's contents (spec.md §6).
package cacher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/coordinatordb/coord/internal/types"
)

// Cacher is the narrow interface the coordinator's feedback handler calls
// when a worker reports a source instance created or dropped.
type Cacher interface {
	AddSource(id types.GlobalId, connector string) error
	DropSource(id types.GlobalId) error
}

// DirCacher watches Dir for cache files named after a source's GlobalId and
// logs structured warnings when what's on disk drifts from what the
// coordinator believes should be cached.
type DirCacher struct {
	Dir    string
	Logger *slog.Logger

	mu       sync.Mutex
	expected map[string]string // id.String() -> connector type
	watcher  *fsnotify.Watcher
}

// NewDirCacher creates a cacher rooted at dir, creating the directory if
// needed.
func NewDirCacher(dir string, logger *slog.Logger) (*DirCacher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &DirCacher{Dir: dir, Logger: logger, expected: make(map[string]string)}, nil
}

// AddSource records that id's cache file is expected to exist.
func (c *DirCacher) AddSource(id types.GlobalId, connector string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expected[id.String()] = connector
	return nil
}

// DropSource removes id from the expected set.
func (c *DirCacher) DropSource(id types.GlobalId) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.expected, id.String())
	return nil
}

// Start watches Dir for filesystem changes and reconciles on every event,
// plus once immediately, until ctx is canceled. Falls back to polling if
// fsnotify can't be set up, mirroring the teacher's watcher fallback.
func (c *DirCacher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.Logger.Warn("cacher: fsnotify unavailable, falling back to polling", "error", err)
		go c.pollLoop(ctx)
		return nil
	}
	if err := watcher.Add(c.Dir); err != nil {
		_ = watcher.Close()
		return err
	}
	c.watcher = watcher

	c.reconcile()
	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				c.reconcile()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.Logger.Warn("cacher: watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (c *DirCacher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.reconcile()
		case <-ctx.Done():
			return
		}
	}
}

// reconcile compares expected ids against files actually present in Dir,
// logging a warning for every mismatch in either direction. It does not
// create or delete files: cache population is a worker responsibility, the
// coordinator only observes.
func (c *DirCacher) reconcile() {
	c.mu.Lock()
	expected := make(map[string]string, len(c.expected))
	for k, v := range c.expected {
		expected[k] = v
	}
	c.mu.Unlock()

	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		c.Logger.Warn("cacher: failed to list cache directory", "dir", c.Dir, "error", err)
		return
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			present[e.Name()] = true
		}
	}

	for id, connector := range expected {
		if !present[id] {
			c.Logger.Warn("cacher: expected cache file missing", "source_id", id, "connector", connector, "path", filepath.Join(c.Dir, id))
		}
	}
	for name := range present {
		if _, ok := expected[name]; !ok {
			c.Logger.Warn("cacher: unexpected cache file present", "path", filepath.Join(c.Dir, name))
		}
	}
}
