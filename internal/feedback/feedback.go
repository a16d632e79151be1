// Package feedback implements C7: it ingests FrontierUppers reports from
// workers, applies them to the frontier tracker (C1), and emits
// AllowCompaction commands so workers can reclaim space behind the new
// since frontiers (spec.md §4.1, §6).
package feedback

import (
	"log/slog"

	"github.com/coordinatordb/coord/internal/cacher"
	"github.com/coordinatordb/coord/internal/catalog"
	"github.com/coordinatordb/coord/internal/command"
	"github.com/coordinatordb/coord/internal/frontier"
)

// Loop applies worker feedback to tracker and reconciles source cache-file
// expectations against the catalog. It holds no state beyond its
// collaborators; the tracker and catalog are the coordinator's, owned and
// mutated only from the event loop goroutine (spec.md §5).
type Loop struct {
	Tracker *frontier.Tracker
	Catalog catalog.Catalog
	Cacher  cacher.Cacher
	Logger  *slog.Logger
}

// HandleFrontierUppers applies every reported change batch and returns the
// AllowCompaction command to broadcast, if any since frontier actually
// moved. A nil return means no compaction is newly possible.
func (l *Loop) HandleFrontierUppers(msg command.FrontierUppers) *command.AllowCompaction {
	var advanced []command.IDFrontier
	for _, u := range msg.Updates {
		before, _ := l.Tracker.SinceOf(u.ID)
		if len(l.Tracker.UpdateUpper(u.ID, u.Batch)) == 0 {
			continue
		}
		since, ok := l.Tracker.SinceOf(u.ID)
		if !ok || since == before {
			continue
		}
		advanced = append(advanced, command.IDFrontier{ID: u.ID, Frontier: since})
	}
	if len(advanced) == 0 {
		return nil
	}
	return &command.AllowCompaction{Frontiers: advanced}
}

// HandleCreateSource tells the configured Cacher to expect a cache file for
// a newly instantiated source, if the source's catalog entry has caching
// enabled. A nil Cacher or a source without caching enabled is a no-op
// (spec.md §6). The coordinator's dataflow bookkeeping keys off the
// catalog, not the instance id a worker assigns on (re)instantiation — msg
// is only consulted for which source id came up.
func (l *Loop) HandleCreateSource(msg command.CreateSource) {
	if l.Cacher == nil {
		return
	}
	item, ok := l.Catalog.Lookup(msg.Instance.ID)
	if !ok || !item.CachingEnabled {
		return
	}
	if err := l.Cacher.AddSource(msg.Instance.ID, item.SourceConnector); err != nil {
		l.logger().Warn("failed to register source with cacher", "id", msg.Instance.ID, "err", err)
	}
}

// HandleDroppedSource unregisters a dropped source instance's cache-file
// expectation.
func (l *Loop) HandleDroppedSource(msg command.DroppedSource) {
	if l.Cacher == nil {
		return
	}
	if err := l.Cacher.DropSource(msg.Instance.ID); err != nil {
		l.logger().Warn("failed to unregister source with cacher", "id", msg.Instance.ID, "err", err)
	}
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
