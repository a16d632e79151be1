// Package catalogevents implements C4: it turns the event list returned by
// a catalog Transact call into the commands workers need and the
// system-table row deltas that keep mz_* tables consistent (spec.md §4.4).
package catalogevents

import (
	"github.com/coordinatordb/coord/internal/catalog/systable"
	"github.com/coordinatordb/coord/internal/command"
	"github.com/coordinatordb/coord/internal/types"
)

// Processed is the output of handling one batch of catalog events: the
// system-table rows to apply, plus any downstream command that must be
// shipped to workers as a consequence (dropping an index/source/sink
// requires tearing down its dataflow).
type Processed struct {
	Rows     []systable.RowOp
	ToDrop   DropSet
}

// DropSet accumulates the ids that must be torn down, bucketed by kind so
// the caller can emit one DropSources/DropSinks/DropIndexes command per
// bucket rather than one per dropped item (spec.md §4.4: "drops collect
// into buckets broadcast as one batch").
type DropSet struct {
	Sources []types.GlobalId
	Sinks   []types.GlobalId
	Indexes []types.GlobalId
}

func (d DropSet) Empty() bool {
	return len(d.Sources) == 0 && len(d.Sinks) == 0 && len(d.Indexes) == 0
}

// Commands renders the accumulated drops as ToWorker commands, one per
// non-empty bucket.
func (d DropSet) Commands() []command.ToWorker {
	var cmds []command.ToWorker
	if len(d.Sources) > 0 {
		cmds = append(cmds, command.DropSources{IDs: d.Sources})
	}
	if len(d.Sinks) > 0 {
		cmds = append(cmds, command.DropSinks{IDs: d.Sinks})
	}
	if len(d.Indexes) > 0 {
		cmds = append(cmds, command.DropIndexes{IDs: d.Indexes})
	}
	return cmds
}

// Process consumes the events from one Transact call in order, producing
// the system-table diff and the set of dataflows to tear down.
func Process(events []types.CatalogEvent) Processed {
	var out Processed
	for _, ev := range events {
		out.Rows = append(out.Rows, systable.Diff(ev)...)

		switch ev.Kind {
		case types.EventDroppedItem, types.EventDroppedIndex:
			if ev.Item == nil {
				continue
			}
			switch ev.Item.Kind {
			case types.ItemSource:
				out.ToDrop.Sources = append(out.ToDrop.Sources, ev.Item.ID)
			case types.ItemSink:
				// A sink whose connector is still Pending has no dataflow to
				// drop yet (spec.md §4.4); only a Ready sink was ever shipped.
				if ev.Item.SinkConnector.IsReady() {
					out.ToDrop.Sinks = append(out.ToDrop.Sinks, ev.Item.ID)
				}
			case types.ItemIndex:
				out.ToDrop.Indexes = append(out.ToDrop.Indexes, ev.Item.ID)
			}
		}
	}
	return out
}
