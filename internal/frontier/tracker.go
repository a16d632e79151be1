// Package frontier implements C1: per-arrangement upper/since tracking and
// the progress arithmetic the rest of the coordinator depends on.
package frontier

import (
	"github.com/coordinatordb/coord/internal/types"
)

// Tracker owns Frontiers records for every installed arrangement. It is
// not safe for concurrent use from multiple goroutines: the coordinator
// event loop is the sole owner and caller (spec.md §5).
type Tracker struct {
	indexes map[types.GlobalId]types.Frontiers
}

func NewTracker() *Tracker {
	return &Tracker{indexes: make(map[types.GlobalId]types.Frontiers)}
}

// Insert establishes tracking for a new arrangement.
func (t *Tracker) Insert(id types.GlobalId, f types.Frontiers) {
	t.indexes[id] = f
}

// Remove stops tracking id, returning the record that existed (if any) so
// the caller can decide whether a drop needs to be broadcast.
func (t *Tracker) Remove(id types.GlobalId) (types.Frontiers, bool) {
	f, ok := t.indexes[id]
	if ok {
		delete(t.indexes, id)
	}
	return f, ok
}

// SinceOf looks up the since frontier of id.
func (t *Tracker) SinceOf(id types.GlobalId) (types.Antichain, bool) {
	f, ok := t.indexes[id]
	if !ok {
		return types.EmptyAntichain(), false
	}
	return f.Since, true
}

// UpperOf looks up the upper frontier of id.
func (t *Tracker) UpperOf(id types.GlobalId) (types.Antichain, bool) {
	f, ok := t.indexes[id]
	if !ok {
		return types.EmptyAntichain(), false
	}
	return f.Upper, true
}

// SetCompactionWindowMs changes the compaction window for id. It does not
// retroactively recompute since; the next UpdateUpper call will pick up
// the new window.
func (t *Tracker) SetCompactionWindowMs(id types.GlobalId, windowMs *uint64) {
	f, ok := t.indexes[id]
	if !ok {
		return
	}
	f.CompactionWindowMs = windowMs
	t.indexes[id] = f
}

// UpdateUpper applies progress deltas to id's upper frontier, returning the
// times that actually changed. When the upper changes and a compaction
// window is configured, the new since frontier is derived and stored if it
// differs from the current one (spec.md §4.1).
func (t *Tracker) UpdateUpper(id types.GlobalId, batch types.ChangeBatch) []types.Timestamp {
	f, ok := t.indexes[id]
	if !ok {
		return nil
	}
	newUpper, changed := batch.ApplyToFrontier(f.Upper)
	if len(changed) == 0 {
		return nil
	}
	f.Upper = newUpper
	if f.CompactionWindowMs != nil {
		newSince := DeriveCompactionFrontier(newUpper, *f.CompactionWindowMs)
		if !antichainsEqual(newSince, f.Since) {
			f.Since = newSince
		}
	}
	t.indexes[id] = f
	return changed
}

// LeastValidSince returns the pointwise meet over the since frontiers of
// ids, used to lower-bound a new dataflow's as_of.
func (t *Tracker) LeastValidSince(ids []types.GlobalId) types.Antichain {
	result := types.EmptyAntichain()
	first := true
	for _, id := range ids {
		f, ok := t.indexes[id]
		if !ok {
			continue
		}
		if first {
			result = f.Since
			first = false
			continue
		}
		result = types.Meet(result, f.Since)
	}
	return result
}

// GreatestOpenUpper returns the pointwise join (lattice max) over the
// upper frontiers of ids.
func (t *Tracker) GreatestOpenUpper(ids []types.GlobalId) types.Antichain {
	result := types.EmptyAntichain()
	for _, id := range ids {
		f, ok := t.indexes[id]
		if !ok {
			continue
		}
		result = types.Join(result, f.Upper)
	}
	return result
}

// DeriveCompactionFrontier computes the compaction frontier trailing upper
// by window ms, quantized to window (spec.md §4.1). If upper is empty (the
// arrangement is complete), compaction does not occur: compacting would
// destroy the only valid answer.
func DeriveCompactionFrontier(upper types.Antichain, windowMs uint64) types.Antichain {
	t, ok := upper.Element()
	if !ok {
		return types.EmptyAntichain()
	}
	if windowMs == 0 {
		return types.AntichainFromElem(t)
	}
	trailing := t.SaturatingSub(windowMs)
	quantized := types.Timestamp((uint64(trailing) / windowMs) * windowMs)
	return types.AntichainFromElem(quantized)
}

func antichainsEqual(a, b types.Antichain) bool {
	ae, aok := a.Element()
	be, bok := b.Element()
	if aok != bok {
		return false
	}
	if !aok {
		return true
	}
	return ae == be
}
