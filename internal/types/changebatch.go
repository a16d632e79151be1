package types

import "sort"

// ChangeDelta is one (Timestamp, signed_count) entry in a ChangeBatch.
type ChangeDelta struct {
	Time  Timestamp
	Count int64
}

// ChangeBatch is a multiset of timestamp deltas reported by a worker as an
// arrangement's upper frontier advances.
type ChangeBatch struct {
	Deltas []ChangeDelta
}

// NewChangeBatch builds a batch from the given deltas, consolidating
// duplicate timestamps by summing their counts.
func NewChangeBatch(deltas ...ChangeDelta) ChangeBatch {
	byTime := make(map[Timestamp]int64, len(deltas))
	order := make([]Timestamp, 0, len(deltas))
	for _, d := range deltas {
		if _, seen := byTime[d.Time]; !seen {
			order = append(order, d.Time)
		}
		byTime[d.Time] += d.Count
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]ChangeDelta, 0, len(order))
	for _, t := range order {
		if c := byTime[t]; c != 0 {
			out = append(out, ChangeDelta{Time: t, Count: c})
		}
	}
	return ChangeBatch{Deltas: out}
}

// ApplyToFrontier applies the batch to an antichain-valued frontier,
// returning the new frontier and the set of times whose presence in the
// frontier actually changed (times strictly greater than the old frontier
// element that accumulate a net-positive count become the new element).
//
// This is a simplified single-element-frontier specialization of the
// general "update frontier from change batch" algorithm used by
// differential dataflow: because our Antichain is 0-or-1 elements, the new
// frontier is simply the maximum timestamp with a net-positive running
// count, tracked by folding deltas in time order.
func (cb ChangeBatch) ApplyToFrontier(old Antichain) (Antichain, []Timestamp) {
	if len(cb.Deltas) == 0 {
		return old, nil
	}
	sorted := make([]ChangeDelta, len(cb.Deltas))
	copy(sorted, cb.Deltas)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	var changed []Timestamp
	newFrontier := old
	for _, d := range sorted {
		if d.Count <= 0 {
			continue
		}
		if !newFrontier.set || d.Time > newFrontier.elem {
			newFrontier = AntichainFromElem(d.Time)
			changed = append(changed, d.Time)
		}
	}
	return newFrontier, changed
}
