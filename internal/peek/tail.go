package peek

import "github.com/coordinatordb/coord/internal/types"

// TailStartFrontier picks the frontier a TAIL over target should begin
// replaying from (spec.md §4.6, "Determining a sink's start frontier").
//
// If the caller pinned an explicit AS OF, it is resolved through the same
// determine_timestamp(Get{target}, AtTimestamp(t)) validation a peek would
// get — an AS OF older than target's since errors rather than silently
// serving stale data. Otherwise, the source's default index (if any) gives
// "one tick behind its upper" as the start point; lacking a default index,
// the start is {MAX} when every dependency is materialized (nothing to
// stream; the tail would just idle until new data arrives) or {0} when it
// isn't (the tail reads from the very beginning once the dependency is
// built).
func (s *Sequencer) TailStartFrontier(target types.GlobalId, asOf *types.Timestamp) (types.Antichain, error) {
	if asOf != nil {
		ts, err := s.DetermineTimestamp([]types.GlobalId{target}, AtTimestamp(*asOf))
		if err != nil {
			return types.Antichain{}, err
		}
		return types.AntichainFromElem(ts), nil
	}

	if indexID, ok := s.Catalog.DefaultIndexFor(target); ok {
		if upper, tracked := s.Tracker.UpperOf(indexID); tracked {
			if upperElem, has := upper.Element(); has {
				return types.AntichainFromElem(upperElem.SaturatingSub(1)), nil
			}
		}
		return types.AntichainFromElem(types.MaxTimestamp), nil
	}

	if _, complete := s.Catalog.NearestIndexes(s.resolveUses(target)); complete {
		return types.AntichainFromElem(types.MaxTimestamp), nil
	}
	return types.AntichainFromElem(0), nil
}
