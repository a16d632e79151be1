// Package tsoracle implements C2: monotone assignment of read/write
// timestamps anchored to wall-clock time (spec.md §4.2).
package tsoracle

import (
	"time"

	"github.com/coordinatordb/coord/internal/types"
)

// Clock abstracts wall-clock access so tests can control time precisely.
type Clock interface {
	NowMs() types.Timestamp
}

// SystemClock reads real wall-clock time in milliseconds.
type SystemClock struct{}

func (SystemClock) NowMs() types.Timestamp {
	return types.Timestamp(time.Now().UnixMilli())
}

// Oracle is the coordinator's single source of read/write timestamps. It
// is owned exclusively by the event loop, same as the frontier tracker.
type Oracle struct {
	clock Clock

	readLowerBound types.Timestamp
	closedUpTo     types.Timestamp
	lastOpWasRead  bool
	needAdvance    bool
}

// New creates an Oracle anchored to clock, with both bounds starting at 1
// (matching the original coordinator's bootstrap state, which starts
// ahead of timestamp 0 so that the empty-catalog bootstrap transaction
// gets a distinguishable write timestamp).
func New(clock Clock) *Oracle {
	return &Oracle{
		clock:          clock,
		readLowerBound: 1,
		closedUpTo:     1,
		lastOpWasRead:  false,
		needAdvance:    true,
	}
}

// getTs reads wall-clock time, clamps it up to readLowerBound, and marks
// that a local-input advance is owed.
func (o *Oracle) getTs() types.Timestamp {
	ts := o.clock.NowMs()
	o.needAdvance = true
	if ts < o.readLowerBound {
		return o.readLowerBound
	}
	return ts
}

// GetReadTs returns a timestamp safe for reading: monotone non-decreasing,
// and becomes the new floor for read_lower_bound so a later write cannot
// tie with it (spec.md §4.2).
func (o *Oracle) GetReadTs() types.Timestamp {
	ts := o.getTs()
	o.lastOpWasRead = true
	o.readLowerBound = ts
	return ts
}

// GetWriteTs returns a timestamp strictly greater than any read it might
// otherwise tie with, and updates read_lower_bound so that subsequent
// reads observe this write (read-after-write linearizability).
func (o *Oracle) GetWriteTs() types.Timestamp {
	ts := o.getTs()
	if o.lastOpWasRead {
		o.lastOpWasRead = false
		if candidate := o.readLowerBound + 1; candidate > ts {
			ts = candidate
		}
	}
	if o.closedUpTo > ts {
		o.readLowerBound = o.closedUpTo
	} else {
		o.readLowerBound = ts
	}
	return o.readLowerBound
}

// NeedAdvance reports whether a local-input advance is owed since the last
// call to ResetNeedAdvance.
func (o *Oracle) NeedAdvance() bool {
	return o.needAdvance
}

// ResetNeedAdvance clears the pending-advance flag.
func (o *Oracle) ResetNeedAdvance() {
	o.needAdvance = false
}

// ClosedUpTo returns the timestamp up to which local inputs have been
// advanced.
func (o *Oracle) ClosedUpTo() types.Timestamp {
	return o.closedUpTo
}

// SetClosedUpTo records a new local-input advance point.
func (o *Oracle) SetClosedUpTo(t types.Timestamp) {
	o.closedUpTo = t
}

// NextLocalInputAdvance computes next_ts = max(get_ts(), read_lower_bound+1)
// without mutating lastOpWasRead, per the local-input-advancement algorithm
// in spec.md §4.2. Call this once per processed message.
func (o *Oracle) NextLocalInputAdvance() types.Timestamp {
	ts := o.getTs()
	if floor := o.readLowerBound + 1; floor > ts {
		return floor
	}
	return ts
}
