package types

// Frontiers is the per-arrangement record tracked by the frontier tracker
// (C1). Invariant: Since <= Upper pointwise; if Upper is empty, Since may
// still be non-empty but no further advances occur (spec.md §3).
type Frontiers struct {
	Upper               Antichain
	Since               Antichain
	CompactionWindowMs  *uint64
}

// Clone returns a value copy (Antichain is already a value type, but this
// keeps call sites explicit about wanting an independent record).
func (f Frontiers) Clone() Frontiers {
	return f
}
