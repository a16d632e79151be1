// Package peek implements C6: one-shot read sequencing. It picks a
// timestamp, decides between the fast index-lookup path and a transient
// one-shot dataflow, and aggregates per-worker responses into one answer
// (spec.md §4.6).
package peek

import (
	"github.com/coordinatordb/coord/internal/catalog"
	"github.com/coordinatordb/coord/internal/command"
	"github.com/coordinatordb/coord/internal/coorderr"
	"github.com/coordinatordb/coord/internal/dataflow"
	"github.com/coordinatordb/coord/internal/frontier"
	"github.com/coordinatordb/coord/internal/tsoracle"
	"github.com/coordinatordb/coord/internal/types"
)

// Sequencer owns no state of its own: it is handed the coordinator's
// catalog, frontier tracker, and timestamp oracle on every call, the same
// read-only-collaborator shape C1/C2 are used in elsewhere (spec.md §5:
// the event loop is the sole owner of all mutable state).
type Sequencer struct {
	Catalog catalog.Catalog
	Tracker *frontier.Tracker
	Oracle  *tsoracle.Oracle
}

// When selects between pinning a read to an explicit timestamp and reading
// at whatever is current, the two variants of spec.md §4.6's
// determine_timestamp(source, when).
type When struct {
	at *types.Timestamp
}

// Immediately reads at the most recent timestamp the dependencies can
// serve right now.
func Immediately() When { return When{} }

// AtTimestamp pins the read to exactly t (AS OF).
func AtTimestamp(t types.Timestamp) When { return When{at: &t} }

func (w When) pinned() (types.Timestamp, bool) {
	if w.at == nil {
		return 0, false
	}
	return *w.at, true
}

// DetermineTimestamp picks a timestamp for a query that reads uses,
// per spec.md §4.6. uses names the relations a query reads, not index ids:
// nearest_indexes resolves them to the indexes whose since/upper frontiers
// actually bound the answer, and indexes_complete reports whether every
// one of uses has at least one index backing it — a query over a
// relation no index materializes can never be served and errors with
// "non-materialized sources" regardless of when.
func (s *Sequencer) DetermineTimestamp(uses []types.GlobalId, when When) (types.Timestamp, error) {
	indexIDs, complete := s.Catalog.NearestIndexes(uses)
	if !complete {
		return 0, &coorderr.TimestampUnavailableError{
			RelationID: relationsString(uses),
			Reason:     "query depends on non-materialized sources",
		}
	}

	since := s.Tracker.LeastValidSince(indexIDs)
	sinceElem, hasSince := since.Element()
	if !hasSince {
		sinceElem = 0
	}

	var candidate types.Timestamp
	if at, ok := when.pinned(); ok {
		candidate = at
	} else {
		c, err := s.readCandidate(uses, indexIDs)
		if err != nil {
			return 0, err
		}
		candidate = c
		if candidate < sinceElem {
			candidate = sinceElem
		}
	}

	// since with no tracked element is unconstrained (the default state for
	// a freshly created index, frontier.Tracker's zero Frontiers.Since). An
	// Immediately read was already clamped up to sinceElem above, so this
	// check rejects only a pinned AS OF that lies below since (spec.md §4.6).
	if hasSince && !since.LessEqual(candidate) {
		return 0, &coorderr.TimestampUnavailableError{RelationID: relationsString(uses)}
	}
	return candidate, nil
}

// readCandidate implements the Immediately branch of determine_timestamp:
// a table dependency forces get_read_ts (enforcing linearizability with
// writes); otherwise the candidate sits one tick behind the dependencies'
// upper frontier, or at MAX if every dependency has already closed off.
func (s *Sequencer) readCandidate(uses, indexIDs []types.GlobalId) (types.Timestamp, error) {
	for _, id := range uses {
		if s.Catalog.UsesTables(id) {
			return s.Oracle.GetReadTs(), nil
		}
	}

	upper := s.Tracker.GreatestOpenUpper(indexIDs)
	upperElem, hasUpper := upper.Element()
	if !hasUpper {
		return types.MaxTimestamp, nil
	}
	if upperElem == 0 {
		return 0, &coorderr.TimestampUnavailableError{
			RelationID: relationsString(uses),
			Reason:     "input has no complete timestamps yet",
		}
	}
	return upperElem.SaturatingSub(1), nil
}

// resolveUses returns the relation set determine_timestamp should bound a
// peek against target by. target's own index covers it directly whenever
// one exists (a table's auto-generated primary index, a materialized
// view's index, or an index peeked by id); a non-materialized view has no
// index of its own, so its persisted Uses — the base relations its query
// reads — stands in instead (spec.md §4.6, §4.5's CreateViewPlan.Uses).
func (s *Sequencer) resolveUses(target types.GlobalId) []types.GlobalId {
	if _, complete := s.Catalog.NearestIndexes([]types.GlobalId{target}); complete {
		return []types.GlobalId{target}
	}
	if item, ok := s.Catalog.Lookup(target); ok && item.Kind == types.ItemView && len(item.Uses) > 0 {
		return item.Uses
	}
	return []types.GlobalId{target}
}

// Plan is the outcome of sequencing one peek: either a Peek command against
// an existing index (the fast path) or a CreateDataflows command for a
// transient index plus the Peek that reads it (spec.md §4.6).
type Plan struct {
	CreateTransient *command.CreateDataflows
	Peek            command.Peek
}

// Sequence decides the fast path vs transient path for a peek against
// target (a relation id), honoring an optional literal key probe carried in
// mfp. The fast path is taken whenever target has an index of its own (an
// index whose key matches the probe is preferred, see fastPathIndex);
// otherwise a transient dataflow is built importing target's nearest
// indexes.
func (s *Sequencer) Sequence(connID types.ConnID, tx string, target types.GlobalId, when When, mfp command.MapFilterProject, finishing command.RowSetFinishing) (Plan, error) {
	uses := s.resolveUses(target)
	ts, err := s.DetermineTimestamp(uses, when)
	if err != nil {
		return Plan{}, err
	}

	if indexID, ok := s.fastPathIndex(target, mfp); ok {
		return Plan{Peek: command.Peek{
			ID: indexID, ConnID: connID, Tx: tx, Timestamp: ts,
			Finishing: finishing, MapFilterProject: mfp,
		}}, nil
	}

	// indexes_complete was already validated by DetermineTimestamp above, so
	// this second nearest_indexes lookup (to build the transient dataflow's
	// imports) cannot itself discover a missing index.
	transientID := s.Catalog.AllocateID(types.IDTransient)
	underlyingIdx, _ := s.Catalog.NearestIndexes(uses)
	imports := make([]dataflow.ImportedIndex, 0, len(underlyingIdx))
	for _, id := range underlyingIdx {
		imports = append(imports, dataflow.ImportedIndex{ID: id})
	}
	asOf := s.Tracker.LeastValidSince(underlyingIdx)
	desc := dataflow.BuildTransientDataflow(transientID, target.String(), imports, nil, asOf)
	s.Tracker.Insert(transientID, types.Frontiers{Upper: types.AntichainFromElem(0), Since: asOf})

	return Plan{
		CreateTransient: &command.CreateDataflows{Dataflows: []dataflow.Description{desc}},
		Peek: command.Peek{
			ID: transientID, ConnID: connID, Tx: tx, Timestamp: ts,
			Finishing: finishing, MapFilterProject: mfp,
		},
	}, nil
}

// fastPathIndex reports whether an existing index on target can answer mfp
// directly. A literal equality probe that names exactly the index's key
// columns makes this index eligible; any other index on target also
// qualifies for a full-scan fast path (no transient dataflow needed even
// without a matching key probe).
func (s *Sequencer) fastPathIndex(target types.GlobalId, mfp command.MapFilterProject) (types.GlobalId, bool) {
	cands := s.Catalog.Indexes(target)
	if len(cands) == 0 {
		return types.GlobalId{}, false
	}
	if len(mfp.Predicates) == 0 {
		return cands[0].IndexID, true
	}
	for _, cand := range cands {
		if keyMatchesProbe(cand.Keys, mfp.Predicates) {
			return cand.IndexID, true
		}
	}
	return cands[0].IndexID, true
}

func keyMatchesProbe(keys []types.IndexKeyExpr, predicates []command.LiteralConstraint) bool {
	if len(keys) == 0 {
		return false
	}
	constrained := make(map[int]bool, len(predicates))
	for _, p := range predicates {
		constrained[p.Col] = true
	}
	for i := range keys {
		if !constrained[i] {
			return false
		}
	}
	return true
}

func relationsString(uses []types.GlobalId) string {
	if len(uses) == 0 {
		return "<none>"
	}
	out := uses[0].String()
	for _, id := range uses[1:] {
		out += "," + id.String()
	}
	return out
}

// AggregateResponses combines per-worker PeekResults into one outcome,
// following spec.md §4.6: an Error from any worker dominates; absent that,
// a Canceled from any worker dominates; otherwise the rows from every
// worker are concatenated and row-set finishing is the caller's concern
// (finishing is applied once, after aggregation, since ORDER BY/LIMIT must
// see the full result set).
func AggregateResponses(results []command.PeekResult) command.PeekResult {
	var canceled bool
	var rows [][]any
	for _, r := range results {
		if r.Error != "" {
			return command.PeekResult{Error: r.Error}
		}
		if r.Canceled {
			canceled = true
			continue
		}
		rows = append(rows, r.Rows...)
	}
	if canceled {
		return command.PeekResult{Canceled: true}
	}
	return command.PeekResult{Rows: rows}
}
