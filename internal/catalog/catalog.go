// Package catalog implements the persistent catalog collaborator named in
// spec.md §6: the source of truth for databases, schemas, and items, and
// the only component allowed to allocate ids and oids.
package catalog

import (
	"errors"

	"github.com/coordinatordb/coord/internal/types"
)

// ErrNotFound is returned when an operation names an id or qualified name
// the catalog has no record of.
var ErrNotFound = errors.New("catalog: not found")

// ErrAlreadyExists is returned by Create* ops that collide with an
// existing database, schema, or item name.
var ErrAlreadyExists = errors.New("catalog: already exists")

// ErrCatalogConflict wraps a failed Op with the index of the offending
// operation in the batch, so callers can report which statement in a
// multi-statement transact caused the failure.
type ErrCatalogConflict struct {
	OpIndex int
	Err     error
}

func (e *ErrCatalogConflict) Error() string {
	return e.Err.Error()
}

func (e *ErrCatalogConflict) Unwrap() error {
	return e.Err
}

// SessionView resolves unqualified item names against one session's
// default database and schema.
type SessionView struct {
	cat      Catalog
	database string
	schema   string
}

// Resolve looks up an item by bare name, qualifying it with the session's
// default database/schema first.
func (v SessionView) Resolve(name string) (types.GlobalId, bool) {
	return v.cat.LookupByName(types.QualifiedName{Database: v.database, Schema: v.schema, Item: name})
}

// CandidateIndex is one of possibly several indexes available to answer a
// query against a relation, paired with the key expressions it orders by.
type CandidateIndex struct {
	IndexID types.GlobalId
	Keys    []types.IndexKeyExpr
}

// Catalog is the collaborator interface the rest of the coordinator depends
// on (spec.md §6). The SQLite-backed implementation lives in store.go;
// tests may substitute an in-memory fake built on the same interface.
type Catalog interface {
	// Transact applies every op atomically, returning the events to
	// broadcast to C4 (catalog event processor) on success. On failure no
	// op in the batch is applied.
	Transact(ops []Op) ([]types.CatalogEvent, error)

	// AllocateID reserves the next id in kind's namespace. Transient ids
	// are allocated from an in-memory counter (never persisted, spec.md
	// §9); user and system ids are persisted so they survive a restart.
	AllocateID(kind types.IDKind) types.GlobalId

	// AllocateOID reserves the next oid, a flat namespace shared by every
	// kind of catalog object (used for SQL-visible object ids).
	AllocateOID() uint64

	// Lookup returns the item by id.
	Lookup(id types.GlobalId) (types.CatalogItem, bool)

	// LookupByName resolves a qualified name to its id.
	LookupByName(name types.QualifiedName) (types.GlobalId, bool)

	// ForSession resolves name lookups relative to session's search path.
	// The core catalog has no notion of per-session search paths (a SQL
	// planner concern, spec.md §1 Non-goals); ForSession returns a view
	// that resolves unqualified names against session's default database,
	// set once at Startup (spec.md §6).
	ForSession(session *types.Session) SessionView

	// Indexes returns every index known to materialize relationID, keyed
	// by index id.
	Indexes(relationID types.GlobalId) []CandidateIndex

	// NearestIndexes returns the union of indexes available across uses,
	// and whether every relation in uses has at least one index (a
	// "complete" cover, spec.md §4.6 fast-path eligibility test).
	NearestIndexes(uses []types.GlobalId) (ids []types.GlobalId, complete bool)

	// DefaultIndexFor returns the index the planner should prefer for
	// relationID, if one has been designated.
	DefaultIndexFor(relationID types.GlobalId) (types.GlobalId, bool)

	// UsesTables reports whether relationID is a Table-kind item or reads
	// directly (one hop) from one (tables are local inputs written via
	// Insert, not sources fed by a timestamper — this distinction decides
	// whether C6's determine_timestamp takes its candidate from get_read_ts).
	UsesTables(relationID types.GlobalId) bool

	// Dependents returns the ids of every item that directly references id:
	// an index built on it (IndexOn), a sink reading from it (SinkFrom), or
	// a view whose query uses it (Uses). The planner walks this one hop at
	// a time to resolve a DROP ... CASCADE (spec.md §4.5).
	Dependents(id types.GlobalId) []types.GlobalId
}
