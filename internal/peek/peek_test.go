package peek

import (
	"path/filepath"
	"testing"

	"github.com/coordinatordb/coord/internal/catalog"
	"github.com/coordinatordb/coord/internal/command"
	"github.com/coordinatordb/coord/internal/frontier"
	"github.com/coordinatordb/coord/internal/tsoracle"
	"github.com/coordinatordb/coord/internal/types"
)

type fixedClock struct{ ts types.Timestamp }

func (c fixedClock) NowMs() types.Timestamp { return c.ts }

func newSequencer(t *testing.T, now types.Timestamp) (*Sequencer, *catalog.SQLiteCatalog) {
	t.Helper()
	c, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if _, err := c.Transact([]catalog.Op{
		catalog.CreateDatabaseOp{Name: "materialize"},
		catalog.CreateSchemaOp{Database: "materialize", Name: "public"},
	}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	tracker := frontier.NewTracker()
	oracle := tsoracle.New(fixedClock{ts: now})
	return &Sequencer{Catalog: c, Tracker: tracker, Oracle: oracle}, c
}

// createSourceWithIndex builds a Source item and an index on it, so
// determine_timestamp's upper-based candidate branch can be exercised
// without tripping UsesTables (a Table dependency would force get_read_ts
// instead, per spec.md §4.6).
func createSourceWithIndex(t *testing.T, c *catalog.SQLiteCatalog, name string) (sourceID, indexID types.GlobalId) {
	t.Helper()
	sourceID = c.AllocateID(types.IDUser)
	if _, err := c.Transact([]catalog.Op{catalog.CreateItemOp{ID: sourceID, Item: types.CatalogItem{
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: name},
		Kind: types.ItemSource,
		OID:  c.AllocateOID(),
	}}}); err != nil {
		t.Fatalf("create source: %v", err)
	}
	indexID = c.AllocateID(types.IDUser)
	if _, err := c.Transact([]catalog.Op{catalog.CreateItemOp{ID: indexID, Item: types.CatalogItem{
		Name:    types.QualifiedName{Database: "materialize", Schema: "public", Item: name + "_idx"},
		Kind:    types.ItemIndex,
		OID:     c.AllocateOID(),
		IndexOn: sourceID,
	}}}); err != nil {
		t.Fatalf("create index: %v", err)
	}
	return sourceID, indexID
}

func TestDetermineTimestampClampsCandidateUpToSince(t *testing.T) {
	seq, c := newSequencer(t, 5)
	sourceID, indexID := createSourceWithIndex(t, c, "s1")
	seq.Tracker.Insert(indexID, types.Frontiers{Upper: types.AntichainFromElem(50), Since: types.AntichainFromElem(50)})

	ts, err := seq.DetermineTimestamp([]types.GlobalId{sourceID}, Immediately())
	if err != nil {
		t.Fatalf("DetermineTimestamp: %v", err)
	}
	if ts < 50 {
		t.Errorf("expected timestamp clamped to since=50, got %d", ts)
	}
}

func TestDetermineTimestampUnavailableWhenNoCompleteTimestampsYet(t *testing.T) {
	seq, c := newSequencer(t, 5)
	sourceID, indexID := createSourceWithIndex(t, c, "s1")
	seq.Tracker.Insert(indexID, types.Frontiers{Upper: types.AntichainFromElem(0), Since: types.EmptyAntichain()})

	_, err := seq.DetermineTimestamp([]types.GlobalId{sourceID}, Immediately())
	if err == nil {
		t.Fatal("expected TimestampUnavailableError when upper has no complete timestamps yet")
	}
}

func TestDetermineTimestampAtTimestampBypassesUpper(t *testing.T) {
	seq, c := newSequencer(t, 5)
	sourceID, indexID := createSourceWithIndex(t, c, "s1")
	seq.Tracker.Insert(indexID, types.Frontiers{Upper: types.AntichainFromElem(0), Since: types.AntichainFromElem(3)})

	ts, err := seq.DetermineTimestamp([]types.GlobalId{sourceID}, AtTimestamp(7))
	if err != nil {
		t.Fatalf("DetermineTimestamp: %v", err)
	}
	if ts != 7 {
		t.Errorf("expected pinned timestamp 7, got %d", ts)
	}
}

func TestDetermineTimestampErrorsOnNonMaterializedSource(t *testing.T) {
	seq, c := newSequencer(t, 5)
	id := c.AllocateID(types.IDUser)
	if _, err := c.Transact([]catalog.Op{catalog.CreateItemOp{ID: id, Item: types.CatalogItem{
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "s1"},
		Kind: types.ItemSource,
		OID:  c.AllocateOID(),
	}}}); err != nil {
		t.Fatalf("create source: %v", err)
	}

	_, err := seq.DetermineTimestamp([]types.GlobalId{id}, Immediately())
	if err == nil {
		t.Fatal("expected error for a relation with no backing index")
	}
}

func createTableWithIndex(t *testing.T, c *catalog.SQLiteCatalog, name string) (tableID, indexID types.GlobalId) {
	t.Helper()
	tableID = c.AllocateID(types.IDUser)
	if _, err := c.Transact([]catalog.Op{catalog.CreateItemOp{ID: tableID, Item: types.CatalogItem{
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: name},
		Kind: types.ItemTable,
		OID:  c.AllocateOID(),
	}}}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	indexID = c.AllocateID(types.IDUser)
	if _, err := c.Transact([]catalog.Op{catalog.CreateItemOp{ID: indexID, Item: types.CatalogItem{
		Name:      types.QualifiedName{Database: "materialize", Schema: "public", Item: name + "_idx"},
		Kind:      types.ItemIndex,
		OID:       c.AllocateOID(),
		IndexOn:   tableID,
		IndexKeys: []types.IndexKeyExpr{{Expr: "#0"}},
	}}}); err != nil {
		t.Fatalf("create index: %v", err)
	}
	return tableID, indexID
}

func TestSequenceFastPathUsesExistingIndex(t *testing.T) {
	seq, c := newSequencer(t, 10)
	tableID, indexID := createTableWithIndex(t, c, "t1")
	seq.Tracker.Insert(indexID, types.Frontiers{Upper: types.AntichainFromElem(20), Since: types.EmptyAntichain()})

	plan, err := seq.Sequence(1, "tx1", tableID, Immediately(), command.MapFilterProject{}, command.RowSetFinishing{})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if plan.CreateTransient != nil {
		t.Error("expected fast path, got a transient dataflow")
	}
	if plan.Peek.ID != indexID {
		t.Errorf("expected peek against existing index %v, got %v", indexID, plan.Peek.ID)
	}
}

func TestSequenceFallsBackToTransientDataflowForUnmaterializedView(t *testing.T) {
	seq, c := newSequencer(t, 10)
	tableID, tableIndexID := createTableWithIndex(t, c, "t1")
	seq.Tracker.Insert(tableIndexID, types.Frontiers{Upper: types.AntichainFromElem(20), Since: types.EmptyAntichain()})

	viewID := c.AllocateID(types.IDUser)
	if _, err := c.Transact([]catalog.Op{catalog.CreateItemOp{ID: viewID, Item: types.CatalogItem{
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "v1"},
		Kind: types.ItemView,
		OID:  c.AllocateOID(),
		Uses: []types.GlobalId{tableID},
	}}}); err != nil {
		t.Fatalf("create view: %v", err)
	}

	plan, err := seq.Sequence(1, "tx1", viewID, Immediately(), command.MapFilterProject{}, command.RowSetFinishing{})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if plan.CreateTransient == nil {
		t.Fatal("expected a transient dataflow when the view has no index of its own")
	}
	if plan.Peek.ID.Kind != types.IDTransient {
		t.Errorf("expected peek against a transient id, got %v", plan.Peek.ID)
	}
}

func TestAggregateResponsesErrorDominates(t *testing.T) {
	got := AggregateResponses([]command.PeekResult{
		{Rows: [][]any{{1}}},
		{Error: "boom"},
		{Canceled: true},
	})
	if got.Error != "boom" {
		t.Errorf("expected error to dominate, got %+v", got)
	}
}

func TestAggregateResponsesCanceledDominatesRows(t *testing.T) {
	got := AggregateResponses([]command.PeekResult{
		{Rows: [][]any{{1}}},
		{Canceled: true},
	})
	if !got.Canceled {
		t.Errorf("expected canceled to dominate rows, got %+v", got)
	}
}

func TestAggregateResponsesConcatenatesRows(t *testing.T) {
	got := AggregateResponses([]command.PeekResult{
		{Rows: [][]any{{1}}},
		{Rows: [][]any{{2}, {3}}},
	})
	if len(got.Rows) != 3 {
		t.Errorf("expected 3 concatenated rows, got %v", got.Rows)
	}
}
