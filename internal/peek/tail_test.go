package peek

import (
	"testing"

	"github.com/coordinatordb/coord/internal/catalog"
	"github.com/coordinatordb/coord/internal/types"
)

func TestTailStartFrontierUsesDefaultIndexUpper(t *testing.T) {
	seq, c := newSequencer(t, 10)
	tableID, indexID := createTableWithIndex(t, c, "t1")
	seq.Tracker.Insert(indexID, types.Frontiers{Upper: types.AntichainFromElem(20), Since: types.EmptyAntichain()})

	got, err := seq.TailStartFrontier(tableID, nil)
	if err != nil {
		t.Fatalf("TailStartFrontier: %v", err)
	}
	elem, ok := got.Element()
	if !ok || elem != 19 {
		t.Errorf("expected start frontier {19}, got %v", got)
	}
}

func TestTailStartFrontierNoDefaultIndexCompleteIsMax(t *testing.T) {
	seq, c := newSequencer(t, 10)
	sourceID, indexID := createSourceWithIndex(t, c, "s1")
	_ = indexID

	viewID := c.AllocateID(types.IDUser)
	if _, err := c.Transact([]catalog.Op{catalog.CreateItemOp{ID: viewID, Item: types.CatalogItem{
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "v1"},
		Kind: types.ItemView,
		OID:  c.AllocateOID(),
		Uses: []types.GlobalId{sourceID},
	}}}); err != nil {
		t.Fatalf("create view: %v", err)
	}

	// viewID itself has no index, so there is no default index; resolveUses
	// maps the view to the source it reads, which is indexed, so every
	// dependency is materialized and the start frontier is {MAX}.
	got, err := seq.TailStartFrontier(viewID, nil)
	if err != nil {
		t.Fatalf("TailStartFrontier: %v", err)
	}
	if elem, ok := got.Element(); !ok || elem != types.MaxTimestamp {
		t.Errorf("expected start frontier {MAX} for a fully materialized dependency, got %v", got)
	}
}

func TestTailStartFrontierUnindexedTableIsZero(t *testing.T) {
	seq, c := newSequencer(t, 10)
	id := c.AllocateID(types.IDUser)
	if _, err := c.Transact([]catalog.Op{catalog.CreateItemOp{ID: id, Item: types.CatalogItem{
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"},
		Kind: types.ItemTable,
		OID:  c.AllocateOID(),
	}}}); err != nil {
		t.Fatalf("create table: %v", err)
	}

	// A table with no index at all (unlike production's always-present
	// auto-index) has no default index and no indexes covering it, so
	// nearest_indexes reports incomplete and the tail starts from {0}.
	got, err := seq.TailStartFrontier(id, nil)
	if err != nil {
		t.Fatalf("TailStartFrontier: %v", err)
	}
	if elem, ok := got.Element(); !ok || elem != 0 {
		t.Errorf("expected start frontier {0}, got %v", got)
	}
}

func TestTailStartFrontierWithAsOfResolvesThroughDetermineTimestamp(t *testing.T) {
	seq, c := newSequencer(t, 10)
	tableID, indexID := createTableWithIndex(t, c, "t1")
	seq.Tracker.Insert(indexID, types.Frontiers{Upper: types.AntichainFromElem(100), Since: types.AntichainFromElem(5)})

	at := types.Timestamp(42)
	got, err := seq.TailStartFrontier(tableID, &at)
	if err != nil {
		t.Fatalf("TailStartFrontier: %v", err)
	}
	if elem, ok := got.Element(); !ok || elem != 42 {
		t.Errorf("expected start frontier {42}, got %v", got)
	}
}

func TestTailStartFrontierWithAsOfBeforeSinceErrors(t *testing.T) {
	seq, c := newSequencer(t, 10)
	tableID, indexID := createTableWithIndex(t, c, "t1")
	seq.Tracker.Insert(indexID, types.Frontiers{Upper: types.AntichainFromElem(100), Since: types.AntichainFromElem(50)})

	at := types.Timestamp(10)
	_, err := seq.TailStartFrontier(tableID, &at)
	if err == nil {
		t.Fatal("expected an error for an AS OF below since (a pinned read is not clamped up to since)")
	}
}
