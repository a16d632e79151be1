package catalog

import (
	"path/filepath"
	"testing"

	"github.com/coordinatordb/coord/internal/types"
)

func openTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCreateDatabaseAndSchema(t *testing.T) {
	c := openTestCatalog(t)

	events, err := c.Transact([]Op{
		CreateDatabaseOp{Name: "materialize"},
		CreateSchemaOp{Database: "materialize", Name: "public"},
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != types.EventCreatedDatabase || events[0].DatabaseName != "materialize" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Kind != types.EventCreatedSchema || events[1].SchemaName != "public" {
		t.Errorf("unexpected second event: %+v", events[1])
	}

	_, err = c.Transact([]Op{CreateDatabaseOp{Name: "materialize"}})
	if err == nil {
		t.Fatal("expected error creating duplicate database")
	}
}

func TestCreateItemRoundTrip(t *testing.T) {
	c := openTestCatalog(t)
	if _, err := c.Transact([]Op{
		CreateDatabaseOp{Name: "materialize"},
		CreateSchemaOp{Database: "materialize", Name: "public"},
	}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	id := c.AllocateID(types.IDUser)
	oid := c.AllocateOID()
	item := types.CatalogItem{
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"},
		Kind: types.ItemTable,
		OID:  oid,
	}

	if _, err := c.Transact([]Op{CreateItemOp{ID: id, Item: item}}); err != nil {
		t.Fatalf("Transact: %v", err)
	}

	got, ok := c.Lookup(id)
	if !ok {
		t.Fatal("expected item to be found")
	}
	if got.Name.Item != "t1" || got.Kind != types.ItemTable || got.OID != oid {
		t.Errorf("unexpected round-tripped item: %+v", got)
	}

	gotID, ok := c.LookupByName(item.Name)
	if !ok || gotID != id {
		t.Errorf("LookupByName = (%v, %v), want (%v, true)", gotID, ok, id)
	}
}

func TestCreateIndexAndNearestIndexes(t *testing.T) {
	c := openTestCatalog(t)
	if _, err := c.Transact([]Op{
		CreateDatabaseOp{Name: "materialize"},
		CreateSchemaOp{Database: "materialize", Name: "public"},
	}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	tableID := c.AllocateID(types.IDUser)
	if _, err := c.Transact([]Op{CreateItemOp{ID: tableID, Item: types.CatalogItem{
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"},
		Kind: types.ItemTable,
		OID:  c.AllocateOID(),
	}}}); err != nil {
		t.Fatalf("create table: %v", err)
	}

	indexID := c.AllocateID(types.IDUser)
	if _, err := c.Transact([]Op{CreateItemOp{ID: indexID, Item: types.CatalogItem{
		Name:      types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1_primary_idx"},
		Kind:      types.ItemIndex,
		OID:       c.AllocateOID(),
		IndexOn:   tableID,
		IndexKeys: []types.IndexKeyExpr{{Expr: "#0"}},
	}}}); err != nil {
		t.Fatalf("create index: %v", err)
	}

	cands := c.Indexes(tableID)
	if len(cands) != 1 || cands[0].IndexID != indexID {
		t.Fatalf("expected one candidate index %v, got %v", indexID, cands)
	}

	ids, complete := c.NearestIndexes([]types.GlobalId{tableID})
	if !complete || len(ids) != 1 || ids[0] != indexID {
		t.Errorf("NearestIndexes = (%v, %v), want ([%v], true)", ids, complete, indexID)
	}

	if !c.UsesTables(indexID) {
		t.Error("expected index on a table to report UsesTables = true")
	}
}

func TestDropItemEmitsEvent(t *testing.T) {
	c := openTestCatalog(t)
	if _, err := c.Transact([]Op{
		CreateDatabaseOp{Name: "materialize"},
		CreateSchemaOp{Database: "materialize", Name: "public"},
	}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	id := c.AllocateID(types.IDUser)
	if _, err := c.Transact([]Op{CreateItemOp{ID: id, Item: types.CatalogItem{
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"},
		Kind: types.ItemTable,
		OID:  c.AllocateOID(),
	}}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	events, err := c.Transact([]Op{DropItemOp{ID: id}})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}
	if len(events) != 1 || events[0].Kind != types.EventDroppedItem {
		t.Fatalf("unexpected drop events: %+v", events)
	}

	if _, ok := c.Lookup(id); ok {
		t.Error("expected item to be gone after drop")
	}
}

func TestAllocateIDPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first := c.AllocateID(types.IDUser)
	second := c.AllocateID(types.IDUser)
	if second.Value != first.Value+1 {
		t.Fatalf("expected monotone ids, got %v then %v", first, second)
	}
	c.Close()

	c2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	third := c2.AllocateID(types.IDUser)
	if third.Value != second.Value+1 {
		t.Errorf("expected id allocation to survive reopen, got %v after %v", third, second)
	}
}

func TestForSessionResolvesDefaultDatabase(t *testing.T) {
	c := openTestCatalog(t)
	if _, err := c.Transact([]Op{
		CreateDatabaseOp{Name: "materialize"},
		CreateSchemaOp{Database: "materialize", Name: "public"},
	}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	id := c.AllocateID(types.IDUser)
	if _, err := c.Transact([]Op{CreateItemOp{ID: id, Item: types.CatalogItem{
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"},
		Kind: types.ItemTable,
		OID:  c.AllocateOID(),
	}}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	session := types.NewSession(1)
	view := c.ForSession(session)
	got, ok := view.Resolve("t1")
	if !ok || got != id {
		t.Errorf("Resolve(t1) = (%v, %v), want (%v, true)", got, ok, id)
	}
}

func TestAllocateIDTransientNeverPersisted(t *testing.T) {
	c := openTestCatalog(t)
	a := c.AllocateID(types.IDTransient)
	b := c.AllocateID(types.IDTransient)
	if a.Kind != types.IDTransient || b.Value != a.Value+1 {
		t.Errorf("expected monotone transient ids, got %v then %v", a, b)
	}
}
