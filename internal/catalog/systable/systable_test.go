package systable

import (
	"testing"

	"github.com/coordinatordb/coord/internal/types"
)

func TestDiffCreatedTable(t *testing.T) {
	item := types.CatalogItem{
		ID:   types.UserID(1),
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"},
		Kind: types.ItemTable,
	}
	ops := Diff(types.CatalogEvent{Kind: types.EventCreatedItem, Item: &item})
	if len(ops) != 1 || ops[0].Table != Tables || ops[0].Sign != 1 {
		t.Fatalf("unexpected ops: %+v", ops)
	}
}

func TestDiffDroppedIndexRetractsColumns(t *testing.T) {
	item := types.CatalogItem{
		ID:        types.UserID(2),
		Name:      types.QualifiedName{Database: "materialize", Schema: "public", Item: "idx"},
		Kind:      types.ItemIndex,
		IndexOn:   types.UserID(1),
		IndexKeys: []types.IndexKeyExpr{{Expr: "#0"}, {Expr: "#1"}},
	}
	ops := Diff(types.CatalogEvent{Kind: types.EventDroppedIndex, Item: &item})
	if len(ops) != 3 {
		t.Fatalf("expected 1 index row + 2 column rows, got %d: %+v", len(ops), ops)
	}
	for _, op := range ops {
		if op.Sign != -1 {
			t.Errorf("expected all retractions, got %+v", op)
		}
	}
}

func TestDiffRenameRetractsOldInsertsNew(t *testing.T) {
	item := types.CatalogItem{
		ID:   types.UserID(3),
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "new_name"},
		Kind: types.ItemTable,
	}
	ev := types.CatalogEvent{
		Kind:    types.EventUpdatedItem,
		OldName: types.QualifiedName{Database: "materialize", Schema: "public", Item: "old_name"},
		NewName: item.Name,
		Item:    &item,
	}
	ops := Diff(ev)
	if len(ops) != 2 {
		t.Fatalf("expected retract+insert, got %d: %+v", len(ops), ops)
	}
	if ops[0].Sign != -1 || ops[0].Row["name"] != "old_name" {
		t.Errorf("unexpected retraction: %+v", ops[0])
	}
	if ops[1].Sign != 1 || ops[1].Row["name"] != "new_name" {
		t.Errorf("unexpected insertion: %+v", ops[1])
	}
}

func TestDiffDroppedSinkRetractsConnectorRow(t *testing.T) {
	item := types.CatalogItem{
		ID:   types.UserID(4),
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "s1"},
		Kind: types.ItemSink,
		SinkConnector: types.SinkConnectorState{Ready: &types.SinkConnector{
			ConnectorType: "kafka",
			ExternalID:    "topic-1",
		}},
	}
	ops := Diff(types.CatalogEvent{Kind: types.EventDroppedItem, Item: &item})
	if len(ops) != 2 {
		t.Fatalf("expected sink row + connector row, got %d: %+v", len(ops), ops)
	}
	foundKafka := false
	for _, op := range ops {
		if op.Table == KafkaSinks {
			foundKafka = true
		}
	}
	if !foundKafka {
		t.Errorf("expected a %s retraction, got %+v", KafkaSinks, ops)
	}
}
