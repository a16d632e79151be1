package catalogevents

import (
	"testing"

	"github.com/coordinatordb/coord/internal/types"
)

func TestProcessCollectsDropsByKind(t *testing.T) {
	source := types.CatalogItem{ID: types.UserID(1), Kind: types.ItemSource}
	sink := types.CatalogItem{ID: types.UserID(2), Kind: types.ItemSink, SinkConnector: types.SinkConnectorState{
		Ready: &types.SinkConnector{ConnectorType: "kafka", ExternalID: "topic-1"},
	}}
	index := types.CatalogItem{ID: types.UserID(3), Kind: types.ItemIndex}

	out := Process([]types.CatalogEvent{
		{Kind: types.EventDroppedItem, Item: &source},
		{Kind: types.EventDroppedItem, Item: &sink},
		{Kind: types.EventDroppedIndex, Item: &index},
	})

	if len(out.ToDrop.Sources) != 1 || out.ToDrop.Sources[0] != source.ID {
		t.Errorf("unexpected sources to drop: %v", out.ToDrop.Sources)
	}
	if len(out.ToDrop.Sinks) != 1 || out.ToDrop.Sinks[0] != sink.ID {
		t.Errorf("unexpected sinks to drop: %v", out.ToDrop.Sinks)
	}
	if len(out.ToDrop.Indexes) != 1 || out.ToDrop.Indexes[0] != index.ID {
		t.Errorf("unexpected indexes to drop: %v", out.ToDrop.Indexes)
	}

	cmds := out.ToDrop.Commands()
	if len(cmds) != 3 {
		t.Fatalf("expected 3 batched drop commands, got %d", len(cmds))
	}
}

func TestProcessEmptyDropSetYieldsNoCommands(t *testing.T) {
	var d DropSet
	if !d.Empty() {
		t.Fatal("expected zero-value DropSet to be empty")
	}
	if cmds := d.Commands(); len(cmds) != 0 {
		t.Errorf("expected no commands, got %v", cmds)
	}
}

func TestProcessCreatedItemProducesRows(t *testing.T) {
	item := types.CatalogItem{
		ID:   types.UserID(1),
		Name: types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"},
		Kind: types.ItemTable,
	}
	out := Process([]types.CatalogEvent{{Kind: types.EventCreatedItem, Item: &item}})
	if len(out.Rows) != 1 || out.Rows[0].Sign != 1 {
		t.Fatalf("unexpected rows: %+v", out.Rows)
	}
	if !out.ToDrop.Empty() {
		t.Errorf("expected no drops for a create event, got %+v", out.ToDrop)
	}
}
