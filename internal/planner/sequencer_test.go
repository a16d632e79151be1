package planner

import (
	"path/filepath"
	"testing"

	"github.com/coordinatordb/coord/internal/catalog"
	"github.com/coordinatordb/coord/internal/command"
	"github.com/coordinatordb/coord/internal/frontier"
	"github.com/coordinatordb/coord/internal/types"
)

func newTestCatalog(t *testing.T) *catalog.SQLiteCatalog {
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
	return c
}

func TestSequenceCreateTableShipsPrimaryIndex(t *testing.T) {
	c := newTestCatalog(t)
	tracker := frontier.NewTracker()
	name := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"}

	result, err := Sequence(c, tracker, CreateTablePlan{Name: name})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if result.NoOp {
		t.Fatal("expected a real create, not a no-op")
	}
	if len(result.Commands) != 1 {
		t.Fatalf("expected one CreateDataflows command, got %d: %+v", len(result.Commands), result.Commands)
	}
	if _, ok := result.Commands[0].(command.CreateDataflows); !ok {
		t.Errorf("expected CreateDataflows, got %T", result.Commands[0])
	}

	if _, ok := c.LookupByName(name); !ok {
		t.Error("expected table to exist in catalog")
	}
}

func TestSequenceCreateTableIfNotExistsIsNoOp(t *testing.T) {
	c := newTestCatalog(t)
	tracker := frontier.NewTracker()
	name := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"}

	if _, err := Sequence(c, tracker, CreateTablePlan{Name: name}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	result, err := Sequence(c, tracker, CreateTablePlan{Name: name, IfNotExists: true})
	if err != nil {
		t.Fatalf("second create with IF NOT EXISTS: %v", err)
	}
	if !result.NoOp {
		t.Error("expected IF NOT EXISTS to absorb the duplicate create")
	}
}

func TestSequenceCreateTableConflictWithoutGuard(t *testing.T) {
	c := newTestCatalog(t)
	tracker := frontier.NewTracker()
	name := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"}

	if _, err := Sequence(c, tracker, CreateTablePlan{Name: name}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := Sequence(c, tracker, CreateTablePlan{Name: name}); err == nil {
		t.Fatal("expected conflict error on duplicate create without IF NOT EXISTS")
	}
}

func TestSequenceDropIfExists(t *testing.T) {
	c := newTestCatalog(t)
	tracker := frontier.NewTracker()
	result, err := Sequence(c, tracker, DropPlan{ID: types.UserID(999), IfExists: true})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if !result.NoOp {
		t.Error("expected DROP ... IF EXISTS on a missing id to be a no-op")
	}
}

func TestSequenceCreateIndexUsesLeastValidSince(t *testing.T) {
	c := newTestCatalog(t)
	tracker := frontier.NewTracker()
	tableName := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"}
	if _, err := Sequence(c, tracker, CreateTablePlan{Name: tableName}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	tableID, _ := c.LookupByName(tableName)

	indexName := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1_secondary_idx"}
	result, err := Sequence(c, tracker, CreateIndexPlan{Name: indexName, On: tableID, Keys: []types.IndexKeyExpr{{Expr: "#1"}}})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if len(result.Commands) == 0 {
		t.Fatal("expected a CreateDataflows command")
	}
}

func TestCompleteSinkTransitionsToReady(t *testing.T) {
	c := newTestCatalog(t)
	tracker := frontier.NewTracker()
	tableName := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"}
	if _, err := Sequence(c, tracker, CreateTablePlan{Name: tableName}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	tableID, _ := c.LookupByName(tableName)

	sinkName := types.QualifiedName{Database: "materialize", Schema: "public", Item: "s1"}
	result, err := Sequence(c, tracker, CreateSinkPlan{
		Name: sinkName, From: tableID, Kind: "kafka",
		Builder: types.SinkConnectorBuilder{ConnectorType: "kafka", Config: map[string]string{"topic": "t1"}},
	})
	if err != nil {
		t.Fatalf("Sequence: %v", err)
	}
	if result.PendingSinkID == nil {
		t.Fatal("expected a pending sink id")
	}

	completed, err := CompleteSink(c, *result.PendingSinkID, types.SinkConnector{ConnectorType: "kafka", ExternalID: "topic-1"}, "kafka")
	if err != nil {
		t.Fatalf("CompleteSink: %v", err)
	}
	if len(completed.Commands) != 1 {
		t.Fatalf("expected one CreateDataflows command, got %+v", completed.Commands)
	}

	item, ok := c.Lookup(*result.PendingSinkID)
	if !ok || !item.SinkConnector.IsReady() {
		t.Errorf("expected sink connector to be Ready, got %+v", item.SinkConnector)
	}
}
