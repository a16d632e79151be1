package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coordinatordb/coord/internal/catalog"
	"github.com/coordinatordb/coord/internal/command"
	"github.com/coordinatordb/coord/internal/coorderr"
	"github.com/coordinatordb/coord/internal/frontier"
	"github.com/coordinatordb/coord/internal/peek"
	"github.com/coordinatordb/coord/internal/planner"
	"github.com/coordinatordb/coord/internal/tsoracle"
	"github.com/coordinatordb/coord/internal/types"
)

type fixedClock struct{ ts types.Timestamp }

func (c fixedClock) NowMs() types.Timestamp { return c.ts }

func newTestLoop(t *testing.T) (*Loop, *LocalShipper) {
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
	oracle := tsoracle.New(fixedClock{ts: 1000})
	shipper := NewLocalShipper()
	loop := New(c, tracker, oracle, shipper, nil)
	loop.TimestamperInterval = time.Hour // keep the timestamper quiet during assertions

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop, shipper
}

func recvCommand(t *testing.T, shipper *LocalShipper) command.ToWorker {
	t.Helper()
	select {
	case cmd := <-shipper.Sent():
		return cmd
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a shipped command")
		return nil
	}
}

func expectNothingShipped(t *testing.T, shipper *LocalShipper) {
	t.Helper()
	select {
	case cmd := <-shipper.Sent():
		t.Errorf("expected nothing shipped, got %T", cmd)
	case <-time.After(50 * time.Millisecond):
	}
}

// S1 (spec.md §8): peeking a freshly created, empty table takes the fast
// path against its primary index and is timestamped by get_read_ts, not an
// error — an empty relation is still a fully materialized one.
func TestScenarioS1EmptyPeek(t *testing.T) {
	loop, shipper := newTestLoop(t)
	name := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"}
	if _, err := loop.SubmitPlan(planner.CreateTablePlan{Name: name}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	recvCommand(t, shipper) // drain the primary index dataflow
	tableID, _ := loop.Catalog.LookupByName(name)

	plan, err := loop.SubmitPeek(types.ConnID(1), "tx1", tableID, peek.Immediately(), command.MapFilterProject{}, command.RowSetFinishing{})
	if err != nil {
		t.Fatalf("SubmitPeek: %v", err)
	}
	if plan.CreateTransient != nil {
		t.Error("expected the fast path against the table's own primary index")
	}
	wantTs := loop.Oracle.GetReadTs()
	if plan.Peek.Timestamp != wantTs {
		t.Errorf("expected peek timestamped at get_read_ts()=%d, got %d", wantTs, plan.Peek.Timestamp)
	}

	cmd := recvCommand(t, shipper)
	pk, ok := cmd.(command.Peek)
	if !ok {
		t.Fatalf("expected Peek, got %T", cmd)
	}
	if pk.Timestamp != plan.Peek.Timestamp {
		t.Errorf("shipped peek timestamp %d does not match sequenced plan %d", pk.Timestamp, plan.Peek.Timestamp)
	}
}

// S2 (spec.md §8): a peek sequenced after a write's GetWriteTs must never
// observe a timestamp older than that write — read-after-write
// linearizability falls entirely out of the oracle's monotonicity, so this
// exercises it directly the way a real INSERT-then-SELECT would.
func TestScenarioS2InsertThenReadIsLinearizable(t *testing.T) {
	loop, shipper := newTestLoop(t)
	name := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"}
	if _, err := loop.SubmitPlan(planner.CreateTablePlan{Name: name}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	recvCommand(t, shipper) // drain the primary index dataflow
	tableID, _ := loop.Catalog.LookupByName(name)

	writeTs := loop.Oracle.GetWriteTs()

	plan, err := loop.SubmitPeek(types.ConnID(1), "tx1", tableID, peek.Immediately(), command.MapFilterProject{}, command.RowSetFinishing{})
	if err != nil {
		t.Fatalf("SubmitPeek: %v", err)
	}
	if plan.Peek.Timestamp < writeTs {
		t.Errorf("read timestamp %d precedes the write it must observe at %d", plan.Peek.Timestamp, writeTs)
	}

	recvCommand(t, shipper) // the peek itself
}

// S3 (spec.md §8, §4.5, §7): DROP ... CASCADE on a table tears down every
// dependent in one batch — its own primary index plus a materialized view
// built on top of it and that view's index — and errors instead when
// CASCADE is omitted.
func TestScenarioS3CascadeDrop(t *testing.T) {
	loop, shipper := newTestLoop(t)
	tableName := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"}
	if _, err := loop.SubmitPlan(planner.CreateTablePlan{Name: tableName}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	recvCommand(t, shipper) // drain the primary index dataflow
	tableID, _ := loop.Catalog.LookupByName(tableName)

	viewName := types.QualifiedName{Database: "materialize", Schema: "public", Item: "v1"}
	if _, err := loop.SubmitPlan(planner.CreateViewPlan{
		Name: viewName, Materialized: true, Uses: []types.GlobalId{tableID},
	}); err != nil {
		t.Fatalf("create materialized view: %v", err)
	}
	recvCommand(t, shipper) // drain the view's index dataflow
	viewID, _ := loop.Catalog.LookupByName(viewName)

	if _, err := loop.SubmitPlan(planner.DropPlan{ID: tableID}); err == nil {
		t.Fatal("expected dropping a table with a live dependent to fail without CASCADE")
	} else if _, ok := err.(*coorderr.CatalogConflictError); !ok {
		t.Errorf("expected a CatalogConflictError for the dangling dependency, got %T: %v", err, err)
	}

	result, err := loop.SubmitPlan(planner.DropPlan{ID: tableID, Cascade: true})
	if err != nil {
		t.Fatalf("cascade drop: %v", err)
	}
	if result.NoOp {
		t.Fatal("expected a real drop")
	}

	// The table and view ids themselves never bucket into a drop command
	// (catalogevents.Process only buckets sources/sinks/indexes); only the
	// two indexes torn down by the cascade do, in a single DropIndexes batch.
	cmd := recvCommand(t, shipper)
	di, ok := cmd.(command.DropIndexes)
	if !ok {
		t.Fatalf("expected DropIndexes, got %T", cmd)
	}
	if len(di.IDs) != 2 {
		t.Errorf("expected 2 dropped indexes (table's primary index + view's index), got %d: %v", len(di.IDs), di.IDs)
	}
	expectNothingShipped(t, shipper)

	if _, ok := loop.Catalog.Lookup(viewID); ok {
		t.Error("expected the cascaded view to be gone from the catalog")
	}
}

// S4 (spec.md §8, §4.6): peeking a view with no materialized index and no
// indexed dependency in its Uses chain errors with "non-materialized
// sources" rather than hanging or silently returning nothing.
func TestScenarioS4NonMaterializedSourceErrors(t *testing.T) {
	loop, shipper := newTestLoop(t)
	sourceName := types.QualifiedName{Database: "materialize", Schema: "public", Item: "s1"}
	if _, err := loop.SubmitPlan(planner.CreateSourcePlan{Name: sourceName}); err != nil {
		t.Fatalf("create source: %v", err)
	}
	sourceID, _ := loop.Catalog.LookupByName(sourceName)

	viewName := types.QualifiedName{Database: "materialize", Schema: "public", Item: "v1"}
	if _, err := loop.SubmitPlan(planner.CreateViewPlan{
		Name: viewName, Uses: []types.GlobalId{sourceID},
	}); err != nil {
		t.Fatalf("create view: %v", err)
	}
	viewID, _ := loop.Catalog.LookupByName(viewName)

	_, err := loop.SubmitPeek(types.ConnID(1), "tx1", viewID, peek.Immediately(), command.MapFilterProject{}, command.RowSetFinishing{})
	if err == nil {
		t.Fatal("expected an error peeking a view with no indexed dependency")
	}
	tsErr, ok := err.(*coorderr.TimestampUnavailableError)
	if !ok {
		t.Fatalf("expected TimestampUnavailableError, got %T: %v", err, err)
	}
	if tsErr.Reason != "query depends on non-materialized sources" {
		t.Errorf("unexpected reason: %q", tsErr.Reason)
	}
	expectNothingShipped(t, shipper)
}

// S5 (spec.md §8, §6): worker frontier progress that advances a since
// frontier produces an AllowCompaction broadcast; progress that doesn't
// advance it produces none.
func TestScenarioS5FrontierFeedbackDrivesCompaction(t *testing.T) {
	loop, shipper := newTestLoop(t)
	name := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"}
	if _, err := loop.SubmitPlan(planner.CreateTablePlan{Name: name}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	create := recvCommand(t, shipper).(command.CreateDataflows)
	indexID := create.Dataflows[0].Exports.Indexes[0].ID
	loop.Tracker.SetCompactionWindowMs(indexID, nil)
	window := uint64(0)
	loop.Tracker.SetCompactionWindowMs(indexID, &window)

	shipper.PushFeedback(command.FrontierUppers{Updates: []command.IDChangeBatch{
		{ID: indexID, Batch: types.NewChangeBatch(types.ChangeDelta{Time: 500, Count: 1})},
	}})

	cmd := recvCommand(t, shipper)
	ac, ok := cmd.(command.AllowCompaction)
	if !ok {
		t.Fatalf("expected AllowCompaction, got %T", cmd)
	}
	if len(ac.Frontiers) != 1 || ac.Frontiers[0].ID != indexID {
		t.Errorf("unexpected frontiers: %+v", ac.Frontiers)
	}

	// Feedback that reports no upper advance moves nothing and broadcasts
	// no compaction.
	shipper.PushFeedback(command.FrontierUppers{Updates: []command.IDChangeBatch{
		{ID: indexID, Batch: types.NewChangeBatch()},
	}})
	expectNothingShipped(t, shipper)
}

// S6 (spec.md §8, §4.7): dropping a sink while its connector build is still
// in flight must not ship a dataflow for it once the build completes — the
// external resource is the client's to clean up, but the coordinator's
// dataflow bookkeeping must treat the sink as gone.
func TestScenarioS6SinkDropRace(t *testing.T) {
	loop, shipper := newTestLoop(t)
	tableName := types.QualifiedName{Database: "materialize", Schema: "public", Item: "t1"}
	if _, err := loop.SubmitPlan(planner.CreateTablePlan{Name: tableName}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	recvCommand(t, shipper) // drain the primary index dataflow
	tableID, _ := loop.Catalog.LookupByName(tableName)

	sinkName := types.QualifiedName{Database: "materialize", Schema: "public", Item: "sink1"}
	result, err := loop.SubmitPlan(planner.CreateSinkPlan{
		Name: sinkName, From: tableID, Kind: "kafka",
		Builder: types.SinkConnectorBuilder{ConnectorType: "kafka"},
	})
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	if result.PendingSinkID == nil {
		t.Fatal("expected a pending sink id while the connector builds")
	}
	sinkID := *result.PendingSinkID

	// Drop races ahead of the builder finishing.
	if _, err := loop.SubmitPlan(planner.DropPlan{ID: sinkID}); err != nil {
		t.Fatalf("drop sink: %v", err)
	}
	// Dropping a still-Pending sink has no dataflow to tear down
	// (catalogevents.Process only buckets a Ready sink into DropSinks).
	expectNothingShipped(t, shipper)

	completed, err := loop.SubmitSinkComplete(sinkID, types.SinkConnector{ConnectorType: "kafka", ExternalID: "topic-1"}, "kafka")
	if err != nil {
		t.Fatalf("SubmitSinkComplete: %v", err)
	}
	if !completed.NoOp {
		t.Error("expected completing a dropped sink's build to be a no-op")
	}
	expectNothingShipped(t, shipper)

	if _, ok := loop.Catalog.Lookup(sinkID); ok {
		t.Error("expected the sink to stay gone from the catalog")
	}
}

// Cancellation requests are forwarded to workers as CancelPeek.
func TestScenarioCancelForwardsToWorkers(t *testing.T) {
	loop, shipper := newTestLoop(t)
	loop.CancelPeek(types.ConnID(7))

	cmd := recvCommand(t, shipper)
	cp, ok := cmd.(command.CancelPeek)
	if !ok {
		t.Fatalf("expected CancelPeek, got %T", cmd)
	}
	if cp.ConnID != types.ConnID(7) {
		t.Errorf("expected conn id 7, got %v", cp.ConnID)
	}
}

// Shutdown drains cleanly: Run returns after a Shutdown command is shipped.
func TestScenarioShutdownShipsAndStops(t *testing.T) {
	c, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()
	tracker := frontier.NewTracker()
	oracle := tsoracle.New(fixedClock{ts: 1000})
	shipper := NewLocalShipper()
	loop := New(c, tracker, oracle, shipper, nil)
	loop.TimestamperInterval = time.Hour

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	loop.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after Shutdown")
	}

	cmd := recvCommand(t, shipper)
	if _, ok := cmd.(command.Shutdown); !ok {
		t.Errorf("expected Shutdown shipped, got %T", cmd)
	}
}
