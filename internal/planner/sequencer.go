package planner

import (
	"fmt"

	"github.com/coordinatordb/coord/internal/catalog"
	"github.com/coordinatordb/coord/internal/catalog/systable"
	"github.com/coordinatordb/coord/internal/catalogevents"
	"github.com/coordinatordb/coord/internal/command"
	"github.com/coordinatordb/coord/internal/coorderr"
	"github.com/coordinatordb/coord/internal/dataflow"
	"github.com/coordinatordb/coord/internal/frontier"
	"github.com/coordinatordb/coord/internal/types"
)

// Result is everything Sequence produces from one Plan: the catalog events
// it caused (for logging/audit), the system-table rows to apply, the
// commands to ship to workers, and — for a sink whose connector is still
// Pending — the id that needs an external build before it can ship
// (spec.md §4.7).
type Result struct {
	Events            []types.CatalogEvent
	SysRows           []systable.RowOp
	Commands          []command.ToWorker
	PendingSinkID     *types.GlobalId
	PendingSinkKind   string
	NoOp              bool // true when an IF [NOT] EXISTS guard absorbed the statement
}

// Sequence applies plan against cat, consulting tracker for the since
// bounds a new dataflow's as_of must respect (spec.md §4.5, §4.9).
func Sequence(cat catalog.Catalog, tracker *frontier.Tracker, plan Plan) (Result, error) {
	switch p := plan.(type) {
	case CreateTablePlan:
		return sequenceCreateTable(cat, tracker, p)
	case CreateSourcePlan:
		return sequenceCreateSource(cat, p)
	case CreateViewPlan:
		return sequenceCreateView(cat, tracker, p)
	case CreateIndexPlan:
		return sequenceCreateIndex(cat, tracker, p)
	case CreateSinkPlan:
		return sequenceCreateSink(cat, p)
	case DropPlan:
		return sequenceDrop(cat, p)
	default:
		return Result{}, fmt.Errorf("planner: unhandled plan type %T", plan)
	}
}

func sequenceCreateTable(cat catalog.Catalog, tracker *frontier.Tracker, p CreateTablePlan) (Result, error) {
	if _, ok := cat.LookupByName(p.Name); ok {
		if p.IfNotExists {
			return Result{NoOp: true}, nil
		}
		return Result{}, &coorderr.CatalogConflictError{Err: fmt.Errorf("table %s already exists", p.Name)}
	}

	tableID := cat.AllocateID(types.IDUser)
	table := types.CatalogItem{Name: p.Name, Kind: types.ItemTable, OID: cat.AllocateOID()}
	events, err := cat.Transact([]catalog.Op{catalog.CreateItemOp{ID: tableID, Item: table}})
	if err != nil {
		return Result{}, &coorderr.CatalogConflictError{Err: err}
	}

	indexID := cat.AllocateID(types.IDUser)
	indexName := types.QualifiedName{Database: p.Name.Database, Schema: p.Name.Schema, Item: p.Name.Item + "_primary_idx"}
	index := types.CatalogItem{Name: indexName, Kind: types.ItemIndex, OID: cat.AllocateOID(), IndexOn: tableID}
	indexEvents, err := cat.Transact([]catalog.Op{catalog.CreateItemOp{ID: indexID, Item: index}})
	if err != nil {
		return Result{}, &coorderr.CatalogConflictError{Err: err}
	}
	events = append(events, indexEvents...)

	tracker.Insert(indexID, types.Frontiers{Upper: types.AntichainFromElem(0), Since: types.EmptyAntichain()})

	processed := catalogevents.Process(events)
	dataflows := []dataflow.Description{dataflow.BuildIndexDataflow(index, table, nil, nil)}
	commands := append([]command.ToWorker{command.CreateDataflows{Dataflows: dataflows}}, processed.ToDrop.Commands()...)

	return Result{Events: events, SysRows: processed.Rows, Commands: commands}, nil
}

func sequenceCreateSource(cat catalog.Catalog, p CreateSourcePlan) (Result, error) {
	if _, ok := cat.LookupByName(p.Name); ok {
		if p.IfNotExists {
			return Result{NoOp: true}, nil
		}
		return Result{}, &coorderr.CatalogConflictError{Err: fmt.Errorf("source %s already exists", p.Name)}
	}
	id := cat.AllocateID(types.IDUser)
	item := types.CatalogItem{
		Name:            p.Name,
		Kind:            types.ItemSource,
		OID:             cat.AllocateOID(),
		SourceConnector: p.Connector,
		CachingEnabled:  p.CachingEnabled,
	}
	events, err := cat.Transact([]catalog.Op{catalog.CreateItemOp{ID: id, Item: item}})
	if err != nil {
		return Result{}, &coorderr.CatalogConflictError{Err: err}
	}
	processed := catalogevents.Process(events)
	return Result{Events: events, SysRows: processed.Rows, Commands: processed.ToDrop.Commands()}, nil
}

func sequenceCreateView(cat catalog.Catalog, tracker *frontier.Tracker, p CreateViewPlan) (Result, error) {
	if _, ok := cat.LookupByName(p.Name); ok {
		if p.IfNotExists {
			return Result{NoOp: true}, nil
		}
		return Result{}, &coorderr.CatalogConflictError{Err: fmt.Errorf("view %s already exists", p.Name)}
	}
	id := cat.AllocateID(types.IDUser)
	item := types.CatalogItem{Name: p.Name, Kind: types.ItemView, OID: cat.AllocateOID(), Materialized: p.Materialized, Uses: p.Uses}
	events, err := cat.Transact([]catalog.Op{catalog.CreateItemOp{ID: id, Item: item}})
	if err != nil {
		return Result{}, &coorderr.CatalogConflictError{Err: err}
	}
	processed := catalogevents.Process(events)
	commands := processed.ToDrop.Commands()

	if p.Materialized {
		indexID := cat.AllocateID(types.IDUser)
		indexName := types.QualifiedName{Database: p.Name.Database, Schema: p.Name.Schema, Item: p.Name.Item + "_primary_idx"}
		index := types.CatalogItem{Name: indexName, Kind: types.ItemIndex, OID: cat.AllocateOID(), IndexOn: id}
		indexEvents, err := cat.Transact([]catalog.Op{catalog.CreateItemOp{ID: indexID, Item: index}})
		if err != nil {
			return Result{}, &coorderr.CatalogConflictError{Err: err}
		}
		events = append(events, indexEvents...)
		moreRows := catalogevents.Process(indexEvents)
		processed.Rows = append(processed.Rows, moreRows.Rows...)

		asOf := tracker.LeastValidSince(p.Uses)
		tracker.Insert(indexID, types.Frontiers{Upper: types.AntichainFromElem(0), Since: asOf})

		underlyingIdx, _ := cat.NearestIndexes(p.Uses)
		imports := make([]dataflow.ImportedIndex, 0, len(underlyingIdx))
		for _, uid := range underlyingIdx {
			imports = append(imports, dataflow.ImportedIndex{ID: uid})
		}
		desc := dataflow.BuildIndexDataflow(index, item, imports, nil)
		desc.AsOf = &asOf
		commands = append(commands, command.CreateDataflows{Dataflows: []dataflow.Description{desc}})
	}

	return Result{Events: events, SysRows: processed.Rows, Commands: commands}, nil
}

func sequenceCreateIndex(cat catalog.Catalog, tracker *frontier.Tracker, p CreateIndexPlan) (Result, error) {
	if _, ok := cat.LookupByName(p.Name); ok {
		if p.IfNotExists {
			return Result{NoOp: true}, nil
		}
		return Result{}, &coorderr.CatalogConflictError{Err: fmt.Errorf("index %s already exists", p.Name)}
	}
	on, ok := cat.Lookup(p.On)
	if !ok {
		return Result{}, &coorderr.CatalogConflictError{Err: fmt.Errorf("relation %s does not exist", p.On)}
	}

	id := cat.AllocateID(types.IDUser)
	item := types.CatalogItem{Name: p.Name, Kind: types.ItemIndex, OID: cat.AllocateOID(), IndexOn: p.On, IndexKeys: p.Keys}
	events, err := cat.Transact([]catalog.Op{catalog.CreateItemOp{ID: id, Item: item}})
	if err != nil {
		return Result{}, &coorderr.CatalogConflictError{Err: err}
	}

	asOf := tracker.LeastValidSince([]types.GlobalId{p.On})
	tracker.Insert(id, types.Frontiers{Upper: types.AntichainFromElem(0), Since: asOf})

	processed := catalogevents.Process(events)
	desc := dataflow.BuildIndexDataflow(item, on, nil, nil)
	desc.AsOf = &asOf
	commands := append([]command.ToWorker{command.CreateDataflows{Dataflows: []dataflow.Description{desc}}}, processed.ToDrop.Commands()...)

	return Result{Events: events, SysRows: processed.Rows, Commands: commands}, nil
}

func sequenceCreateSink(cat catalog.Catalog, p CreateSinkPlan) (Result, error) {
	if _, ok := cat.LookupByName(p.Name); ok {
		if p.IfNotExists {
			return Result{NoOp: true}, nil
		}
		return Result{}, &coorderr.CatalogConflictError{Err: fmt.Errorf("sink %s already exists", p.Name)}
	}
	if _, ok := cat.Lookup(p.From); !ok {
		return Result{}, &coorderr.CatalogConflictError{Err: fmt.Errorf("relation %s does not exist", p.From)}
	}

	id := cat.AllocateID(types.IDUser)
	item := types.CatalogItem{
		Name:          p.Name,
		Kind:          types.ItemSink,
		OID:           cat.AllocateOID(),
		SinkFrom:      p.From,
		SinkConnector: types.SinkConnectorState{Pending: &p.Builder},
	}
	events, err := cat.Transact([]catalog.Op{catalog.CreateItemOp{ID: id, Item: item}})
	if err != nil {
		return Result{}, &coorderr.CatalogConflictError{Err: err}
	}
	processed := catalogevents.Process(events)

	return Result{
		Events:          events,
		SysRows:         processed.Rows,
		Commands:        processed.ToDrop.Commands(),
		PendingSinkID:   &id,
		PendingSinkKind: p.Kind,
	}, nil
}

// CompleteSink transitions a sink from Pending to Ready once the external
// sink builder collaborator has finished, then ships its dataflow
// (spec.md §4.7). If the sink was dropped while the builder ran, the
// external side effect is already established and the caller still gets
// success, but no dataflow is shipped — the external state is the
// client's to clean up (spec.md §4.7 step 3, §7 "external-side-effect
// established").
func CompleteSink(cat catalog.Catalog, id types.GlobalId, connector types.SinkConnector, kind string) (Result, error) {
	item, ok := cat.Lookup(id)
	if !ok {
		return Result{NoOp: true}, nil
	}
	item.SinkConnector = types.SinkConnectorState{Ready: &connector}
	events, err := cat.Transact([]catalog.Op{catalog.UpdateItemOp{ID: id, Item: item}})
	if err != nil {
		return Result{}, &coorderr.CatalogConflictError{Err: err}
	}
	processed := catalogevents.Process(events)
	desc := dataflow.BuildSinkDataflow(item, kind, nil, nil)
	commands := append([]command.ToWorker{command.CreateDataflows{Dataflows: []dataflow.Description{desc}}}, processed.ToDrop.Commands()...)
	return Result{Events: events, SysRows: processed.Rows, Commands: commands}, nil
}

func sequenceDrop(cat catalog.Catalog, p DropPlan) (Result, error) {
	if _, ok := cat.Lookup(p.ID); !ok {
		if p.IfExists {
			return Result{NoOp: true}, nil
		}
		return Result{}, &coorderr.CatalogConflictError{Err: fmt.Errorf("%s does not exist", p.ID)}
	}

	order, err := resolveDropSet(cat, p.ID, p.Cascade)
	if err != nil {
		return Result{}, err
	}

	ops := make([]catalog.Op, len(order))
	for i, id := range order {
		ops[i] = catalog.DropItemOp{ID: id}
	}
	events, err := cat.Transact(ops)
	if err != nil {
		return Result{}, &coorderr.CatalogConflictError{Err: err}
	}
	processed := catalogevents.Process(events)
	return Result{Events: events, SysRows: processed.Rows, Commands: processed.ToDrop.Commands()}, nil
}

// resolveDropSet computes the ids a DROP on id must remove, in
// dependents-first order so the batch never leaves a dangling reference
// mid-transaction. Without CASCADE, any live dependent (an index built on
// id, a sink reading from it, a view whose query uses it) is a "dangling
// dependency" error (spec.md §7); DropItemOp itself never computes
// cascades (internal/catalog/op.go) — this is where the planner does it,
// one Dependents hop at a time, matching spec.md §4.5.
func resolveDropSet(cat catalog.Catalog, id types.GlobalId, cascade bool) ([]types.GlobalId, error) {
	if !cascade {
		if deps := cat.Dependents(id); len(deps) > 0 {
			return nil, &coorderr.CatalogConflictError{
				Err: fmt.Errorf("cannot drop %s: %d dependent object(s) still reference it, use CASCADE", id, len(deps)),
			}
		}
		return []types.GlobalId{id}, nil
	}

	var order []types.GlobalId
	seen := make(map[types.GlobalId]bool)
	var visit func(types.GlobalId)
	visit = func(cur types.GlobalId) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		for _, dep := range cat.Dependents(cur) {
			visit(dep)
		}
		order = append(order, cur)
	}
	visit(id)
	return order, nil
}
