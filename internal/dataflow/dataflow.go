// Package dataflow implements C3: a purely functional builder that turns
// catalog items into dataflow descriptions (spec.md §4.3). It never
// touches coordinator state.
package dataflow

import "github.com/coordinatordb/coord/internal/types"

// ImportedIndex names an index a dataflow reads through.
type ImportedIndex struct {
	ID  types.GlobalId
	Key []types.IndexKeyExpr
}

// ImportedSource names a source a dataflow reads directly.
type ImportedSource struct {
	ID types.GlobalId
}

// ExportedIndex names an index a dataflow materializes.
type ExportedIndex struct {
	ID   types.GlobalId
	Key  []types.IndexKeyExpr
	Type string // opaque relation-type descriptor; SQL typing is out of scope
}

// ExportedSink names a sink a dataflow streams into.
type ExportedSink struct {
	ID   types.GlobalId
	Kind string // "tail" | "kafka" | "avro-ocf" | ...
}

// Description is the value produced by Build: a debug name, an optional
// as_of frontier, imports, an internal expression graph reference, and
// exports. The expression graph itself is a planner artifact (out of
// scope, spec.md §1); we carry an opaque reference to it.
type Description struct {
	DebugName string
	AsOf      *types.Antichain
	Imports   struct {
		Indexes []ImportedIndex
		Sources []ImportedSource
	}
	Expr    ExprGraph
	Exports struct {
		Indexes []ExportedIndex
		Sinks   []ExportedSink
	}
}

// ExprGraph is an opaque handle to the planner-produced relation
// expression this dataflow computes. The coordinator core only needs to
// know which indexes/sources it touches (captured separately as Imports),
// not its internal shape.
type ExprGraph struct {
	Ref string
}

// BuildIndexDataflow builds the description for materializing item (which
// must be Kind Index) on top of its underlying relation.
func BuildIndexDataflow(item types.CatalogItem, on types.CatalogItem, underlyingIndexes []ImportedIndex, underlyingSources []ImportedSource) Description {
	d := Description{DebugName: "index/" + item.Name.String()}
	d.Imports.Indexes = underlyingIndexes
	d.Imports.Sources = underlyingSources
	d.Expr = ExprGraph{Ref: on.Name.String()}
	d.Exports.Indexes = []ExportedIndex{{ID: item.ID, Key: item.IndexKeys, Type: on.Name.String()}}
	return d
}

// BuildSinkDataflow builds the description for streaming item (which must
// be Kind Sink) from its source relation.
func BuildSinkDataflow(item types.CatalogItem, sinkKind string, underlyingIndexes []ImportedIndex, underlyingSources []ImportedSource) Description {
	d := Description{DebugName: "sink/" + item.Name.String()}
	d.Imports.Indexes = underlyingIndexes
	d.Imports.Sources = underlyingSources
	d.Expr = ExprGraph{Ref: item.SinkFrom.String()}
	d.Exports.Sinks = []ExportedSink{{ID: item.ID, Kind: sinkKind}}
	return d
}

// BuildTransientDataflow builds a one-shot dataflow for a peek/tail that
// missed the fast path: it imports the source expression and exports a
// single primary index at the given id, as_of pinned to asOf (spec.md
// §4.6).
func BuildTransientDataflow(transientID types.GlobalId, exprRef string, underlyingIndexes []ImportedIndex, underlyingSources []ImportedSource, asOf types.Antichain) Description {
	d := Description{DebugName: "transient/" + transientID.String()}
	d.AsOf = &asOf
	d.Imports.Indexes = underlyingIndexes
	d.Imports.Sources = underlyingSources
	d.Expr = ExprGraph{Ref: exprRef}
	d.Exports.Indexes = []ExportedIndex{{ID: transientID, Type: exprRef}}
	return d
}

// ImportedIndexIDs extracts the index ids a description imports, the
// common input needed by since/as_of computations in C1 and C6.
func (d Description) ImportedIndexIDs() []types.GlobalId {
	ids := make([]types.GlobalId, 0, len(d.Imports.Indexes))
	for _, imp := range d.Imports.Indexes {
		ids = append(ids, imp.ID)
	}
	return ids
}
