// Package planner implements C5: the dispatcher that turns a resolved plan
// into catalog mutations and the worker commands those mutations imply
// (spec.md §4.5). The plans themselves are plain data; producing them from
// SQL text is a planner/parser concern out of scope here (spec.md §1).
package planner

import (
	"github.com/coordinatordb/coord/internal/types"
)

// Plan is the closed set of statements C5 knows how to sequence.
type Plan interface{ isPlan() }

type CreateTablePlan struct {
	Name        types.QualifiedName
	IfNotExists bool
}

type CreateSourcePlan struct {
	Name            types.QualifiedName
	Connector       string
	CachingEnabled  bool
	IfNotExists     bool
}

type CreateViewPlan struct {
	Name         types.QualifiedName
	Materialized bool
	ExprRef      string
	Uses         []types.GlobalId
	IfNotExists  bool
}

type CreateIndexPlan struct {
	Name        types.QualifiedName
	On          types.GlobalId
	Keys        []types.IndexKeyExpr
	IfNotExists bool
}

type CreateSinkPlan struct {
	Name        types.QualifiedName
	From        types.GlobalId
	Builder     types.SinkConnectorBuilder
	Kind        string
	IfNotExists bool
}

type DropPlan struct {
	ID       types.GlobalId
	Cascade  bool
	IfExists bool
}

func (CreateTablePlan) isPlan()  {}
func (CreateSourcePlan) isPlan() {}
func (CreateViewPlan) isPlan()   {}
func (CreateIndexPlan) isPlan()  {}
func (CreateSinkPlan) isPlan()   {}
func (DropPlan) isPlan()         {}
