package catalog

import "github.com/coordinatordb/coord/internal/types"

// Op is the closed set of mutations a single Transact call can batch
// together. The catalog applies every Op in one BEGIN IMMEDIATE
// transaction and either commits all of them or none.
type Op interface{ isOp() }

type CreateDatabaseOp struct{ Name string }
type CreateSchemaOp struct {
	Database string
	Name     string
}
type CreateItemOp struct {
	ID   types.GlobalId
	Item types.CatalogItem
}
type RenameItemOp struct {
	ID      types.GlobalId
	NewName types.QualifiedName
}
type UpdateItemOp struct {
	ID   types.GlobalId
	Item types.CatalogItem
}
type DropDatabaseOp struct{ Name string }
type DropSchemaOp struct {
	Database string
	Name     string
}

// DropItemOp drops a single catalog item. For a cascading drop the caller
// puts one DropItemOp per dependent (indexes/sinks that read the dropped
// item) into the same batch; the catalog itself never computes cascades,
// that is the planner's job (spec.md §4.5).
type DropItemOp struct {
	ID types.GlobalId
}

func (CreateDatabaseOp) isOp() {}
func (CreateSchemaOp) isOp()   {}
func (CreateItemOp) isOp()     {}
func (RenameItemOp) isOp()     {}
func (UpdateItemOp) isOp()     {}
func (DropDatabaseOp) isOp()   {}
func (DropSchemaOp) isOp()     {}
func (DropItemOp) isOp()       {}
