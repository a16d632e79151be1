// Package command defines the closed message sets that cross the
// coordinator's boundaries: downstream commands to workers, feedback from
// workers, and the client-facing command set (spec.md §6). These are
// plain data — no behavior — so that every layer above (C4 through C8,
// the rpc transport) can share one vocabulary without import cycles.
package command

import (
	"github.com/coordinatordb/coord/internal/dataflow"
	"github.com/coordinatordb/coord/internal/types"
)

// ToWorker is the closed set of commands the coordinator broadcasts
// downstream. Implementations are unexported marker methods so the union
// stays closed to this package.
type ToWorker interface{ isToWorker() }

type CreateDataflows struct{ Dataflows []dataflow.Description }
type DropSources struct{ IDs []types.GlobalId }
type DropSinks struct{ IDs []types.GlobalId }
type DropIndexes struct{ IDs []types.GlobalId }
type Peek struct {
	ID               types.GlobalId
	Key              []types.IndexKeyExpr // optional literal key probe
	ConnID           types.ConnID
	Tx               string // opaque transaction token
	Timestamp        types.Timestamp
	Finishing        RowSetFinishing
	MapFilterProject MapFilterProject
}
type CancelPeek struct{ ConnID types.ConnID }
type Insert struct {
	ID      types.GlobalId
	Updates []Update
}
type Update struct {
	Row   []any
	Count int64
}
type AdvanceAllLocalInputs struct{ AdvanceTo types.Timestamp }
type AdvanceSourceTimestamp struct {
	ID     types.GlobalId
	Update SourceTimestampUpdate
}
type SourceTimestampUpdate struct {
	PartitionID string
	Offset      uint64
	Timestamp   types.Timestamp
}
type AllowCompaction struct{ Frontiers []IDFrontier }
type IDFrontier struct {
	ID       types.GlobalId
	Frontier types.Antichain
}
type EnableLogging struct{ Config LoggingConfig }
type LoggingConfig struct {
	GranularityMs uint64
}
type EnableFeedback struct{}
type EnableCaching struct{}
type Shutdown struct{}

func (CreateDataflows) isToWorker()        {}
func (DropSources) isToWorker()            {}
func (DropSinks) isToWorker()              {}
func (DropIndexes) isToWorker()            {}
func (Peek) isToWorker()                   {}
func (CancelPeek) isToWorker()             {}
func (Insert) isToWorker()                 {}
func (AdvanceAllLocalInputs) isToWorker()  {}
func (AdvanceSourceTimestamp) isToWorker() {}
func (AllowCompaction) isToWorker()        {}
func (EnableLogging) isToWorker()          {}
func (EnableFeedback) isToWorker()         {}
func (EnableCaching) isToWorker()          {}
func (Shutdown) isToWorker()               {}

// RowSetFinishing captures ORDER BY / LIMIT / OFFSET / projection applied
// after aggregation (spec.md §4.6). The row-set finishing algorithm itself
// is a planner/execution concern; the coordinator only threads it through.
type RowSetFinishing struct {
	OrderBy   []int
	Limit     *uint64
	Offset    uint64
	ProjectTo []int
}

// MapFilterProject is an opaque planner-produced predicate/projection
// pipeline. The coordinator inspects it only to test literal-key
// constraints in the fast-path probe (C6).
type MapFilterProject struct {
	Predicates []LiteralConstraint
}

// LiteralConstraint records that column Col is constrained to Value by an
// equality predicate, the shape the fast-path prober looks for.
type LiteralConstraint struct {
	Col   int
	Value any
}

// FromWorker is the closed set of feedback messages workers emit.
type FromWorker interface{ isFromWorker() }

type FrontierUppers struct {
	Updates []IDChangeBatch
}
type IDChangeBatch struct {
	ID    types.GlobalId
	Batch types.ChangeBatch
}
type CreateSource struct{ Instance SourceInstance }
type DroppedSource struct{ Instance SourceInstance }
type SourceInstance struct {
	ID  types.GlobalId
	IID uint64 // instance id, unique per (re)instantiation
}
type PeekResponse struct {
	ConnID types.ConnID
	Tx     string
	Result PeekResult
}

// PeekResult is the worker's answer to a Peek: exactly one of Rows, Error,
// or Canceled is set. Aggregation across workers follows spec.md §4.6:
// Error dominates Canceled dominates Rows.
type PeekResult struct {
	Rows     [][]any
	Error    string
	Canceled bool
}

func (FrontierUppers) isFromWorker() {}
func (CreateSource) isFromWorker()   {}
func (DroppedSource) isFromWorker()  {}
func (PeekResponse) isFromWorker()   {}
