package command

import "github.com/coordinatordb/coord/internal/types"

// FromClient is the closed set of commands arriving from clients
// (spec.md §6). The rpc package encodes/decodes these across the wire;
// the coordinator's event scheduler (C8) consumes them directly.
type FromClient interface{ isFromClient() }

type Startup struct{ Session *types.Session }
type Execute struct {
	PortalName string
	Session    *types.Session
}
type NoSessionExecute struct {
	Stmt   string
	Params []any
}
type Declare struct {
	Name    string
	Stmt    string
	Session *types.Session
}
type Describe struct {
	Name    string
	Stmt    string
	Session *types.Session
}
type CancelRequest struct{ ConnID types.ConnID }
type DumpCatalog struct{}
type Terminate struct{ Session *types.Session }

func (Startup) isFromClient()          {}
func (Execute) isFromClient()          {}
func (NoSessionExecute) isFromClient() {}
func (Declare) isFromClient()          {}
func (Describe) isFromClient()         {}
func (CancelRequest) isFromClient()    {}
func (DumpCatalog) isFromClient()      {}
func (Terminate) isFromClient()        {}
