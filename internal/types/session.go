package types

// TxnStatus is the session's transaction status (spec.md §3).
type TxnStatus int

const (
	TxnIdle TxnStatus = iota
	TxnInTransactionImplicit
	TxnInTransactionExplicit
)

// ConnID identifies a client connection.
type ConnID uint32

// Session is externally owned; the coordinator consumes only the fields
// named in spec.md §3. SQL-layer concerns (portals, prepared statements,
// variables) are represented here as opaque maps the core never
// interprets, so that session bookkeeping can be unit-tested without a
// real SQL front end.
type Session struct {
	ConnID      ConnID
	TxnStatus   TxnStatus
	Portals     map[string]Portal
	Prepared    map[string]PreparedStatement
	Variables   map[string]string
}

// Portal is an opaque bound-statement handle (the SQL layer's concern).
type Portal struct {
	StatementName string
	Params        []string
}

// PreparedStatement is an opaque prepared statement handle.
type PreparedStatement struct {
	SQL string
}

func NewSession(id ConnID) *Session {
	return &Session{
		ConnID:    id,
		TxnStatus: TxnIdle,
		Portals:   make(map[string]Portal),
		Prepared:  make(map[string]PreparedStatement),
		Variables: make(map[string]string),
	}
}
