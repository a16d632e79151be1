package types

// ItemKind discriminates the CatalogItem tagged union (spec.md §3). Match
// exhaustively on this; the union is closed by design (spec.md §9).
type ItemKind int

const (
	ItemTable ItemKind = iota
	ItemSource
	ItemView
	ItemSink
	ItemIndex
	ItemType
)

func (k ItemKind) String() string {
	switch k {
	case ItemTable:
		return "table"
	case ItemSource:
		return "source"
	case ItemView:
		return "view"
	case ItemSink:
		return "sink"
	case ItemIndex:
		return "index"
	case ItemType:
		return "type"
	default:
		return "unknown"
	}
}

// SinkConnectorState is the two-state machine described in spec.md §4.7
// and §9: Pending carries only enough information to rebuild the
// connector; Ready is the only state for which a dataflow exists.
type SinkConnectorState struct {
	Pending *SinkConnectorBuilder
	Ready   *SinkConnector
}

func (s SinkConnectorState) IsPending() bool { return s.Pending != nil }
func (s SinkConnectorState) IsReady() bool   { return s.Ready != nil }

// SinkConnectorBuilder is the durable recipe handed to the external sink
// builder collaborator (spec.md §6).
type SinkConnectorBuilder struct {
	ConnectorType string
	Config        map[string]string
}

// SinkConnector is the realized external resource (e.g. a topic handle).
type SinkConnector struct {
	ConnectorType string
	ExternalID    string
}

// IndexKeyExpr is an opaque, planner-produced key expression. The
// coordinator core treats these as comparable values; their SQL semantics
// belong to the external planner (spec.md §1 Non-goals).
type IndexKeyExpr struct {
	Expr string
}

// TypeDescriptor captures the item-specific fields of a CatalogItem{Type}
// for parameterised types (array/list/map), per spec.md §4.4.
type TypeDescriptor struct {
	Kind         string // "base", "array", "list", "map"
	ElementTypeID *GlobalId
	KeyTypeID     *GlobalId
	ValueTypeID   *GlobalId
}

// CatalogItem is the closed tagged union of catalog object kinds.
type CatalogItem struct {
	ID     GlobalId
	OID    uint64
	Name   QualifiedName
	Kind   ItemKind
	SQL    string

	// Table: no extra fields beyond the shared ones; tables always have an
	// auto-generated primary index (a separate CatalogItem of Kind Index).

	// Source
	SourceConnector string // opaque descriptor name; connector construction is out of scope
	CachingEnabled  bool

	// View
	Materialized bool
	Uses         []GlobalId // relations this view reads from, for cascade-drop resolution

	// Sink
	SinkConnector SinkConnectorState
	SinkFrom      GlobalId

	// Index
	IndexOn   GlobalId
	IndexKeys []IndexKeyExpr

	// Type
	Type *TypeDescriptor
}

// QualifiedName is database.schema.item.
type QualifiedName struct {
	Database string
	Schema   string
	Item     string
}

func (q QualifiedName) String() string {
	return q.Database + "." + q.Schema + "." + q.Item
}
