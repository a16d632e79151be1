// Package rpc is the coordinator's client-facing transport: a newline-
// delimited JSON request/response protocol over a Unix domain socket,
// grounded on the teacher's daemon RPC surface (internal/rpc in the
// teacher repo) but scoped to the command vocabulary in internal/command
// instead of issue-tracker operations.
package rpc

import (
	"encoding/json"
)

// Operation names for every FromClient/plan/peek surface the coordinator
// exposes over the wire.
const (
	OpStartup          = "startup"
	OpExecute          = "execute"
	OpNoSessionExecute = "no_session_execute"
	OpDeclare          = "declare"
	OpDescribe         = "describe"
	OpCancel           = "cancel"
	OpDumpCatalog      = "dump_catalog"
	OpTerminate        = "terminate"

	OpCreateTable  = "create_table"
	OpCreateSource = "create_source"
	OpCreateView   = "create_view"
	OpCreateIndex  = "create_index"
	OpCreateSink   = "create_sink"
	OpDrop         = "drop"
	OpPeek         = "peek"

	OpStatus   = "status"
	OpHealth   = "health"
	OpShutdown = "shutdown"
)

// Request is an RPC request from client to coordinator.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args"`
	ConnID    uint32          `json:"conn_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Response is an RPC response from coordinator to client.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// CreateTableArgs, CreateSourceArgs, CreateViewArgs, CreateIndexArgs, and
// CreateSinkArgs carry the fields planner.Plan needs — the rpc layer is a
// thin marshaling boundary, not a SQL parser (spec.md §1 Non-goals).
type CreateTableArgs struct {
	Database    string `json:"database"`
	Schema      string `json:"schema"`
	Name        string `json:"name"`
	IfNotExists bool   `json:"if_not_exists"`
}

type CreateSourceArgs struct {
	Database       string `json:"database"`
	Schema         string `json:"schema"`
	Name           string `json:"name"`
	Connector      string `json:"connector"`
	CachingEnabled bool   `json:"caching_enabled"`
	IfNotExists    bool   `json:"if_not_exists"`
}

type CreateViewArgs struct {
	Database     string   `json:"database"`
	Schema       string   `json:"schema"`
	Name         string   `json:"name"`
	Materialized bool     `json:"materialized"`
	ExprRef      string   `json:"expr_ref"`
	Uses         []string `json:"uses"` // encoded GlobalIds, "kind:value"
	IfNotExists  bool     `json:"if_not_exists"`
}

type CreateIndexArgs struct {
	Database    string   `json:"database"`
	Schema      string   `json:"schema"`
	Name        string   `json:"name"`
	On          string   `json:"on"` // encoded GlobalId
	Keys        []string `json:"keys"`
	IfNotExists bool     `json:"if_not_exists"`
}

type CreateSinkArgs struct {
	Database      string            `json:"database"`
	Schema        string            `json:"schema"`
	Name          string            `json:"name"`
	From          string            `json:"from"` // encoded GlobalId
	ConnectorType string            `json:"connector_type"`
	Config        map[string]string `json:"config"`
	Kind          string            `json:"kind"`
	IfNotExists   bool              `json:"if_not_exists"`
}

type DropArgs struct {
	ID       string `json:"id"` // encoded GlobalId
	Cascade  bool   `json:"cascade"`
	IfExists bool   `json:"if_exists"`
}

type PeekArgs struct {
	ConnID uint32  `json:"conn_id"`
	Tx     string  `json:"tx"`
	Target string  `json:"target"`         // encoded GlobalId
	AsOf   *uint64 `json:"as_of,omitempty"` // pinned read timestamp; nil reads at the current moment
}

type PeekReply struct {
	Rows     [][]any `json:"rows,omitempty"`
	Error    string  `json:"error,omitempty"`
	Canceled bool    `json:"canceled,omitempty"`
}

type CancelArgs struct {
	ConnID uint32 `json:"conn_id"`
}

// HealthReply mirrors the teacher's health check shape: status plus uptime,
// so a client can distinguish "not listening" from "listening but broken".
type HealthReply struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime_seconds"`
	Error  string  `json:"error,omitempty"`
}

// DescribeArgs names a catalog object by id or qualified name for
// `coord explain`. Exactly one of ID or Name should be set.
type DescribeArgs struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// DescribeReply is a read-only snapshot of a catalog entry plus its
// frontier state. It is not a query plan — SQL plan generation remains out
// of scope (spec.md §1 Non-goals); this only reports what the catalog and
// frontier tracker already know about the object.
type DescribeReply struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	SQL            string `json:"sql,omitempty"`
	SourceConnector string `json:"source_connector,omitempty"`
	CachingEnabled bool   `json:"caching_enabled,omitempty"`
	Materialized   bool   `json:"materialized,omitempty"`
	SinkFrom       string `json:"sink_from,omitempty"`
	SinkState      string `json:"sink_state,omitempty"`
	IndexOn        string `json:"index_on,omitempty"`
	Since          string `json:"since,omitempty"`
	Upper          string `json:"upper,omitempty"`
}

// StatusReply reports coordinator identity for `coord status`.
type StatusReply struct {
	DataDir       string `json:"data_dir"`
	SocketPath    string `json:"socket_path"`
	PID           int    `json:"pid"`
	Version       string `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}
