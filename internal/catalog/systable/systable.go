// Package systable renders catalog events as insert/delete rows against the
// coordinator's system-visible tables (spec.md §6). Because physical
// dataflow execution is out of scope (SPEC_FULL.md §6), these are plain
// SQL tables rather than differential-dataflow arrangements — the
// coordinator's job is only to produce the correct +1/-1 row stream, which
// is exactly what diff-applying a CatalogEvent means here.
package systable

import (
	"github.com/coordinatordb/coord/internal/types"
)

// Table names mirror the catalog object they describe.
const (
	Databases   = "mz_databases"
	Schemas     = "mz_schemas"
	Tables      = "mz_tables"
	Sources     = "mz_sources"
	Views       = "mz_views"
	Sinks       = "mz_sinks"
	Indexes     = "mz_indexes"
	IndexCols   = "mz_index_columns"
	Types       = "mz_types"
	ArrayTypes  = "mz_array_types"
	BaseTypes   = "mz_base_types"
	ListTypes   = "mz_list_types"
	MapTypes    = "mz_map_types"
	KafkaSinks  = "mz_kafka_sinks"
	AvroSinks   = "mz_avro_ocf_sinks"
)

// RowOp is one signed row change against a system table.
type RowOp struct {
	Table string
	Sign  int64 // +1 insert, -1 delete
	Row   map[string]any
}

// Diff translates a single CatalogEvent into the row operations needed to
// keep the system tables consistent with the catalog (spec.md §4.4).
func Diff(ev types.CatalogEvent) []RowOp {
	switch ev.Kind {
	case types.EventCreatedDatabase:
		return []RowOp{{Table: Databases, Sign: 1, Row: map[string]any{"name": ev.DatabaseName}}}

	case types.EventDroppedDatabase:
		return []RowOp{{Table: Databases, Sign: -1, Row: map[string]any{"name": ev.DatabaseName}}}

	case types.EventCreatedSchema:
		return []RowOp{{Table: Schemas, Sign: 1, Row: map[string]any{"database": ev.DatabaseName, "name": ev.SchemaName}}}

	case types.EventDroppedSchema:
		return []RowOp{{Table: Schemas, Sign: -1, Row: map[string]any{"database": ev.DatabaseName, "name": ev.SchemaName}}}

	case types.EventCreatedItem:
		if ev.Item == nil {
			return nil
		}
		return itemRows(*ev.Item, 1)

	case types.EventDroppedItem, types.EventDroppedIndex:
		if ev.Item == nil {
			return nil
		}
		return itemRows(*ev.Item, -1)

	case types.EventUpdatedItem:
		if ev.Item == nil {
			return nil
		}
		// A rename is a delete of the old name's row plus an insert of the
		// new one. When OldName is the zero value or equals NewName, no
		// retraction is emitted, only the insert of the current row.
		var ops []RowOp
		if ev.OldName != (types.QualifiedName{}) && ev.OldName != ev.NewName {
			old := *ev.Item
			old.Name = ev.OldName
			ops = append(ops, itemRows(old, -1)...)
		}
		ops = append(ops, itemRows(*ev.Item, 1)...)
		return ops

	default:
		return nil
	}
}

func itemRows(item types.CatalogItem, sign int64) []RowOp {
	var ops []RowOp
	base := map[string]any{
		"id":       item.ID.String(),
		"oid":      item.OID,
		"database": item.Name.Database,
		"schema":   item.Name.Schema,
		"name":     item.Name.Item,
	}
	switch item.Kind {
	case types.ItemTable:
		ops = append(ops, RowOp{Table: Tables, Sign: sign, Row: copyRow(base)})
	case types.ItemSource:
		row := copyRow(base)
		row["connector"] = item.SourceConnector
		row["caching_enabled"] = item.CachingEnabled
		ops = append(ops, RowOp{Table: Sources, Sign: sign, Row: row})
	case types.ItemView:
		row := copyRow(base)
		row["materialized"] = item.Materialized
		ops = append(ops, RowOp{Table: Views, Sign: sign, Row: row})
	case types.ItemSink:
		ops = append(ops, RowOp{Table: Sinks, Sign: sign, Row: copyRow(base)})
		if item.SinkConnector.IsReady() {
			ops = append(ops, RowOp{
				Table: connectorTable(item.SinkConnector.Ready.ConnectorType),
				Sign:  sign,
				Row:   map[string]any{"id": item.ID.String(), "external_id": item.SinkConnector.Ready.ExternalID},
			})
		}
	case types.ItemIndex:
		row := copyRow(base)
		row["on_id"] = item.IndexOn.String()
		ops = append(ops, RowOp{Table: Indexes, Sign: sign, Row: row})
		for pos, key := range item.IndexKeys {
			ops = append(ops, RowOp{Table: IndexCols, Sign: sign, Row: map[string]any{
				"index_id": item.ID.String(), "position": pos, "expr": key.Expr,
			}})
		}
	case types.ItemType:
		ops = append(ops, RowOp{Table: Types, Sign: sign, Row: copyRow(base)})
		if item.Type != nil {
			ops = append(ops, typeDetailRow(item, sign))
		}
	}
	return ops
}

func typeDetailRow(item types.CatalogItem, sign int64) RowOp {
	id := item.ID.String()
	switch item.Type.Kind {
	case "array":
		return RowOp{Table: ArrayTypes, Sign: sign, Row: map[string]any{"type_id": id, "element_type_id": elemID(item.Type.ElementTypeID)}}
	case "list":
		return RowOp{Table: ListTypes, Sign: sign, Row: map[string]any{"type_id": id, "element_type_id": elemID(item.Type.ElementTypeID)}}
	case "map":
		return RowOp{Table: MapTypes, Sign: sign, Row: map[string]any{"type_id": id, "key_type_id": elemID(item.Type.KeyTypeID), "value_type_id": elemID(item.Type.ValueTypeID)}}
	default:
		return RowOp{Table: BaseTypes, Sign: sign, Row: map[string]any{"type_id": id}}
	}
}

func elemID(id *types.GlobalId) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func connectorTable(connectorType string) string {
	switch connectorType {
	case "kafka":
		return KafkaSinks
	case "avro-ocf":
		return AvroSinks
	default:
		return Sinks
	}
}

func copyRow(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
