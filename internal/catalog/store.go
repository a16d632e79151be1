package catalog

import (
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/coordinatordb/coord/internal/types"
)

// SQLiteCatalog is the default Catalog implementation, backed by a single
// SQLite file (SPEC_FULL.md §3, "Persistence layout"). It opens the
// database through database/sql exactly the way the teacher's external
// dependency resolver does (sql.Open("sqlite3", path)), using the pure-Go
// ncruces/go-sqlite3 driver so the coordinator binary stays cgo-free.
type SQLiteCatalog struct {
	db *sql.DB

	// transientCounter is never persisted: transient ids live only for the
	// duration of a single peek/tail and must never collide with a
	// restart-recovered user or system id (spec.md §9).
	transientCounter atomic.Uint64
}

// Open opens (creating if necessary) the catalog database at path and
// applies the schema. The _txlock=immediate query parameter makes every
// transaction opened through database/sql's Tx.Begin start with BEGIN
// IMMEDIATE, acquiring the write lock up front instead of on first write —
// the same early-lock behavior the teacher's storage layer documents for
// its own transactions.
func Open(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite writer serialization; avoids SQLITE_BUSY under BEGIN IMMEDIATE
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

// Close releases the underlying database handle.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// Transact applies ops inside a single BEGIN IMMEDIATE transaction,
// grounded on the teacher's RunInTransaction contract (internal/storage:
// "Uses BEGIN IMMEDIATE mode to acquire write lock early").
func (c *SQLiteCatalog) Transact(ops []Op) ([]types.CatalogEvent, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("catalog: begin transaction: %w", err)
	}

	events := make([]types.CatalogEvent, 0, len(ops))
	for i, op := range ops {
		ev, err := c.applyOp(tx, op)
		if err != nil {
			tx.Rollback()
			return nil, &ErrCatalogConflict{OpIndex: i, Err: err}
		}
		events = append(events, ev...)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: commit: %w", err)
	}
	return events, nil
}

func (c *SQLiteCatalog) applyOp(tx *sql.Tx, op Op) ([]types.CatalogEvent, error) {
	switch o := op.(type) {
	case CreateDatabaseOp:
		if _, err := tx.Exec(`INSERT INTO databases (name) VALUES (?)`, o.Name); err != nil {
			return nil, fmt.Errorf("%w: database %q: %v", ErrAlreadyExists, o.Name, err)
		}
		return []types.CatalogEvent{{Kind: types.EventCreatedDatabase, DatabaseName: o.Name}}, nil

	case CreateSchemaOp:
		if _, err := tx.Exec(`INSERT INTO schemas (database, name) VALUES (?, ?)`, o.Database, o.Name); err != nil {
			return nil, fmt.Errorf("%w: schema %q.%q: %v", ErrAlreadyExists, o.Database, o.Name, err)
		}
		return []types.CatalogEvent{{Kind: types.EventCreatedSchema, DatabaseName: o.Database, SchemaName: o.Name}}, nil

	case CreateItemOp:
		payloadStr, err := marshalPayload(o.Item)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(
			`INSERT INTO items (id_kind, id_value, oid, database, schema, name, kind, sql, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			int(o.ID.Kind), o.ID.Value, o.Item.OID,
			o.Item.Name.Database, o.Item.Name.Schema, o.Item.Name.Item,
			int(o.Item.Kind), o.Item.SQL, payloadStr,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: item %s: %v", ErrAlreadyExists, o.Item.Name, err)
		}
		item := o.Item
		item.ID = o.ID
		return []types.CatalogEvent{{Kind: types.EventCreatedItem, Item: &item}}, nil

	case RenameItemOp:
		item, err := c.lookupTx(tx, o.ID)
		if err != nil {
			return nil, err
		}
		oldName := item.Name
		_, err = tx.Exec(
			`UPDATE items SET database = ?, schema = ?, name = ? WHERE id_kind = ? AND id_value = ?`,
			o.NewName.Database, o.NewName.Schema, o.NewName.Item, int(o.ID.Kind), o.ID.Value,
		)
		if err != nil {
			return nil, fmt.Errorf("catalog: rename %s to %s: %w", oldName, o.NewName, err)
		}
		item.Name = o.NewName
		return []types.CatalogEvent{{Kind: types.EventUpdatedItem, OldName: oldName, NewName: o.NewName, Item: &item}}, nil

	case UpdateItemOp:
		payloadStr, err := marshalPayload(o.Item)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(
			`UPDATE items SET sql = ?, payload = ? WHERE id_kind = ? AND id_value = ?`,
			o.Item.SQL, payloadStr, int(o.ID.Kind), o.ID.Value,
		)
		if err != nil {
			return nil, fmt.Errorf("catalog: update %s: %w", o.ID, err)
		}
		item := o.Item
		item.ID = o.ID
		return []types.CatalogEvent{{Kind: types.EventUpdatedItem, NewName: item.Name, Item: &item}}, nil

	case DropDatabaseOp:
		if _, err := tx.Exec(`DELETE FROM databases WHERE name = ?`, o.Name); err != nil {
			return nil, fmt.Errorf("catalog: drop database %q: %w", o.Name, err)
		}
		return []types.CatalogEvent{{Kind: types.EventDroppedDatabase, DatabaseName: o.Name}}, nil

	case DropSchemaOp:
		if _, err := tx.Exec(`DELETE FROM schemas WHERE database = ? AND name = ?`, o.Database, o.Name); err != nil {
			return nil, fmt.Errorf("catalog: drop schema %q.%q: %w", o.Database, o.Name, err)
		}
		return []types.CatalogEvent{{Kind: types.EventDroppedSchema, DatabaseName: o.Database, SchemaName: o.Name}}, nil

	case DropItemOp:
		item, err := c.lookupTx(tx, o.ID)
		if err != nil {
			return nil, err
		}
		var nullability []bool
		if item.Kind == types.ItemIndex {
			nullability = indexNullabilitySnapshot(item)
		}
		if _, err := tx.Exec(`DELETE FROM items WHERE id_kind = ? AND id_value = ?`, int(o.ID.Kind), o.ID.Value); err != nil {
			return nil, fmt.Errorf("catalog: drop item %s: %w", o.ID, err)
		}
		kind := types.EventDroppedItem
		if item.Kind == types.ItemIndex {
			kind = types.EventDroppedIndex
		}
		return []types.CatalogEvent{{Kind: kind, Item: &item, IndexNullability: nullability}}, nil

	default:
		return nil, fmt.Errorf("catalog: unhandled op type %T", op)
	}
}

// indexNullabilitySnapshot is a placeholder: NOT NULL inference from an
// index's key columns is a planner concern (spec.md §1 Non-goals). The
// coordinator only preserves a slot for the planner to fill before the
// event is broadcast.
func indexNullabilitySnapshot(types.CatalogItem) []bool {
	return nil
}

func (c *SQLiteCatalog) lookupTx(tx *sql.Tx, id types.GlobalId) (types.CatalogItem, error) {
	row := tx.QueryRow(
		`SELECT oid, database, schema, name, kind, sql, payload FROM items WHERE id_kind = ? AND id_value = ?`,
		int(id.Kind), id.Value,
	)
	return scanItem(row, id)
}

func scanItem(row *sql.Row, id types.GlobalId) (types.CatalogItem, error) {
	var oid uint64
	var db, schema, name, sqlText, payloadStr string
	var kind int
	if err := row.Scan(&oid, &db, &schema, &name, &kind, &sqlText, &payloadStr); err != nil {
		if err == sql.ErrNoRows {
			return types.CatalogItem{}, fmt.Errorf("%w: item %s", ErrNotFound, id)
		}
		return types.CatalogItem{}, fmt.Errorf("catalog: scan item %s: %w", id, err)
	}
	base := types.CatalogItem{
		ID:   id,
		OID:  oid,
		Name: types.QualifiedName{Database: db, Schema: schema, Item: name},
		Kind: types.ItemKind(kind),
		SQL:  sqlText,
	}
	return unmarshalPayload(payloadStr, base)
}

// AllocateID implements Catalog.
func (c *SQLiteCatalog) AllocateID(kind types.IDKind) types.GlobalId {
	if kind == types.IDTransient {
		return types.TransientID(c.transientCounter.Add(1))
	}
	var next uint64
	err := c.db.QueryRow(
		`INSERT INTO id_counters (id_kind, next) VALUES (?, 2)
		 ON CONFLICT(id_kind) DO UPDATE SET next = next + 1
		 RETURNING next - 1`,
		int(kind),
	).Scan(&next)
	if err != nil {
		// The id namespace must never stall the event loop; a counter read
		// failure indicates a corrupt catalog file, which is a fatal
		// invariant violation the caller surfaces (spec.md §7).
		panic(fmt.Errorf("catalog: allocate id: %w", err))
	}
	return types.GlobalId{Kind: kind, Value: next}
}

// AllocateOID implements Catalog.
func (c *SQLiteCatalog) AllocateOID() uint64 {
	var next uint64
	err := c.db.QueryRow(`UPDATE oid_counter SET next = next + 1 WHERE id = 1 RETURNING next - 1`).Scan(&next)
	if err != nil {
		panic(fmt.Errorf("catalog: allocate oid: %w", err))
	}
	return next
}

// Lookup implements Catalog.
func (c *SQLiteCatalog) Lookup(id types.GlobalId) (types.CatalogItem, bool) {
	row := c.db.QueryRow(
		`SELECT oid, database, schema, name, kind, sql, payload FROM items WHERE id_kind = ? AND id_value = ?`,
		int(id.Kind), id.Value,
	)
	item, err := scanItem(row, id)
	return item, err == nil
}

// ForSession implements Catalog. Default database/schema come from the
// session's "database"/"schema" variables, falling back to "materialize"
// and "public" the way a freshly started session does before any SET.
func (c *SQLiteCatalog) ForSession(session *types.Session) SessionView {
	database, schema := "materialize", "public"
	if session != nil {
		if v, ok := session.Variables["database"]; ok && v != "" {
			database = v
		}
		if v, ok := session.Variables["schema"]; ok && v != "" {
			schema = v
		}
	}
	return SessionView{cat: c, database: database, schema: schema}
}

// LookupByName implements Catalog.
func (c *SQLiteCatalog) LookupByName(name types.QualifiedName) (types.GlobalId, bool) {
	var kind, value int64
	err := c.db.QueryRow(
		`SELECT id_kind, id_value FROM items WHERE database = ? AND schema = ? AND name = ?`,
		name.Database, name.Schema, name.Item,
	).Scan(&kind, &value)
	if err != nil {
		return types.GlobalId{}, false
	}
	return types.GlobalId{Kind: types.IDKind(kind), Value: uint64(value)}, true
}

// Indexes implements Catalog.
func (c *SQLiteCatalog) Indexes(relationID types.GlobalId) []CandidateIndex {
	target := encodeGlobalID(relationID)
	rows, err := c.db.Query(
		`SELECT id_kind, id_value, payload FROM items WHERE kind = ? AND json_extract(payload, '$.index_on') = ?`,
		int(types.ItemIndex), target,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []CandidateIndex
	for rows.Next() {
		var kind int
		var value uint64
		var payloadStr string
		if err := rows.Scan(&kind, &value, &payloadStr); err != nil {
			continue
		}
		id := types.GlobalId{Kind: types.IDKind(kind), Value: value}
		item, err := unmarshalPayload(payloadStr, types.CatalogItem{ID: id, Kind: types.ItemIndex})
		if err != nil {
			continue
		}
		out = append(out, CandidateIndex{IndexID: id, Keys: item.IndexKeys})
	}
	return out
}

// NearestIndexes implements Catalog.
func (c *SQLiteCatalog) NearestIndexes(uses []types.GlobalId) ([]types.GlobalId, bool) {
	var ids []types.GlobalId
	complete := true
	for _, rel := range uses {
		cands := c.Indexes(rel)
		if len(cands) == 0 {
			complete = false
			continue
		}
		for _, cand := range cands {
			ids = append(ids, cand.IndexID)
		}
	}
	return ids, complete
}

// DefaultIndexFor implements Catalog.
func (c *SQLiteCatalog) DefaultIndexFor(relationID types.GlobalId) (types.GlobalId, bool) {
	cands := c.Indexes(relationID)
	if len(cands) == 0 {
		return types.GlobalId{}, false
	}
	return cands[0].IndexID, true
}

// Dependents implements Catalog by scanning every item for a reference back
// to id: an index's index_on, a sink's sink_from, or a view's uses list.
// The catalog is small enough (one process's worth of databases/schemas)
// that a full scan beats maintaining a separate edges table.
func (c *SQLiteCatalog) Dependents(id types.GlobalId) []types.GlobalId {
	target := encodeGlobalID(id)
	rows, err := c.db.Query(`SELECT id_kind, id_value, kind, payload FROM items`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []types.GlobalId
	for rows.Next() {
		var idKind, kind int
		var idValue uint64
		var payloadStr string
		if err := rows.Scan(&idKind, &idValue, &kind, &payloadStr); err != nil {
			continue
		}
		itemID := types.GlobalId{Kind: types.IDKind(idKind), Value: idValue}
		item, err := unmarshalPayload(payloadStr, types.CatalogItem{ID: itemID, Kind: types.ItemKind(kind)})
		if err != nil {
			continue
		}
		switch item.Kind {
		case types.ItemIndex:
			if encodeGlobalID(item.IndexOn) == target {
				out = append(out, itemID)
			}
		case types.ItemSink:
			if encodeGlobalID(item.SinkFrom) == target {
				out = append(out, itemID)
			}
		case types.ItemView:
			for _, u := range item.Uses {
				if u == id {
					out = append(out, itemID)
					break
				}
			}
		}
	}
	return out
}

// UsesTables implements Catalog. A relation "uses tables" when it is itself
// a Table, or when it is an Index/View built directly on one: the
// coordinator core does not walk a full expression graph (that belongs to
// the planner, spec.md §1 Non-goals), so this reports only the one-hop
// relationship it can observe directly in the catalog.
func (c *SQLiteCatalog) UsesTables(relationID types.GlobalId) bool {
	item, ok := c.Lookup(relationID)
	if !ok {
		return false
	}
	switch item.Kind {
	case types.ItemTable:
		return true
	case types.ItemIndex:
		on, ok := c.Lookup(item.IndexOn)
		return ok && on.Kind == types.ItemTable
	case types.ItemView:
		for _, u := range item.Uses {
			if used, ok := c.Lookup(u); ok && used.Kind == types.ItemTable {
				return true
			}
		}
		return false
	default:
		return false
	}
}
