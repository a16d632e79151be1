package catalog

// schema is applied with CREATE TABLE IF NOT EXISTS on every open, the same
// idempotent-bootstrap idiom the teacher uses for its issue database.
const schema = `
CREATE TABLE IF NOT EXISTS databases (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS schemas (
	database TEXT NOT NULL,
	name     TEXT NOT NULL,
	PRIMARY KEY (database, name),
	FOREIGN KEY (database) REFERENCES databases(name) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS items (
	id_kind  INTEGER NOT NULL,
	id_value INTEGER NOT NULL,
	oid      INTEGER NOT NULL UNIQUE,
	database TEXT NOT NULL,
	schema   TEXT NOT NULL,
	name     TEXT NOT NULL,
	kind     INTEGER NOT NULL,
	sql      TEXT NOT NULL DEFAULT '',
	payload  TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (id_kind, id_value),
	UNIQUE (database, schema, name),
	FOREIGN KEY (database, schema) REFERENCES schemas(database, name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_items_kind ON items(kind);

CREATE TABLE IF NOT EXISTS id_counters (
	id_kind INTEGER PRIMARY KEY,
	next    INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS oid_counter (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	next INTEGER NOT NULL DEFAULT 20000
);

INSERT OR IGNORE INTO oid_counter (id, next) VALUES (1, 20000);
`
