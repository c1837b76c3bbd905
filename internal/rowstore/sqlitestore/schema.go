package sqlitestore

// schema creates the single generic rows table every cabs row type (claims,
// cache rows, blob content) is persisted into, keyed by a logical table name plus
// row key. This is the "small transactional key/value row interface"
// spec.md calls for, not a typed-table-per-struct ORM.
const schema = `
CREATE TABLE IF NOT EXISTS rows (
	table_name TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	PRIMARY KEY (table_name, key)
);
`
