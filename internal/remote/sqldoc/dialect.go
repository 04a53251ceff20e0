package sqldoc

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL driver and the few statements that differ between
// databases.
type Dialect string

const (
	// DialectSQLite is an embedded SQLite file (ncruces/go-sqlite3).
	DialectSQLite Dialect = "sqlite3"

	// DialectLibSQL is a Turso/libSQL database reached over the network.
	DialectLibSQL Dialect = "libsql"

	// DialectPostgres is PostgreSQL via lib/pq.
	DialectPostgres Dialect = "postgres"
)

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	return string(d)
}

func (d Dialect) valid() error {
	switch d {
	case DialectSQLite, DialectLibSQL, DialectPostgres:
		return nil
	}
	return fmt.Errorf("unsupported SQL dialect %q", string(d))
}

// schema returns the statements creating the documents table and the change
// log. Each statement is idempotent.
func (d Dialect) schema() []string {
	seq := "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == DialectPostgres {
		seq = "seq BIGSERIAL PRIMARY KEY"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(collection, owner_id)`,

		// Append-only; subscriptions poll it by seq.
		`CREATE TABLE IF NOT EXISTS changes (
			` + seq + `,
			collection TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			op TEXT NOT NULL,
			data TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_owner ON changes(collection, owner_id, seq)`,
	}
}

// rebind rewrites ? placeholders into the dialect's form. Only PostgreSQL
// needs it ($1, $2, ...). Queries in this package never contain a literal ?.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
