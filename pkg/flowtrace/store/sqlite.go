package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// OpenSQLite opens a read-only adapter over a SQLite checkpoint database.
// The dsn is a file path (e.g. "./checkpoints.db") or ":memory:" for testing.
func OpenSQLite(dsn string) (Adapter, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return newSQLAdapter(db, sqliteDriver{})
}

type sqliteDriver struct{}

func (sqliteDriver) dialect() Dialect { return DialectSQLite }

func (sqliteDriver) rebind(query string) string { return query }

func (sqliteDriver) versionQuery() string { return "SELECT sqlite_version()" }

func (sqliteDriver) features() map[string]bool {
	return map[string]bool{
		"native_json":      true, // json1 extension
		"jsonb":            false,
		"full_text_search": true,
		"server":           false,
	}
}
