package store

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx"
)

// OpenPostgres opens a read-only adapter over a PostgreSQL checkpoint
// database. The dsn is a standard postgres URL or key/value string.
func OpenPostgres(dsn string) (Adapter, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	return newSQLAdapter(db, postgresDriver{})
}

type postgresDriver struct{}

func (postgresDriver) dialect() Dialect { return DialectPostgres }

func (postgresDriver) rebind(query string) string { return rebindPositional(query) }

func (postgresDriver) versionQuery() string { return "SELECT version()" }

func (postgresDriver) features() map[string]bool {
	return map[string]bool{
		"native_json":      true,
		"jsonb":            true,
		"full_text_search": true,
		"server":           true,
	}
}
