package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // database/sql driver "mysql"
)

// OpenMySQL opens a read-only adapter over a MySQL checkpoint database.
// The dsn uses the go-sql-driver format, e.g. "user:pass@tcp(host)/db".
func OpenMySQL(dsn string) (Adapter, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql database: %w", err)
	}
	return newSQLAdapter(db, mysqlDriver{})
}

type mysqlDriver struct{}

func (mysqlDriver) dialect() Dialect { return DialectMySQL }

func (mysqlDriver) rebind(query string) string { return query }

func (mysqlDriver) versionQuery() string { return "SELECT VERSION()" }

func (mysqlDriver) features() map[string]bool {
	return map[string]bool{
		"native_json":      true,
		"jsonb":            false,
		"full_text_search": true,
		"server":           true,
	}
}
