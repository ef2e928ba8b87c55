package db

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/yourorg/synapse/internal/config"
)

// Connect opens the SQL database selected by the store config. Only the
// mysql and sqlite drivers are SQL backed.
func Connect(cfg config.Store) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		return sql.Open("mysql", cfg.MySQL.DSN())
	case config.DriverSQLite:
		conn, err := sql.Open("sqlite3", sqliteDSN(cfg.SQLitePath))
		if err != nil {
			return nil, err
		}
		// One connection: sqlite serialises writers and :memory: databases
		// are private to the connection that created them.
		conn.SetMaxOpenConns(1)
		return conn, nil
	default:
		return nil, fmt.Errorf("driver %q is not SQL backed", cfg.Driver)
	}
}

func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on"
}

// EnsureSchema creates the access token table if it does not exist.
func EnsureSchema(conn *sql.DB, driver string, skip bool) error {
	if skip {
		log.Printf("EnsureSchema: skipped (DB_SKIP_SCHEMA)")
		return nil
	}

	switch driver {
	case config.DriverMySQL:
		_, err := conn.Exec(`
			CREATE TABLE IF NOT EXISTS access_tokens (
				token VARCHAR(128) NOT NULL PRIMARY KEY,
				device_id VARCHAR(255) NOT NULL DEFAULT '',
				registered_at TIMESTAMP NULL,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
		`)
		return err
	case config.DriverSQLite:
		_, err := conn.Exec(`
			CREATE TABLE IF NOT EXISTS access_tokens (
				token TEXT NOT NULL PRIMARY KEY,
				device_id TEXT NOT NULL DEFAULT '',
				registered_at DATETIME NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`)
		return err
	default:
		return fmt.Errorf("no schema for driver %q", driver)
	}
}
