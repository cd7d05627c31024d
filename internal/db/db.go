// Package db opens the SQL databases the audit log is written to.
package db

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqliteParams enables WAL and waits up to 5s on a locked database, which
// happens when several agents finish at once.
var sqliteParams = url.Values{
	"_foreign_keys": {"on"},
	"_mode":         {"rwc"},
	"_busy_timeout": {"5000"},
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
}

// Open connects to driver at dsn and verifies the connection. For sqlite the
// dsn is a file path whose parent directory is created if missing.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	var (
		conn *sqlx.DB
		err  error
	)
	switch driver {
	case DriverSQLite:
		conn, err = openSQLite(dsn)
	case DriverPostgres:
		conn, err = sqlx.Open("pgx", dsn)
		if err == nil {
			conn.SetMaxOpenConns(10)
			conn.SetMaxIdleConns(2)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connect to %s database: %w", driver, err)
	}
	return conn, nil
}

func openSQLite(path string) (*sqlx.DB, error) {
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, err
		}
		path = abs
	}
	conn, err := sqlx.Open("sqlite3", "file:"+path+"?"+sqliteParams.Encode())
	if err != nil {
		return nil, err
	}
	// One writer avoids SQLITE_BUSY between the spawn and finish inserts.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	return conn, nil
}
