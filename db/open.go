// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported database types
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypePgx      = "pgx"
)

// driverNames maps a database type to its registered database/sql driver
var driverNames = map[string]string{
	TypeSQLite:   "sqlite",
	TypePostgres: "postgres",
	TypePgx:      "pgx",
}

// Open connects to the database and verifies the connection.
// SQLite is limited to one open connection so writers queue in Go instead of
// failing with SQLITE_BUSY.
func Open(dbType, url string) (*sql.DB, error) {
	driver, ok := driverNames[dbType]
	if !ok {
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}

	if dbType == TypeSQLite {
		url = sqliteDSN(url)
	}

	conn, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dbType, err)
	}

	if dbType == TypeSQLite {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dbType, err)
	}

	return conn, nil
}

// sqliteDSN adds the pragmas the ledger relies on unless the caller set them
func sqliteDSN(url string) string {
	if strings.Contains(url, "_pragma=") {
		return url
	}
	if !strings.HasPrefix(url, "file:") {
		url = "file:" + url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// SupportsRowLocks reports whether SELECT ... FOR UPDATE / FOR SHARE is
// available. SQLite serializes writers instead.
func SupportsRowLocks(dbType string) bool {
	return dbType == TypePostgres || dbType == TypePgx
}
