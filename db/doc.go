// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db handles connections, schema creation, and transactions.

# Connections

Open selects the driver from the configured database type:

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)

  - sqlite: modernc.org/sqlite (default, pure Go, one connection)
  - postgres: github.com/lib/pq
  - pgx: github.com/jackc/pgx/v5/stdlib

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - voter: credentials, enrolled descriptor, verification, lockout, has_voted
  - candidate: ballot options and their vote_count
  - election: the single voting window and results publishing state

# Atomic Units of Work

Atomic wraps a function in a transaction that commits only if the function
returns nil:

	err := db.Atomic(ctx, conn, func(tx *sql.Tx) error {
		// every statement here commits together or not at all
		return nil
	})

The vote ledger, the lockout guard, and the admin reset all go through it.
*/
package db
