// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package accounts stores voter and admin accounts.

Every account lives in the voter table; admins are rows with role = 'admin'.
Lookups accept an email (case-insensitive) or a student ID:

	store := accounts.New(conn, cfg.DatabaseType)
	v, err := store.FindByIdentifier(ctx, "s1234567")

Writes that read-then-modify a row run in a db.Atomic transaction and, on
Postgres, lock the row with SELECT ... FOR UPDATE. On SQLite the single
connection serializes them.

The failure counter written by RecordLoginFailure is policy-free; thresholds
and durations come from the lockout package.
*/
package accounts
