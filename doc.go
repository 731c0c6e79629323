// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the livevote API server.

livevote runs a single campus election. Voters register with a face
descriptor, prove liveness before logging in, and cast exactly one ballot.
Tallies stay sealed until an administrator publishes them.

# Starting the Server

The server reads environment variables (or a .env file) and CLI flags:

	DATABASE_URL=livevote.db JWT_SECRET=... JWT_REFRESH_SECRET=... go run .

Or with flags:

	go run . -p 5000 -t postgres -d "postgres://..."

# Configuration

Required settings:

  - DATABASE_URL (-d): SQLite path or PostgreSQL connection string
  - JWT_SECRET (--jwt-secret): Access token secret
  - JWT_REFRESH_SECRET (--jwt-refresh-secret): Refresh token secret, distinct from JWT_SECRET

Optional settings:

  - PORT (-p): Server port (default: 5000)
  - DATABASE_TYPE (-t): sqlite, postgres or pgx (default: sqlite)
  - REQUIRE_FACE (--require-face): Reject voter logins without an enrolled descriptor
  - SECURE_COOKIES (--secure-cookies): Mark session cookies Secure

# Architecture

  - handlers: HTTP request handlers (auth, face, vote, election, admin)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, JSON helpers, session guards
  - accounts, lockout, ledger: Voter records, login lockout, ballot casting
  - biometric, liveness: Descriptor matching and the liveness challenge
  - auth: Passwords and session tokens
  - db: Driver selection, schema, transactions
  - client: Session-tracking API client
  - cmd/votectl: Operator CLI

See package documentation for each component.
*/
package main
