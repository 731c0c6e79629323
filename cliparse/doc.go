// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

An optional .env file in the working directory is loaded first
(github.com/joho/godotenv). Variables already set in the environment are
never overwritten by it.

# Config Fields

  - Port: Server listen port (default: 5000)
  - DatabaseURL: connection string or SQLite file (required)
  - DatabaseType: sqlite (default), postgres, or pgx
  - JWTSecret: access token signing secret (required)
  - JWTRefreshSecret: refresh token signing secret (required, distinct)
  - AllowDescriptorlessLogin: password-only login for voters with no
    enrolled face descriptor (default: true)
  - SecureCookies: set the Secure attribute on session cookies

# CLI Flags

	-p                   Server port
	-d                   Database URL
	-t                   Database type
	--jwt-secret         Access token secret
	--jwt-refresh-secret Refresh token secret
	--require-face       Disable descriptor-less login
	--secure-cookies     Secure session cookies

# Environment Variables

Flags fall back to environment variables:

	PORT               → -p
	DATABASE_URL       → -d
	DATABASE_TYPE      → -t
	JWT_SECRET         → --jwt-secret
	JWT_REFRESH_SECRET → --jwt-refresh-secret
	REQUIRE_FACE       → --require-face
	SECURE_COOKIES     → --secure-cookies

CLI flags take precedence over environment variables.
*/
package cliparse
