// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides credential hashing, ID generation, and session tokens.

# Passwords

Passwords are hashed with bcrypt (cost 10):

	hash, err := auth.HashPassword("hunter22")
	err = auth.CheckPassword(hash, "hunter22") // nil or ErrInvalidCredentials

# Session Tokens

Sessions are issued by a TokenIssuer. The default implementation signs
HS256 JWTs with separate secrets for access and refresh tokens:

	issuer := auth.NewJWTIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret, clock.Real{})
	access, err := issuer.IssueAccess(voterID, role)   // 15 minutes
	refresh, err := issuer.IssueRefresh(voterID, role) // 7 days

	claims, err := issuer.ParseAccess(access.Value)

Token validation uses the injected clock, so expiry is testable.

# ID Generation

Voter and candidate rows use UUIDs:

	id := auth.NewRecordID()

Random hex IDs remain available for opaque values:

	id, err := auth.GenerateID(16)  // 32 hex characters

# IP Hashing

Failed logins log a salted hash of the client address instead of the address:

	hash := auth.HashIP(ipAddress, salt)
*/
package auth
