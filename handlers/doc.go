// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the livevote API.

# Handler Types

Each handler is a struct with database, config and clock dependencies:

  - AuthHandler: Registration, login, token refresh, logout, profile
  - FaceHandler: Explicit face verification
  - VoteHandler: Ballot listing and vote casting
  - ElectionHandler: Election window and published results
  - AdminHandler: Voter verification, publishing, reset and emergency stop

Handlers are created via constructor functions:

	authHandler := handlers.NewAuthHandler(db, cfg, clock.Real{})

Routes that need a signed-in voter are wrapped in middleware.RequireSession
or middleware.RequireAdmin, which put the token claims on the request
context.

# Login

Login checks, in order: the account exists, it is not locked, the password
matches, and (for voters) the live descriptor matches the enrolled one at
distance < 0.45. Wrong passwords and face mismatches both count toward the
lockout. Failures against an active lock are not counted, and a correct
password that races a lock-imposing failure still gets 423. A voter login
without a descriptor is answered with 428 so the client can run the
liveness challenge and retry.

	401 {"remaining_attempts": 3}
	423 {"minutes_remaining": 15}
	428 Face verification required

# Voting

CastVote delegates to the ledger, which increments the tally and marks the
voter in one transaction. Of any number of concurrent ballots from the same
voter exactly one is accepted; the rest get 400.

# Administration

Reset and emergency stop re-confirm the admin's password:

	POST /api/admin/election/reset {"password": "..."}
*/
package handlers
