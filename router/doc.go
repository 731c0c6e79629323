// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the livevote API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(db, cfg, clock.Real{})

# Endpoints

Health:

	GET /health

Authentication (public):

	POST /api/auth/register - Create a pending voter and sign in
	POST /api/auth/login    - Password, lockout and face checks
	POST /api/auth/refresh  - Rotate tokens (refresh_token cookie)
	POST /api/auth/logout   - Revoke refresh token, clear cookies

Signed-in voter (jwt cookie or Bearer token):

	GET  /api/auth/profile         - Current voter
	PUT  /api/auth/update-password - Change password
	POST /api/face/verify          - Compare a live descriptor
	POST /api/vote                 - Cast the final ballot

Public:

	GET /api/candidates       - Ballot, without tallies
	GET /api/election         - Election window
	GET /api/election/results - Results once published

Administration (admin role):

	GET  /api/admin/voters              - List voters
	PUT  /api/admin/verify-voter/{id}   - Verify or reject a pending voter
	GET  /api/admin/election/tally      - Live tally
	PUT  /api/admin/election/publish    - Toggle results publishing
	POST /api/admin/election/reset      - Reset tallies (password required)
	POST /api/admin/election/stop       - Close voting now (password required)
*/
package router
