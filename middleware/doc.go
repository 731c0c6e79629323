// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start (method, path, remote) and completion (status, duration_ms).

# Sessions

RequireSession accepts an access token from the "jwt" cookie or an
Authorization: Bearer header and stores the parsed claims in the request
context:

	mux.HandleFunc("POST /api/vote", middleware.WithLogging(
		middleware.RequireSession(issuer, h.CastVote)))

	claims, _ := middleware.SessionFrom(r.Context())

RequireAdmin additionally requires the admin role (403 otherwise).

SetAuthCookies writes both tokens as HTTP-only cookies. The refresh cookie is
scoped to /api/auth/refresh so it is only sent when rotating.

# CORS Middleware

Enable cross-origin requests for frontend access:

	server := http.Server{
		Handler: middleware.CORS(mux),
	}

# JSON Helpers

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# Client IP Extraction

	ip := middleware.GetClientIP(r)

Used to tag failed logins with a hashed client address.
*/
package middleware
