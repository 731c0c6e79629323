// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/danielhkuo/livevote/auth"
	"github.com/danielhkuo/livevote/middleware"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// authed runs next as if RequireSession had accepted voterID
func authed(next http.HandlerFunc, voterID, role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := &auth.Claims{VoterID: voterID, Role: role}
		next(w, r.WithContext(middleware.WithSession(r.Context(), claims)))
	}
}

// atDistance returns a 128-dim descriptor at distance d from the zero vector
func atDistance(d float64) []float64 {
	desc := make([]float64, 128)
	desc[0] = d
	return desc
}

func zeros() []float64 {
	return make([]float64, 128)
}

func loginAttempts(t *testing.T, conn *sql.DB, voterID string) int {
	t.Helper()

	var n int
	if err := conn.QueryRow(`SELECT login_attempts FROM voter WHERE id = $1`, voterID).Scan(&n); err != nil {
		t.Fatalf("Failed to read login_attempts: %v", err)
	}
	return n
}

func verificationStatus(t *testing.T, conn *sql.DB, voterID string) string {
	t.Helper()

	var s string
	if err := conn.QueryRow(`SELECT verification_status FROM voter WHERE id = $1`, voterID).Scan(&s); err != nil {
		t.Fatalf("Failed to read verification_status: %v", err)
	}
	return s
}

func cookieNamed(w interface{ Result() *http.Response }, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
