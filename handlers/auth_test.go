// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/middleware"
	"github.com/danielhkuo/livevote/models"
	"github.com/danielhkuo/livevote/testutil"
)

func TestRegister(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewAuthHandler(db, cfg, clock.NewFake(t0))

	testutil.CreateTestVoter(t, db, testutil.VoterOpts{Email: "taken@example.edu", StudentID: "S-TAKEN"})

	tests := []struct {
		name           string
		req            models.RegisterRequest
		expectedStatus int
	}{
		{
			name: "valid registration with face",
			req: models.RegisterRequest{
				Name: "Ada", Email: "Ada@Example.edu", Password: "long-enough",
				StudentID: "S1", Descriptor: zeros(),
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "valid registration without face",
			req:            models.RegisterRequest{Name: "Brian", Email: "brian@example.edu", Password: "long-enough"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "missing name",
			req:            models.RegisterRequest{Email: "x@example.edu", Password: "long-enough"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid email",
			req:            models.RegisterRequest{Name: "X", Email: "not-an-email", Password: "long-enough"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "short password",
			req:            models.RegisterRequest{Name: "X", Email: "x@example.edu", Password: "short"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "duplicate email",
			req:            models.RegisterRequest{Name: "X", Email: "TAKEN@example.edu", Password: "long-enough"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "duplicate student id",
			req:            models.RegisterRequest{Name: "X", Email: "new@example.edu", Password: "long-enough", StudentID: "S-TAKEN"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "student id shaped like an email",
			req:            models.RegisterRequest{Name: "X", Email: "new@example.edu", Password: "long-enough", StudentID: "taken@example.edu"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.MakeRequest("POST", "/api/auth/register", tt.req, nil)
			w := httptest.NewRecorder()

			handler.Register(w, req)

			testutil.AssertStatus(t, w, tt.expectedStatus)
			if tt.expectedStatus != http.StatusCreated {
				return
			}

			var resp models.SessionResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.Voter.Role != models.RoleVoter {
				t.Errorf("Expected role voter, got %s", resp.Voter.Role)
			}
			if resp.Voter.VerificationStatus != models.StatusPending {
				t.Errorf("Expected pending status, got %s", resp.Voter.VerificationStatus)
			}
			if resp.Voter.HasVoted {
				t.Error("New voter should not have voted")
			}
			if resp.Voter.FaceEnrolled != (tt.req.Descriptor != nil) {
				t.Errorf("FaceEnrolled = %v", resp.Voter.FaceEnrolled)
			}
			if resp.AccessToken == "" || resp.RefreshToken == "" {
				t.Error("Expected both tokens in the body")
			}
			if cookieNamed(w, middleware.AccessCookie) == nil || cookieNamed(w, middleware.RefreshCookie) == nil {
				t.Error("Expected both auth cookies")
			}
		})
	}
}

func TestLogin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	clk := clock.NewFake(t0)
	handler := NewAuthHandler(db, cfg, clk)

	corrupt := `{"not":"an array"}`
	lockUntil := t0.Add(10*time.Minute + 30*time.Second)

	enrolled := testutil.CreateTestVoter(t, db, testutil.VoterOpts{StudentID: "S100", Descriptor: zeros()})
	plain := testutil.CreateTestVoter(t, db, testutil.VoterOpts{Email: "plain@example.edu"})
	broken := testutil.CreateTestVoter(t, db, testutil.VoterOpts{Email: "broken@example.edu", RawDesc: &corrupt})
	locked := testutil.CreateTestVoter(t, db, testutil.VoterOpts{Email: "locked@example.edu", Attempts: 5, LockUntil: &lockUntil})
	admin := testutil.CreateTestVoter(t, db, testutil.VoterOpts{Email: "admin@example.edu", Role: models.RoleAdmin})

	tests := []struct {
		name              string
		req               models.LoginRequest
		expectedStatus    int
		remainingAttempts *int
		minutesRemaining  *int
		voterID           string
		attemptsAfter     int
	}{
		{
			name:           "face within login threshold",
			req:            models.LoginRequest{Identifier: "S100", Password: testutil.TestPassword, Descriptor: atDistance(0.40)},
			expectedStatus: http.StatusOK,
			voterID:        enrolled,
		},
		{
			name:           "descriptor omitted for enrolled voter",
			req:            models.LoginRequest{Identifier: "S100", Password: testutil.TestPassword},
			expectedStatus: http.StatusPreconditionRequired,
			voterID:        enrolled,
		},
		{
			name:              "face outside login threshold",
			req:               models.LoginRequest{Identifier: "S100", Password: testutil.TestPassword, Descriptor: atDistance(0.60)},
			expectedStatus:    http.StatusUnauthorized,
			remainingAttempts: intPtr(4),
			voterID:           enrolled,
			attemptsAfter:     1,
		},
		{
			name:              "wrong password",
			req:               models.LoginRequest{Identifier: "plain@example.edu", Password: "wrong"},
			expectedStatus:    http.StatusUnauthorized,
			remainingAttempts: intPtr(4),
			voterID:           plain,
			attemptsAfter:     1,
		},
		{
			name:           "descriptorless voter bypasses face check",
			req:            models.LoginRequest{Email: "PLAIN@example.edu", Password: testutil.TestPassword},
			expectedStatus: http.StatusOK,
			voterID:        plain,
		},
		{
			name:           "unknown identifier",
			req:            models.LoginRequest{Identifier: "nobody@example.edu", Password: "whatever"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "corrupt stored descriptor",
			req:            models.LoginRequest{Identifier: "broken@example.edu", Password: testutil.TestPassword, Descriptor: zeros()},
			expectedStatus: http.StatusInternalServerError,
			voterID:        broken,
		},
		{
			name:             "locked even with correct password",
			req:              models.LoginRequest{Identifier: "locked@example.edu", Password: testutil.TestPassword},
			expectedStatus:   http.StatusLocked,
			minutesRemaining: intPtr(11),
			voterID:          locked,
			attemptsAfter:    5,
		},
		{
			name:           "admin needs no face",
			req:            models.LoginRequest{Identifier: "admin@example.edu", Password: testutil.TestPassword},
			expectedStatus: http.StatusOK,
			voterID:        admin,
		},
		{
			name:           "missing password",
			req:            models.LoginRequest{Identifier: "S100"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.voterID != "" {
				db.Exec(`UPDATE voter SET login_attempts = 0 WHERE id = $1 AND lock_until IS NULL`, tt.voterID)
			}

			req := testutil.MakeRequest("POST", "/api/auth/login", tt.req, nil)
			w := httptest.NewRecorder()

			handler.Login(w, req)

			testutil.AssertStatus(t, w, tt.expectedStatus)

			if tt.expectedStatus == http.StatusOK {
				var resp models.SessionResponse
				testutil.AssertJSON(t, w, &resp)
				if resp.Voter.ID != tt.voterID {
					t.Errorf("Expected voter %s, got %s", tt.voterID, resp.Voter.ID)
				}
			} else {
				var resp models.LoginErrorResponse
				testutil.AssertJSON(t, w, &resp)
				if !equalIntPtr(resp.RemainingAttempts, tt.remainingAttempts) {
					t.Errorf("remaining_attempts = %v, want %v", deref(resp.RemainingAttempts), deref(tt.remainingAttempts))
				}
				if !equalIntPtr(resp.MinutesRemaining, tt.minutesRemaining) {
					t.Errorf("minutes_remaining = %v, want %v", deref(resp.MinutesRemaining), deref(tt.minutesRemaining))
				}
			}

			if tt.voterID != "" {
				if got := loginAttempts(t, db, tt.voterID); got != tt.attemptsAfter {
					t.Errorf("login_attempts = %d, want %d", got, tt.attemptsAfter)
				}
			}
		})
	}
}

func TestLoginRequireFace(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	cfg.AllowDescriptorlessLogin = false
	handler := NewAuthHandler(db, cfg, clock.NewFake(t0))

	testutil.CreateTestVoter(t, db, testutil.VoterOpts{Email: "plain@example.edu"})

	req := testutil.MakeRequest("POST", "/api/auth/login", models.LoginRequest{
		Identifier: "plain@example.edu", Password: testutil.TestPassword,
	}, nil)
	w := httptest.NewRecorder()
	handler.Login(w, req)

	testutil.AssertStatus(t, w, http.StatusForbidden)
}

// TestLoginLockoutBoundary walks a voter from four failures through the lock
// and out the other side
func TestLoginLockoutBoundary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	clk := clock.NewFake(t0)
	handler := NewAuthHandler(db, cfg, clk)

	voterID := testutil.CreateTestVoter(t, db, testutil.VoterOpts{Email: "edge@example.edu", Attempts: 4})

	login := func(password string) *httptest.ResponseRecorder {
		req := testutil.MakeRequest("POST", "/api/auth/login", models.LoginRequest{
			Identifier: "edge@example.edu", Password: password,
		}, nil)
		w := httptest.NewRecorder()
		handler.Login(w, req)
		return w
	}

	// Fifth failure imposes the lock
	w := login("wrong")
	testutil.AssertStatus(t, w, http.StatusLocked)
	var resp models.LoginErrorResponse
	testutil.AssertJSON(t, w, &resp)
	if deref(resp.MinutesRemaining) != 15 {
		t.Errorf("minutes_remaining = %d, want 15", deref(resp.MinutesRemaining))
	}
	if got := loginAttempts(t, db, voterID); got != 5 {
		t.Errorf("login_attempts = %d, want 5", got)
	}

	// Correct password is still rejected while locked
	clk.Advance(14 * time.Minute)
	testutil.AssertStatus(t, login(testutil.TestPassword), http.StatusLocked)

	clk.Advance(time.Minute + time.Second)
	testutil.AssertStatus(t, login(testutil.TestPassword), http.StatusOK)
	if got := loginAttempts(t, db, voterID); got != 0 {
		t.Errorf("login_attempts after success = %d, want 0", got)
	}
}

func TestRefreshRotation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	clk := clock.NewFake(t0)
	handler := NewAuthHandler(db, cfg, clk)

	testutil.CreateTestVoter(t, db, testutil.VoterOpts{Email: "r@example.edu"})

	req := testutil.MakeRequest("POST", "/api/auth/login", models.LoginRequest{
		Identifier: "r@example.edu", Password: testutil.TestPassword,
	}, nil)
	w := httptest.NewRecorder()
	handler.Login(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
	first := cookieNamed(w, middleware.RefreshCookie)
	if first == nil {
		t.Fatal("Expected refresh cookie")
	}
	if first.Path != middleware.RefreshCookiePath {
		t.Errorf("Refresh cookie path = %q", first.Path)
	}

	refresh := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/auth/refresh", nil)
		if token != "" {
			req.AddCookie(&http.Cookie{Name: middleware.RefreshCookie, Value: token})
		}
		w := httptest.NewRecorder()
		handler.Refresh(w, req)
		return w
	}

	clk.Advance(time.Minute)
	w = refresh(first.Value)
	testutil.AssertStatus(t, w, http.StatusOK)
	second := cookieNamed(w, middleware.RefreshCookie)
	if second == nil || second.Value == first.Value {
		t.Fatal("Expected a rotated refresh token")
	}

	// The rotated-out token no longer works
	testutil.AssertStatus(t, refresh(first.Value), http.StatusUnauthorized)
	testutil.AssertStatus(t, refresh(second.Value), http.StatusOK)
	testutil.AssertStatus(t, refresh(""), http.StatusUnauthorized)
	testutil.AssertStatus(t, refresh("garbage"), http.StatusUnauthorized)
}

func TestLogout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewAuthHandler(db, cfg, clock.Real{})

	voterID := testutil.CreateTestVoter(t, db, testutil.VoterOpts{})
	db.Exec(`UPDATE voter SET refresh_token = 'stored' WHERE id = $1`, voterID)

	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	w := httptest.NewRecorder()
	authed(handler.Logout, voterID, models.RoleVoter)(w, req)

	testutil.AssertStatus(t, w, http.StatusOK)

	var stored *string
	db.QueryRow(`SELECT refresh_token FROM voter WHERE id = $1`, voterID).Scan(&stored)
	if stored != nil {
		t.Errorf("Expected refresh token cleared, got %q", *stored)
	}

	c := cookieNamed(w, middleware.AccessCookie)
	if c == nil || c.MaxAge >= 0 {
		t.Error("Expected the jwt cookie to be expired")
	}

	// Without a session it still clears cookies
	w = httptest.NewRecorder()
	handler.Logout(w, httptest.NewRequest("POST", "/api/auth/logout", nil))
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestProfile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewAuthHandler(db, cfg, clock.Real{})

	voterID := testutil.CreateTestVoter(t, db, testutil.VoterOpts{StudentID: "S7", Descriptor: zeros()})

	w := httptest.NewRecorder()
	authed(handler.Profile, voterID, models.RoleVoter)(w, httptest.NewRequest("GET", "/api/auth/profile", nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	var profile models.VoterProfile
	testutil.AssertJSON(t, w, &profile)
	if profile.ID != voterID || !profile.FaceEnrolled {
		t.Errorf("Unexpected profile %+v", profile)
	}
	if profile.StudentID == nil || *profile.StudentID != "S7" {
		t.Error("Expected student id in profile")
	}

	w = httptest.NewRecorder()
	authed(handler.Profile, "missing", models.RoleVoter)(w, httptest.NewRequest("GET", "/api/auth/profile", nil))
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestUpdatePassword(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewAuthHandler(db, cfg, clock.Real{})

	voterID := testutil.CreateTestVoter(t, db, testutil.VoterOpts{Email: "pw@example.edu"})
	update := authed(handler.UpdatePassword, voterID, models.RoleVoter)

	tests := []struct {
		name           string
		req            models.UpdatePasswordRequest
		expectedStatus int
	}{
		{"wrong current password", models.UpdatePasswordRequest{CurrentPassword: "nope", NewPassword: "brand-new-pass"}, http.StatusUnauthorized},
		{"new password too short", models.UpdatePasswordRequest{CurrentPassword: testutil.TestPassword, NewPassword: "short"}, http.StatusBadRequest},
		{"valid change", models.UpdatePasswordRequest{CurrentPassword: testutil.TestPassword, NewPassword: "brand-new-pass"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			update(w, testutil.MakeRequest("PUT", "/api/auth/update-password", tt.req, nil))
			testutil.AssertStatus(t, w, tt.expectedStatus)
		})
	}

	req := testutil.MakeRequest("POST", "/api/auth/login", models.LoginRequest{
		Identifier: "pw@example.edu", Password: "brand-new-pass",
	}, nil)
	w := httptest.NewRecorder()
	handler.Login(w, req)
	testutil.AssertStatus(t, w, http.StatusOK)
}

func intPtr(i int) *int { return &i }

func deref(p *int) int {
	if p == nil {
		return math.MinInt
	}
	return *p
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
