// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danielhkuo/livevote/auth"
	"github.com/danielhkuo/livevote/db"
	"github.com/danielhkuo/livevote/models"
	"github.com/danielhkuo/livevote/testutil"
)

func newVoter(email string, studentID *string) models.Voter {
	return models.Voter{
		ID:                 auth.NewRecordID(),
		Name:               "New Voter",
		Email:              email,
		StudentID:          studentID,
		PasswordHash:       "hash",
		Role:               models.RoleVoter,
		VerificationStatus: models.StatusPending,
		CreatedAt:          time.Now().UTC(),
	}
}

func TestCreateAndFind(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	sid := "S100"
	v := newVoter("  Alice@Example.EDU ", &sid)
	if err := store.Create(ctx, v); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name       string
		identifier string
	}{
		{"email", "alice@example.edu"},
		{"email different case", "ALICE@example.edu"},
		{"student id", "S100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.FindByIdentifier(ctx, tt.identifier)
			if err != nil {
				t.Fatalf("FindByIdentifier(%q) error = %v", tt.identifier, err)
			}
			if got.ID != v.ID {
				t.Errorf("FindByIdentifier(%q) = %s, want %s", tt.identifier, got.ID, v.ID)
			}
			if got.Email != "alice@example.edu" {
				t.Errorf("email not normalized: %q", got.Email)
			}
		})
	}

	if _, err := store.FindByIdentifier(ctx, "nobody@example.edu"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByIdentifier(unknown) = %v, want ErrNotFound", err)
	}
	if _, err := store.FindByIdentifier(ctx, "   "); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByIdentifier(blank) = %v, want ErrNotFound", err)
	}
}

// TestFindByIdentifierKeySpaces stores a student ID that looks like another
// account's email. Lookups containing '@' only ever match emails.
func TestFindByIdentifierKeySpaces(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	victim := newVoter("victim@example.edu", nil)
	if err := store.Create(ctx, victim); err != nil {
		t.Fatalf("Create(victim) error = %v", err)
	}
	// Written directly; registration refuses such IDs
	lookalike := "victim@example.edu"
	other := newVoter("other@example.edu", &lookalike)
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("Create(other) error = %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := store.FindByIdentifier(ctx, "Victim@Example.edu")
		if err != nil {
			t.Fatalf("FindByIdentifier() error = %v", err)
		}
		if got.ID != victim.ID {
			t.Fatalf("FindByIdentifier() = %s, want the email owner %s", got.ID, victim.ID)
		}
	}

	sid := "S200"
	plain := newVoter("plain@example.edu", &sid)
	if err := store.Create(ctx, plain); err != nil {
		t.Fatalf("Create(plain) error = %v", err)
	}
	if _, err := store.FindByIdentifier(ctx, "plain"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByIdentifier(local part) = %v, want ErrNotFound", err)
	}
}

func TestCreateDuplicates(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	sid := "S200"
	if err := store.Create(ctx, newVoter("bob@example.edu", &sid)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	other := "S201"
	if err := store.Create(ctx, newVoter("BOB@example.edu", &other)); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate email error = %v, want ErrDuplicateEmail", err)
	}
	if err := store.Create(ctx, newVoter("robert@example.edu", &sid)); !errors.Is(err, ErrDuplicateStudentID) {
		t.Errorf("duplicate student id error = %v, want ErrDuplicateStudentID", err)
	}

	voters, err := store.List(ctx, models.RoleVoter)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(voters) != 1 {
		t.Errorf("expected 1 voter after rejected duplicates, got %d", len(voters))
	}
}

func TestRecordLoginFailure(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	id := testutil.CreateTestVoter(t, conn, testutil.VoterOpts{})
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	lockUntil := now.Add(15 * time.Minute)

	for i := 1; i <= 4; i++ {
		attempts, lock, err := store.RecordLoginFailure(ctx, id, now, 5, lockUntil)
		if err != nil {
			t.Fatalf("RecordLoginFailure() error = %v", err)
		}
		if attempts != i {
			t.Errorf("attempt %d: counter = %d", i, attempts)
		}
		if lock != nil {
			t.Errorf("attempt %d: unexpected lock %v", i, lock)
		}
	}

	attempts, lock, err := store.RecordLoginFailure(ctx, id, now, 5, lockUntil)
	if err != nil {
		t.Fatalf("RecordLoginFailure() error = %v", err)
	}
	if attempts != 5 || lock == nil || !lock.Equal(lockUntil) {
		t.Fatalf("fifth failure = (%d, %v), want (5, %v)", attempts, lock, lockUntil)
	}

	stored, storedLock, err := store.LoginState(ctx, id)
	if err != nil {
		t.Fatalf("LoginState() error = %v", err)
	}
	if stored != 5 || storedLock == nil || !storedLock.Equal(lockUntil) {
		t.Errorf("LoginState() = (%d, %v)", stored, storedLock)
	}

	// After the lock expires the next failure starts a fresh window
	later := lockUntil.Add(time.Second)
	attempts, lock, err = store.RecordLoginFailure(ctx, id, later, 5, later.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("RecordLoginFailure() error = %v", err)
	}
	if attempts != 1 || lock != nil {
		t.Errorf("failure after expiry = (%d, %v), want (1, nil)", attempts, lock)
	}

	if _, _, err := store.RecordLoginFailure(ctx, "missing", now, 5, lockUntil); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordLoginFailure(missing) = %v, want ErrNotFound", err)
	}
}

func TestResetLoginAttempts(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)
	id := testutil.CreateTestVoter(t, conn, testutil.VoterOpts{Attempts: 5, LockUntil: &expired})

	lock, err := store.ResetLoginAttempts(ctx, id, now)
	if err != nil {
		t.Fatalf("ResetLoginAttempts() error = %v", err)
	}
	if lock != nil {
		t.Errorf("ResetLoginAttempts() lock = %v, want nil", lock)
	}

	attempts, stored, err := store.LoginState(ctx, id)
	if err != nil {
		t.Fatalf("LoginState() error = %v", err)
	}
	if attempts != 0 || stored != nil {
		t.Errorf("LoginState() after reset = (%d, %v), want (0, nil)", attempts, stored)
	}

	if _, err := store.ResetLoginAttempts(ctx, "missing", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("ResetLoginAttempts(missing) = %v, want ErrNotFound", err)
	}
}

// TestResetKeepsActiveLock covers a success that lands after a concurrent
// failure committed the lock
func TestResetKeepsActiveLock(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(10 * time.Minute)
	id := testutil.CreateTestVoter(t, conn, testutil.VoterOpts{Attempts: 5, LockUntil: &until})

	lock, err := store.ResetLoginAttempts(ctx, id, now)
	if err != nil {
		t.Fatalf("ResetLoginAttempts() error = %v", err)
	}
	if lock == nil || !lock.Equal(until) {
		t.Fatalf("ResetLoginAttempts() lock = %v, want %v", lock, until)
	}

	attempts, stored, err := store.LoginState(ctx, id)
	if err != nil {
		t.Fatalf("LoginState() error = %v", err)
	}
	if attempts != 5 || stored == nil || !stored.Equal(until) {
		t.Errorf("LoginState() = (%d, %v), want (5, %v)", attempts, stored, until)
	}
}

// TestFailureWhileLockedLeavesCounter checks that failures against an
// active lock neither count nor extend it
func TestFailureWhileLockedLeavesCounter(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(10 * time.Minute)
	id := testutil.CreateTestVoter(t, conn, testutil.VoterOpts{Attempts: 5, LockUntil: &until})

	for i := 0; i < 3; i++ {
		attempts, lock, err := store.RecordLoginFailure(ctx, id, now, 5, now.Add(15*time.Minute))
		if err != nil {
			t.Fatalf("RecordLoginFailure() error = %v", err)
		}
		if attempts != 5 || lock == nil || !lock.Equal(until) {
			t.Errorf("RecordLoginFailure() = (%d, %v), want (5, %v)", attempts, lock, until)
		}
	}

	attempts, stored, err := store.LoginState(ctx, id)
	if err != nil {
		t.Fatalf("LoginState() error = %v", err)
	}
	if attempts != 5 || stored == nil || !stored.Equal(until) {
		t.Errorf("LoginState() = (%d, %v), want (5, %v)", attempts, stored, until)
	}
}

func TestMarkVerified(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	tests := []struct {
		name       string
		status     string
		wantMoved  bool
		wantStatus string
	}{
		{"pending is promoted", models.StatusPending, true, models.StatusVerified},
		{"verified stays verified", models.StatusVerified, false, models.StatusVerified},
		{"rejected is not overridden", models.StatusRejected, false, models.StatusRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := testutil.CreateTestVoter(t, conn, testutil.VoterOpts{Status: tt.status})

			moved, err := store.MarkVerified(ctx, id, time.Now())
			if err != nil {
				t.Fatalf("MarkVerified() error = %v", err)
			}
			if moved != tt.wantMoved {
				t.Errorf("MarkVerified() = %v, want %v", moved, tt.wantMoved)
			}

			v, err := store.GetByID(ctx, id)
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if v.VerificationStatus != tt.wantStatus {
				t.Errorf("status = %s, want %s", v.VerificationStatus, tt.wantStatus)
			}
		})
	}
}

func TestSetVerificationStatus(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	pending := testutil.CreateTestVoter(t, conn, testutil.VoterOpts{Status: models.StatusPending})
	v, err := store.SetVerificationStatus(ctx, pending, models.StatusRejected, time.Now())
	if err != nil {
		t.Fatalf("SetVerificationStatus() error = %v", err)
	}
	if v.VerificationStatus != models.StatusRejected {
		t.Errorf("status = %s, want rejected", v.VerificationStatus)
	}

	// Decisions are final
	if _, err := store.SetVerificationStatus(ctx, pending, models.StatusVerified, time.Now()); !errors.Is(err, ErrStateConflict) {
		t.Errorf("second decision = %v, want ErrStateConflict", err)
	}

	if _, err := store.SetVerificationStatus(ctx, pending, "approved", time.Now()); !errors.Is(err, models.ErrValidation) {
		t.Errorf("invalid status = %v, want ErrValidation", err)
	}

	admin := testutil.CreateTestVoter(t, conn, testutil.VoterOpts{Role: models.RoleAdmin, Status: models.StatusPending})
	if _, err := store.SetVerificationStatus(ctx, admin, models.StatusVerified, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("admin account = %v, want ErrNotFound", err)
	}
	if _, err := store.SetVerificationStatus(ctx, "missing", models.StatusVerified, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing account = %v, want ErrNotFound", err)
	}
}

func TestSetRefreshToken(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	id := testutil.CreateTestVoter(t, conn, testutil.VoterOpts{})
	tok := "refresh-value"
	if err := store.SetRefreshToken(ctx, id, &tok, time.Now()); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}

	v, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if v.RefreshToken == nil || *v.RefreshToken != tok {
		t.Errorf("refresh token = %v, want %q", v.RefreshToken, tok)
	}

	if err := store.SetRefreshToken(ctx, id, nil, time.Now()); err != nil {
		t.Fatalf("SetRefreshToken(nil) error = %v", err)
	}
	v, _ = store.GetByID(ctx, id)
	if v.RefreshToken != nil {
		t.Errorf("refresh token should be cleared, got %q", *v.RefreshToken)
	}

	if err := store.SetRefreshToken(ctx, "missing", &tok, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetRefreshToken(missing) = %v, want ErrNotFound", err)
	}
}

func TestRotateRefreshToken(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()
	id := testutil.CreateTestVoter(t, conn, testutil.VoterOpts{})

	first := "first"
	if err := store.SetRefreshToken(ctx, id, &first, time.Now()); err != nil {
		t.Fatalf("SetRefreshToken() error = %v", err)
	}

	ok, err := store.RotateRefreshToken(ctx, id, "first", "second", time.Now())
	if err != nil || !ok {
		t.Fatalf("RotateRefreshToken(first) = (%v, %v), want (true, nil)", ok, err)
	}

	// The old token lost the swap
	ok, err = store.RotateRefreshToken(ctx, id, "first", "third", time.Now())
	if err != nil || ok {
		t.Fatalf("RotateRefreshToken(stale) = (%v, %v), want (false, nil)", ok, err)
	}

	v, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if v.RefreshToken == nil || *v.RefreshToken != "second" {
		t.Errorf("refresh_token = %v, want second", v.RefreshToken)
	}

	// A cleared token never matches
	store.SetRefreshToken(ctx, id, nil, time.Now())
	if ok, _ := store.RotateRefreshToken(ctx, id, "second", "fourth", time.Now()); ok {
		t.Error("RotateRefreshToken() after logout should fail")
	}
}

func TestSetPasswordHashRevokesRefreshToken(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := New(conn, db.TypeSQLite)
	ctx := context.Background()

	id := testutil.CreateTestVoter(t, conn, testutil.VoterOpts{})
	tok := "refresh-value"
	store.SetRefreshToken(ctx, id, &tok, time.Now())

	if err := store.SetPasswordHash(ctx, id, "new-hash", time.Now()); err != nil {
		t.Fatalf("SetPasswordHash() error = %v", err)
	}

	v, _ := store.GetByID(ctx, id)
	if v.PasswordHash != "new-hash" {
		t.Errorf("password hash = %q, want new-hash", v.PasswordHash)
	}
	if v.RefreshToken != nil {
		t.Error("refresh token should be revoked after a password change")
	}

	if err := store.SetPasswordHash(ctx, "missing", "x", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetPasswordHash(missing) = %v, want ErrNotFound", err)
	}
}
