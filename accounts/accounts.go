// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielhkuo/livevote/db"
	"github.com/danielhkuo/livevote/models"
)

var (
	ErrNotFound           = errors.New("voter not found")
	ErrDuplicateEmail     = errors.New("user with this email already exists")
	ErrDuplicateStudentID = errors.New("user with this student ID already exists")
	ErrStateConflict      = errors.New("voter is not pending verification")
)

const voterColumns = `id, name, email, student_id, password_hash, role, enrolled_descriptor,
	verification_status, has_voted, login_attempts, lock_until, refresh_token, created_at, updated_at`

// Store reads and writes voter accounts
type Store struct {
	conn     *sql.DB
	rowLocks bool
}

func New(conn *sql.DB, dbType string) *Store {
	return &Store{conn: conn, rowLocks: db.SupportsRowLocks(dbType)}
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVoter(row scanner) (models.Voter, error) {
	var v models.Voter
	var studentID, descriptor, refresh sql.NullString
	var lockUntil sql.NullTime

	err := row.Scan(&v.ID, &v.Name, &v.Email, &studentID, &v.PasswordHash, &v.Role, &descriptor,
		&v.VerificationStatus, &v.HasVoted, &v.LoginAttempts, &lockUntil, &refresh, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return models.Voter{}, err
	}

	if studentID.Valid {
		v.StudentID = &studentID.String
	}
	if descriptor.Valid {
		v.EnrolledDescriptor = &descriptor.String
	}
	if lockUntil.Valid {
		v.LockUntil = &lockUntil.Time
	}
	if refresh.Valid {
		v.RefreshToken = &refresh.String
	}
	return v, nil
}

// GetByID loads a voter by primary key
func (s *Store) GetByID(ctx context.Context, id string) (models.Voter, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+voterColumns+` FROM voter WHERE id = $1`, id)
	v, err := scanVoter(row)
	if err == sql.ErrNoRows {
		return models.Voter{}, ErrNotFound
	}
	if err != nil {
		return models.Voter{}, fmt.Errorf("failed to load voter: %w", err)
	}
	return v, nil
}

// FindByIdentifier loads a voter by email when identifier contains '@' and
// by student ID otherwise. Student IDs never contain '@', so the two key
// spaces cannot overlap.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (models.Voter, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return models.Voter{}, ErrNotFound
	}

	query := `SELECT ` + voterColumns + ` FROM voter WHERE student_id = $1`
	if strings.Contains(identifier, "@") {
		query = `SELECT ` + voterColumns + ` FROM voter WHERE email = $1`
		identifier = NormalizeEmail(identifier)
	}

	v, err := scanVoter(s.conn.QueryRowContext(ctx, query, identifier))
	if err == sql.ErrNoRows {
		return models.Voter{}, ErrNotFound
	}
	if err != nil {
		return models.Voter{}, fmt.Errorf("failed to find voter: %w", err)
	}
	return v, nil
}

// Create inserts a new account. Uniqueness of email and student ID is checked
// inside the same transaction as the insert, and a unique violation from a
// concurrent insert maps to the same errors.
func (s *Store) Create(ctx context.Context, v models.Voter) error {
	v.Email = NormalizeEmail(v.Email)

	return db.Atomic(ctx, s.conn, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM voter WHERE email = $1)`, v.Email).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if exists {
			return ErrDuplicateEmail
		}

		if v.StudentID != nil {
			err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM voter WHERE student_id = $1)`, *v.StudentID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check student ID: %w", err)
			}
			if exists {
				return ErrDuplicateStudentID
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO voter (id, name, email, student_id, password_hash, role, enrolled_descriptor,
			                   verification_status, has_voted, login_attempts, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, 0, $9, $9)
		`, v.ID, v.Name, v.Email, v.StudentID, v.PasswordHash, v.Role, v.EnrolledDescriptor,
			v.VerificationStatus, v.CreatedAt)
		if detail, ok := db.UniqueViolation(err); ok {
			// lost a race with a concurrent registration
			if strings.Contains(detail, "student_id") {
				return ErrDuplicateStudentID
			}
			return ErrDuplicateEmail
		}
		if err != nil {
			return fmt.Errorf("failed to insert voter: %w", err)
		}
		return nil
	})
}

// List returns accounts with the given role, newest first
func (s *Store) List(ctx context.Context, role string) ([]models.Voter, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+voterColumns+` FROM voter
		WHERE role = $1
		ORDER BY created_at DESC
	`, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list voters: %w", err)
	}
	defer rows.Close()

	voters := []models.Voter{}
	for rows.Next() {
		v, err := scanVoter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voter: %w", err)
		}
		voters = append(voters, v)
	}
	return voters, rows.Err()
}

// LoginState returns the failure counter and lock expiry of an account
func (s *Store) LoginState(ctx context.Context, id string) (attempts int, lockUntil *time.Time, err error) {
	var lu sql.NullTime
	err = s.conn.QueryRowContext(ctx, `
		SELECT login_attempts, lock_until FROM voter WHERE id = $1
	`, id).Scan(&attempts, &lu)
	if err == sql.ErrNoRows {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read login state: %w", err)
	}
	if lu.Valid {
		lockUntil = &lu.Time
	}
	return attempts, lockUntil, nil
}

// RecordLoginFailure increments the failure counter in one transaction.
// A lock that expired before now starts a fresh window. While a lock is in
// force the counter is left alone and the existing lock is returned. When
// the counter reaches lockAt, lock_until is set to lockUntil.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, now time.Time, lockAt int, lockUntil time.Time) (attempts int, lockedUntil *time.Time, err error) {
	query := `SELECT login_attempts, lock_until FROM voter WHERE id = $1`
	if s.rowLocks {
		query += ` FOR UPDATE`
	}

	err = db.Atomic(ctx, s.conn, func(tx *sql.Tx) error {
		var current int
		var lu sql.NullTime
		err := tx.QueryRowContext(ctx, query, id).Scan(&current, &lu)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read login state: %w", err)
		}

		if lu.Valid && lu.Time.After(now) {
			attempts, lockedUntil = current, &lu.Time
			return nil
		}
		if lu.Valid {
			// expired lock: previous failures no longer count
			current = 0
		}

		attempts = current + 1
		var lock *time.Time
		if attempts >= lockAt {
			lock = &lockUntil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE voter SET login_attempts = $2, lock_until = $3, updated_at = $4 WHERE id = $1
		`, id, attempts, lock, now)
		if err != nil {
			return fmt.Errorf("failed to record login failure: %w", err)
		}
		lockedUntil = lock
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}

// ResetLoginAttempts clears the failure counter unless a lock is in force at
// now. A lock committed by a concurrent failure survives, and its expiry is
// returned instead.
func (s *Store) ResetLoginAttempts(ctx context.Context, id string, now time.Time) (lockedUntil *time.Time, err error) {
	query := `SELECT lock_until FROM voter WHERE id = $1`
	if s.rowLocks {
		query += ` FOR UPDATE`
	}

	err = db.Atomic(ctx, s.conn, func(tx *sql.Tx) error {
		var lu sql.NullTime
		err := tx.QueryRowContext(ctx, query, id).Scan(&lu)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read login state: %w", err)
		}
		if lu.Valid && lu.Time.After(now) {
			lockedUntil = &lu.Time
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE voter SET login_attempts = 0, lock_until = NULL, updated_at = $2 WHERE id = $1
		`, id, now)
		if err != nil {
			return fmt.Errorf("failed to reset login attempts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lockedUntil, nil
}

// SetRefreshToken stores (or clears, when token is nil) the active refresh token
func (s *Store) SetRefreshToken(ctx context.Context, id string, token *string, now time.Time) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE voter SET refresh_token = $2, updated_at = $3 WHERE id = $1
	`, id, token, now)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshToken replaces the stored refresh token with next only if
// it still equals current. It reports whether the swap happened.
func (s *Store) RotateRefreshToken(ctx context.Context, id, current, next string, now time.Time) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE voter SET refresh_token = $3, updated_at = $4
		WHERE id = $1 AND refresh_token = $2
	`, id, current, next, now)
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return n == 1, nil
}

// MarkVerified promotes a pending account to verified. Verified and rejected
// accounts are left unchanged; the return value reports whether a row moved.
func (s *Store) MarkVerified(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE voter SET verification_status = $2, updated_at = $3
		WHERE id = $1 AND verification_status = $4
	`, id, models.StatusVerified, now, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark voter verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark voter verified: %w", err)
	}
	return n == 1, nil
}

// SetVerificationStatus records an admin decision on a pending voter
func (s *Store) SetVerificationStatus(ctx context.Context, id, status string, now time.Time) (models.Voter, error) {
	if status != models.StatusVerified && status != models.StatusRejected {
		return models.Voter{}, fmt.Errorf("%w: status must be verified or rejected", models.ErrValidation)
	}

	var out models.Voter
	err := db.Atomic(ctx, s.conn, func(tx *sql.Tx) error {
		var role, current string
		err := tx.QueryRowContext(ctx, `SELECT role, verification_status FROM voter WHERE id = $1`, id).Scan(&role, &current)
		if err == sql.ErrNoRows || (err == nil && role != models.RoleVoter) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load voter: %w", err)
		}
		if current != models.StatusPending {
			return ErrStateConflict
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE voter SET verification_status = $2, updated_at = $3 WHERE id = $1
		`, id, status, now)
		if err != nil {
			return fmt.Errorf("failed to update verification status: %w", err)
		}

		out, err = scanVoter(tx.QueryRowContext(ctx, `SELECT `+voterColumns+` FROM voter WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return models.Voter{}, err
	}
	return out, nil
}

// SetPasswordHash replaces the stored bcrypt hash and revokes the refresh token
func (s *Store) SetPasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE voter SET password_hash = $2, refresh_token = NULL, updated_at = $3 WHERE id = $1
	`, id, hash, now)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
