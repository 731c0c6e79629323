// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielhkuo/livevote/auth"
	"github.com/danielhkuo/livevote/cliparse"
	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/db"
	"github.com/danielhkuo/livevote/models"
)

// TestPassword is the plaintext password of every voter created here
const TestPassword = "correct-horse-battery"

// testHash is computed once; bcrypt at cost 10 is slow enough to matter in
// tests that create fifty voters
var (
	hashOnce sync.Once
	testHash string
	hashErr  error
)

func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		testHash, hashErr = auth.HashPassword(TestPassword)
	})
	if hashErr != nil {
		t.Fatalf("Failed to hash test password: %v", hashErr)
	}
	return testHash
}

// SetupTestDB creates a fresh SQLite database file with the full schema.
// The file lives in t.TempDir() and is removed with it.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(db.TypeSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:                     3318,
		DatabaseURL:              "test.db",
		DatabaseType:             db.TypeSQLite,
		JWTSecret:                "test-jwt-secret",
		JWTRefreshSecret:         "test-jwt-refresh-secret",
		AllowDescriptorlessLogin: true,
	}
}

// VoterOpts customizes CreateTestVoter. Zero values give a verified voter
// with no enrolled descriptor.
type VoterOpts struct {
	Email      string
	StudentID  string
	Role       string
	Status     string
	Descriptor []float64
	RawDesc    *string // stored verbatim, for corrupt-data tests
	HasVoted   bool
	Attempts   int
	LockUntil  *time.Time
}

// CreateTestVoter inserts a voter and returns its ID
func CreateTestVoter(t *testing.T, conn *sql.DB, opts VoterOpts) string {
	t.Helper()

	id := auth.NewRecordID()
	if opts.Email == "" {
		opts.Email = id + "@example.edu"
	}
	if opts.Role == "" {
		opts.Role = models.RoleVoter
	}
	if opts.Status == "" {
		opts.Status = models.StatusVerified
	}

	var studentID *string
	if opts.StudentID != "" {
		studentID = &opts.StudentID
	}

	desc := opts.RawDesc
	if desc == nil && opts.Descriptor != nil {
		b, _ := json.Marshal(opts.Descriptor)
		s := string(b)
		desc = &s
	}

	now := time.Now().UTC()
	_, err := conn.Exec(`
		INSERT INTO voter (id, name, email, student_id, password_hash, role, enrolled_descriptor,
		                   verification_status, has_voted, login_attempts, lock_until, created_at, updated_at)
		VALUES ($1, 'Test Voter', $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, id, opts.Email, studentID, passwordHash(t), opts.Role, desc,
		opts.Status, opts.HasVoted, opts.Attempts, opts.LockUntil, now)
	if err != nil {
		t.Fatalf("Failed to create test voter: %v", err)
	}

	return id
}

// CreateTestCandidate inserts a candidate with the given tally and returns its ID
func CreateTestCandidate(t *testing.T, conn *sql.DB, name string, votes int) string {
	t.Helper()

	id := auth.NewRecordID()
	_, err := conn.Exec(`
		INSERT INTO candidate (id, name, party, manifesto, vote_count, created_at)
		VALUES ($1, $2, 'Independent', '', $3, $4)
	`, id, name, votes, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to create test candidate: %v", err)
	}

	return id
}

// CreateTestElection writes the election row with the given window
func CreateTestElection(t *testing.T, conn *sql.DB, start, end time.Time, published bool) {
	t.Helper()

	var publishedAt *time.Time
	if published {
		p := end
		publishedAt = &p
	}

	_, err := conn.Exec(`
		INSERT INTO election (id, title, description, start_date, end_date, results_published, published_at)
		VALUES (1, 'Student Council', 'Annual election', $1, $2, $3, $4)
	`, start.UTC(), end.UTC(), published, publishedAt)
	if err != nil {
		t.Fatalf("Failed to create test election: %v", err)
	}
}

// VoteCount reads a candidate's tally
func VoteCount(t *testing.T, conn *sql.DB, candidateID string) int {
	t.Helper()

	var n int
	if err := conn.QueryRow(`SELECT vote_count FROM candidate WHERE id = $1`, candidateID).Scan(&n); err != nil {
		t.Fatalf("Failed to read vote count: %v", err)
	}
	return n
}

// HasVoted reads a voter's has_voted flag
func HasVoted(t *testing.T, conn *sql.DB, voterID string) bool {
	t.Helper()

	var voted bool
	if err := conn.QueryRow(`SELECT has_voted FROM voter WHERE id = $1`, voterID).Scan(&voted); err != nil {
		t.Fatalf("Failed to read has_voted: %v", err)
	}
	return voted
}

// AccessToken issues an access token for the voter, for authenticated requests
func AccessToken(t *testing.T, cfg cliparse.Config, voterID, role string) string {
	t.Helper()

	issuer := auth.NewJWTIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret, clock.Real{})
	tok, err := issuer.IssueAccess(voterID, role)
	if err != nil {
		t.Fatalf("Failed to issue access token: %v", err)
	}
	return tok.Value
}

// BearerHeader returns request headers carrying the token
func BearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
