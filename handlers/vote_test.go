// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/models"
	"github.com/danielhkuo/livevote/testutil"
)

func TestCastVote(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewVoteHandler(db, cfg, clock.NewFake(t0))

	testutil.CreateTestElection(t, db, t0.Add(-time.Hour), t0.Add(time.Hour), false)
	candidate := testutil.CreateTestCandidate(t, db, "Ada", 0)

	verified := testutil.CreateTestVoter(t, db, testutil.VoterOpts{})
	pending := testutil.CreateTestVoter(t, db, testutil.VoterOpts{Status: models.StatusPending})
	voted := testutil.CreateTestVoter(t, db, testutil.VoterOpts{HasVoted: true})

	tests := []struct {
		name           string
		voterID        string
		candidateID    string
		expectedStatus int
	}{
		{"missing candidate id", verified, "", http.StatusBadRequest},
		{"unknown candidate", verified, "no-such-candidate", http.StatusNotFound},
		{"not verified", pending, candidate, http.StatusForbidden},
		{"already voted", voted, candidate, http.StatusBadRequest},
		{"unknown voter", "ghost", candidate, http.StatusNotFound},
		{"valid vote", verified, candidate, http.StatusOK},
		{"second vote", verified, candidate, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.MakeRequest("POST", "/api/vote", models.CastVoteRequest{CandidateID: tt.candidateID}, nil)
			w := httptest.NewRecorder()

			authed(handler.CastVote, tt.voterID, models.RoleVoter)(w, req)

			testutil.AssertStatus(t, w, tt.expectedStatus)
		})
	}

	if got := testutil.VoteCount(t, db, candidate); got != 1 {
		t.Errorf("Expected exactly 1 vote, got %d", got)
	}
	if !testutil.HasVoted(t, db, verified) {
		t.Error("Expected voter to be marked as voted")
	}
	if testutil.HasVoted(t, db, pending) {
		t.Error("Rejected vote must not mark the voter")
	}
}

func TestCastVoteElectionClosed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewVoteHandler(db, cfg, clock.NewFake(t0))

	testutil.CreateTestElection(t, db, t0.Add(-2*time.Hour), t0.Add(-time.Hour), false)
	candidate := testutil.CreateTestCandidate(t, db, "Ada", 0)
	voterID := testutil.CreateTestVoter(t, db, testutil.VoterOpts{})

	req := testutil.MakeRequest("POST", "/api/vote", models.CastVoteRequest{CandidateID: candidate}, nil)
	w := httptest.NewRecorder()
	authed(handler.CastVote, voterID, models.RoleVoter)(w, req)

	testutil.AssertStatus(t, w, http.StatusForbidden)
	if testutil.VoteCount(t, db, candidate) != 0 || testutil.HasVoted(t, db, voterID) {
		t.Error("Closed election must leave state untouched")
	}
}

func TestCastVoteStorageFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewVoteHandler(db, cfg, clock.NewFake(t0))

	candidate := testutil.CreateTestCandidate(t, db, "Ada", 0)
	voterID := testutil.CreateTestVoter(t, db, testutil.VoterOpts{})

	if _, err := db.Exec(`DROP TABLE election`); err != nil {
		t.Fatalf("Failed to drop election table: %v", err)
	}

	req := testutil.MakeRequest("POST", "/api/vote", models.CastVoteRequest{CandidateID: candidate}, nil)
	w := httptest.NewRecorder()
	authed(handler.CastVote, voterID, models.RoleVoter)(w, req)

	testutil.AssertStatus(t, w, http.StatusServiceUnavailable)
	if testutil.VoteCount(t, db, candidate) != 0 || testutil.HasVoted(t, db, voterID) {
		t.Error("Failed transaction must leave state untouched")
	}
}

func TestListCandidatesHidesTallies(t *testing.T) {
	db := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	handler := NewVoteHandler(db, cfg, clock.Real{})

	testutil.CreateTestCandidate(t, db, "Brian", 9)
	testutil.CreateTestCandidate(t, db, "Ada", 3)

	w := httptest.NewRecorder()
	handler.ListCandidates(w, httptest.NewRequest("GET", "/api/candidates", nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	var raw []map[string]any
	testutil.AssertJSON(t, w, &raw)
	if len(raw) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(raw))
	}
	if raw[0]["name"] != "Ada" {
		t.Errorf("Expected candidates ordered by name, got %v first", raw[0]["name"])
	}
	for _, c := range raw {
		if _, ok := c["vote_count"]; ok {
			t.Error("Candidate list must not expose vote counts")
		}
		if _, ok := c["votes"]; ok {
			t.Error("Candidate list must not expose votes")
		}
	}
}
