// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/livevote/cliparse"
	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/ledger"
	"github.com/danielhkuo/livevote/middleware"
	"github.com/danielhkuo/livevote/models"
)

type VoteHandler struct {
	db     *sql.DB
	cfg    cliparse.Config
	ledger *ledger.Ledger
}

func NewVoteHandler(db *sql.DB, cfg cliparse.Config, clk clock.Clock) *VoteHandler {
	return &VoteHandler{
		db:     db,
		cfg:    cfg,
		ledger: ledger.New(db, cfg.DatabaseType, clk),
	}
}

// CastVote handles POST /api/vote
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.SessionFrom(r.Context())

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.ledger.CastVote(r.Context(), claims.VoterID, req.CandidateID); err != nil {
		ledgerError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.CastVoteResponse{
		Message: "Vote cast successfully",
	})
}

// ListCandidates handles GET /api/candidates
func (h *VoteHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.ledger.Candidates(r.Context())
	if err != nil {
		slog.Error("failed to list candidates", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	middleware.JSONResponse(w, http.StatusOK, candidates)
}

// ledgerError maps ledger rejections to HTTP statuses
func ledgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrAlreadyVoted):
		middleware.ErrorResponse(w, http.StatusBadRequest, "You have already voted")
	case errors.Is(err, ledger.ErrNotVerified):
		middleware.ErrorResponse(w, http.StatusForbidden, "Your account is not verified")
	case errors.Is(err, ledger.ErrElectionClosed):
		middleware.ErrorResponse(w, http.StatusForbidden, "Voting is closed")
	case errors.Is(err, ledger.ErrVoterNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Voter not found")
	case errors.Is(err, ledger.ErrCandidateNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Candidate not found")
	case errors.Is(err, ledger.ErrElectionNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Election not configured")
	case errors.Is(err, ledger.ErrResultsNotPublished):
		middleware.ErrorResponse(w, http.StatusForbidden, "Results have not been published yet")
	case errors.Is(err, ledger.ErrTransientStorage):
		slog.Error("ledger storage failure", "error", err)
		middleware.ErrorResponse(w, http.StatusServiceUnavailable, "Temporarily unavailable, please retry")
	default:
		slog.Error("ledger operation failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
	}
}
