// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/livevote/accounts"
	"github.com/danielhkuo/livevote/auth"
	"github.com/danielhkuo/livevote/cliparse"
	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/ledger"
	"github.com/danielhkuo/livevote/middleware"
	"github.com/danielhkuo/livevote/models"
)

type AdminHandler struct {
	db       *sql.DB
	cfg      cliparse.Config
	clock    clock.Clock
	accounts *accounts.Store
	ledger   *ledger.Ledger
}

func NewAdminHandler(db *sql.DB, cfg cliparse.Config, clk clock.Clock) *AdminHandler {
	return &AdminHandler{
		db:       db,
		cfg:      cfg,
		clock:    clk,
		accounts: accounts.New(db, cfg.DatabaseType),
		ledger:   ledger.New(db, cfg.DatabaseType, clk),
	}
}

// ListVoters handles GET /api/admin/voters
func (h *AdminHandler) ListVoters(w http.ResponseWriter, r *http.Request) {
	voters, err := h.accounts.List(r.Context(), models.RoleVoter)
	if err != nil {
		slog.Error("failed to list voters", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	profiles := make([]models.VoterProfile, 0, len(voters))
	for _, v := range voters {
		profiles = append(profiles, v.Profile())
	}

	middleware.JSONResponse(w, http.StatusOK, profiles)
}

// VerifyVoter handles PUT /api/admin/verify-voter/{id}
func (h *AdminHandler) VerifyVoter(w http.ResponseWriter, r *http.Request) {
	voterID := r.PathValue("id")
	if voterID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "voter id is required")
		return
	}

	var req models.VerifyVoterRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	voter, err := h.accounts.SetVerificationStatus(r.Context(), voterID, req.Status, h.clock.Now().UTC())
	switch {
	case errors.Is(err, models.ErrValidation):
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid verification status")
		return
	case errors.Is(err, accounts.ErrNotFound):
		middleware.ErrorResponse(w, http.StatusNotFound, "Voter not found")
		return
	case errors.Is(err, accounts.ErrStateConflict):
		middleware.ErrorResponse(w, http.StatusConflict, "Voter has already been reviewed")
		return
	case err != nil:
		slog.Error("failed to update verification status", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	claims, _ := middleware.SessionFrom(r.Context())
	slog.Info("voter reviewed", "voter_id", voter.ID, "status", voter.VerificationStatus, "admin_id", claims.VoterID)

	middleware.JSONResponse(w, http.StatusOK, models.VerifyVoterResponse{
		Message: "User " + voter.VerificationStatus + " successfully",
		Voter:   voter.Profile(),
	})
}

// PublishResults handles PUT /api/admin/election/publish
func (h *AdminHandler) PublishResults(w http.ResponseWriter, r *http.Request) {
	var req models.PublishResultsRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	publishedAt, err := h.ledger.PublishResults(r.Context(), req.Publish)
	if err != nil {
		ledgerError(w, err)
		return
	}

	message := "Results unpublished"
	if req.Publish {
		message = "Results published"
	}
	middleware.JSONResponse(w, http.StatusOK, models.PublishResultsResponse{
		Message:          message,
		ResultsPublished: req.Publish,
		PublishedAt:      publishedAt,
	})
}

// Tally handles GET /api/admin/election/tally
// Unlike the public results it ignores the publishing flag.
func (h *AdminHandler) Tally(w http.ResponseWriter, r *http.Request) {
	results, total, err := h.ledger.Tally(r.Context())
	if err != nil {
		ledgerError(w, err)
		return
	}

	out := models.ElectionResults{TotalVotes: total, Results: results}
	if len(results) > 0 {
		out.Winner = &results[0]
	}
	middleware.JSONResponse(w, http.StatusOK, out)
}

// ResetElection handles POST /api/admin/election/reset
func (h *AdminHandler) ResetElection(w http.ResponseWriter, r *http.Request) {
	if !h.confirmPassword(w, r) {
		return
	}

	stats, err := h.ledger.ResetElection(r.Context())
	if err != nil {
		ledgerError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.ResetElectionResponse{
		Message:          "Election reset successfully",
		CandidatesReset:  stats.CandidatesReset,
		VotersReset:      stats.VotersReset,
		ResultsPublished: false,
	})
}

// EmergencyStop handles POST /api/admin/election/stop
func (h *AdminHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	if !h.confirmPassword(w, r) {
		return
	}

	endDate, err := h.ledger.EmergencyStop(r.Context())
	if err != nil {
		ledgerError(w, err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.EmergencyStopResponse{
		Message: "Election stopped",
		EndDate: endDate,
	})
}

// confirmPassword checks the admin's own password from the request body.
// It writes the error response and returns false when the check fails.
func (h *AdminHandler) confirmPassword(w http.ResponseWriter, r *http.Request) bool {
	claims, _ := middleware.SessionFrom(r.Context())

	var req models.ConfirmPasswordRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	if req.Password == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "password is required")
		return false
	}

	admin, err := h.accounts.GetByID(r.Context(), claims.VoterID)
	if errors.Is(err, accounts.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid password")
		return false
	}
	if err != nil {
		slog.Error("failed to load admin", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return false
	}

	if err := auth.CheckPassword(admin.PasswordHash, req.Password); err != nil {
		slog.Warn("admin password confirmation failed", "admin_id", admin.ID, "path", r.URL.Path)
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid password")
		return false
	}
	return true
}
