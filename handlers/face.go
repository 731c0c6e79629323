// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielhkuo/livevote/accounts"
	"github.com/danielhkuo/livevote/biometric"
	"github.com/danielhkuo/livevote/cliparse"
	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/middleware"
	"github.com/danielhkuo/livevote/models"
)

type FaceHandler struct {
	db       *sql.DB
	cfg      cliparse.Config
	clock    clock.Clock
	accounts *accounts.Store
}

func NewFaceHandler(db *sql.DB, cfg cliparse.Config, clk clock.Clock) *FaceHandler {
	return &FaceHandler{
		db:       db,
		cfg:      cfg,
		clock:    clk,
		accounts: accounts.New(db, cfg.DatabaseType),
	}
}

// VerifyFace handles POST /api/face/verify
// A match under the stricter verify threshold moves a pending voter to
// verified. Mismatches are reported, not counted toward lockout.
func (h *FaceHandler) VerifyFace(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.SessionFrom(r.Context())

	var req models.VerifyFaceRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := biometric.Validate(req.Descriptor); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "descriptor is required")
		return
	}

	voter, err := h.accounts.GetByID(r.Context(), claims.VoterID)
	if errors.Is(err, accounts.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		slog.Error("failed to load voter", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	if !voter.HasEnrolledDescriptor() {
		middleware.ErrorResponse(w, http.StatusBadRequest, "No face enrolled for this account")
		return
	}

	enrolled, err := biometric.ParseDescriptor(*voter.EnrolledDescriptor)
	if err != nil {
		slog.Error("stored face descriptor is corrupt", "error", err, "voter_id", voter.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Stored biometric data is corrupt")
		return
	}

	distance, err := biometric.Compare(req.Descriptor, enrolled, biometric.ContextExplicitVerify)
	verified := err == nil

	if verified {
		moved, err := h.accounts.MarkVerified(r.Context(), voter.ID, h.clock.Now().UTC())
		if err != nil {
			slog.Error("failed to mark voter verified", "error", err, "voter_id", voter.ID)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
			return
		}
		if moved {
			slog.Info("voter verified by face", "voter_id", voter.ID, "distance", distance)
		}
	} else {
		slog.Info("face verification mismatch", "voter_id", voter.ID, "distance", distance)
	}

	middleware.JSONResponse(w, http.StatusOK, models.VerifyFaceResponse{
		Verified: verified,
		Distance: distance,
	})
}
