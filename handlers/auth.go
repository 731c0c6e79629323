// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/livevote/accounts"
	"github.com/danielhkuo/livevote/auth"
	"github.com/danielhkuo/livevote/biometric"
	"github.com/danielhkuo/livevote/cliparse"
	"github.com/danielhkuo/livevote/clock"
	"github.com/danielhkuo/livevote/lockout"
	"github.com/danielhkuo/livevote/middleware"
	"github.com/danielhkuo/livevote/models"
)

// MinPasswordLength applies to registration and password changes
const MinPasswordLength = 8

// errNoEnrolledFace means descriptor-less login is disabled and the account
// never enrolled a face
var errNoEnrolledFace = errors.New("no enrolled face descriptor")

// loginFailure is a counted failure and the attempts left before a lock
type loginFailure struct {
	cause     error
	remaining int
}

func (e *loginFailure) Error() string { return e.cause.Error() }
func (e *loginFailure) Unwrap() error { return e.cause }

type AuthHandler struct {
	db       *sql.DB
	cfg      cliparse.Config
	clock    clock.Clock
	accounts *accounts.Store
	guard    *lockout.Guard
	issuer   auth.TokenIssuer
}

func NewAuthHandler(db *sql.DB, cfg cliparse.Config, clk clock.Clock) *AuthHandler {
	store := accounts.New(db, cfg.DatabaseType)
	return &AuthHandler{
		db:       db,
		cfg:      cfg,
		clock:    clk,
		accounts: store,
		guard:    lockout.NewGuard(store, clk),
		issuer:   auth.NewJWTIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret, clk),
	}
}

// Issuer exposes the token issuer for session middleware
func (h *AuthHandler) Issuer() auth.TokenIssuer {
	return h.issuer
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = accounts.NormalizeEmail(req.Email)
	req.StudentID = strings.TrimSpace(req.StudentID)

	if req.Name == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		middleware.ErrorResponse(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if strings.Contains(req.StudentID, "@") {
		middleware.ErrorResponse(w, http.StatusBadRequest, "student ID must not contain '@'")
		return
	}
	if len(req.Password) < MinPasswordLength {
		middleware.ErrorResponse(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	var descriptor *string
	if len(req.Descriptor) > 0 {
		encoded, err := biometric.EncodeDescriptor(req.Descriptor)
		if err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, "invalid face descriptor")
			return
		}
		descriptor = &encoded
	}

	var studentID *string
	if req.StudentID != "" {
		studentID = &req.StudentID
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	now := h.clock.Now().UTC()
	voter := models.Voter{
		ID:                 auth.NewRecordID(),
		Name:               req.Name,
		Email:              req.Email,
		StudentID:          studentID,
		PasswordHash:       hash,
		Role:               models.RoleVoter,
		EnrolledDescriptor: descriptor,
		VerificationStatus: models.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = h.accounts.Create(r.Context(), voter)
	if errors.Is(err, accounts.ErrDuplicateEmail) || errors.Is(err, accounts.ErrDuplicateStudentID) {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to create voter", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	slog.Info("voter registered", "voter_id", voter.ID, "face_enrolled", descriptor != nil)

	h.startSession(w, r, voter, http.StatusCreated)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "identifier and password are required")
		return
	}
	if len(req.Descriptor) > 0 {
		if err := biometric.Validate(req.Descriptor); err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, "invalid face descriptor")
			return
		}
	}

	voter, err := h.authenticate(r.Context(), identifier, req.Password, req.Descriptor)
	if err != nil {
		h.loginError(w, r, err)
		return
	}

	slog.Info("login succeeded", "voter_id", voter.ID, "role", voter.Role)

	h.startSession(w, r, voter, http.StatusOK)
}

// authenticate runs the lockout check, the password check and, for voters,
// the face check. Only password and face mismatches count as failures.
func (h *AuthHandler) authenticate(ctx context.Context, identifier, password string, descriptor []float64) (models.Voter, error) {
	voter, err := h.accounts.FindByIdentifier(ctx, identifier)
	if errors.Is(err, accounts.ErrNotFound) {
		return models.Voter{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return models.Voter{}, err
	}

	if err := h.guard.Check(ctx, voter.ID); err != nil {
		return models.Voter{}, err
	}

	if err := auth.CheckPassword(voter.PasswordHash, password); err != nil {
		return models.Voter{}, h.recordFailure(ctx, voter.ID, err)
	}

	if voter.Role == models.RoleVoter {
		if err := h.checkFace(ctx, voter, descriptor); err != nil {
			return models.Voter{}, err
		}
	}

	if err := h.guard.RecordSuccess(ctx, voter.ID); err != nil {
		return models.Voter{}, err
	}
	return voter, nil
}

func (h *AuthHandler) checkFace(ctx context.Context, voter models.Voter, descriptor []float64) error {
	if !voter.HasEnrolledDescriptor() {
		if h.cfg.AllowDescriptorlessLogin {
			slog.Warn("login without enrolled face descriptor", "voter_id", voter.ID)
			return nil
		}
		return errNoEnrolledFace
	}

	if len(descriptor) == 0 {
		return auth.ErrFaceVerificationRequired
	}

	enrolled, err := biometric.ParseDescriptor(*voter.EnrolledDescriptor)
	if err != nil {
		return err
	}

	distance, err := biometric.Compare(descriptor, enrolled, biometric.ContextLogin)
	if errors.Is(err, biometric.ErrMismatch) {
		slog.Info("login face mismatch", "voter_id", voter.ID, "distance", distance)
		return h.recordFailure(ctx, voter.ID, err)
	}
	return err
}

func (h *AuthHandler) recordFailure(ctx context.Context, voterID string, cause error) error {
	remaining, err := h.guard.RecordFailure(ctx, voterID)
	if err != nil {
		return err
	}
	return &loginFailure{cause: cause, remaining: remaining}
}

func (h *AuthHandler) loginError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *lockout.LockedError
	var failure *loginFailure

	switch {
	case errors.As(err, &locked):
		minutes := locked.MinutesRemaining
		middleware.JSONResponse(w, http.StatusLocked, models.LoginErrorResponse{
			Error:            http.StatusText(http.StatusLocked),
			Message:          "Too many failed attempts, " + locked.Error(),
			MinutesRemaining: &minutes,
		})
	case errors.As(err, &failure):
		slog.Warn("login failed",
			"ip_hash", auth.HashIP(middleware.GetClientIP(r), h.cfg.JWTSecret),
			"reason", failure.cause,
			"remaining_attempts", failure.remaining,
		)
		message := "Invalid credentials"
		if errors.Is(failure, biometric.ErrMismatch) {
			message = "Face does not match"
		}
		remaining := failure.remaining
		middleware.JSONResponse(w, http.StatusUnauthorized, models.LoginErrorResponse{
			Error:             http.StatusText(http.StatusUnauthorized),
			Message:           message,
			RemainingAttempts: &remaining,
		})
	case errors.Is(err, auth.ErrInvalidCredentials):
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrFaceVerificationRequired):
		middleware.ErrorResponse(w, http.StatusPreconditionRequired, "Face verification required")
	case errors.Is(err, errNoEnrolledFace):
		middleware.ErrorResponse(w, http.StatusForbidden, "No face enrolled for this account")
	case errors.Is(err, biometric.ErrCorruptBiometricData):
		slog.Error("stored face descriptor is corrupt", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Stored biometric data is corrupt")
	default:
		slog.Error("login failed", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Login failed")
	}
}

// startSession issues both tokens, stores the refresh token for rotation
// and writes the cookies and body
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, voter models.Voter, status int) {
	access, refresh, ok := h.issueTokens(w, voter)
	if !ok {
		return
	}

	if err := h.accounts.SetRefreshToken(r.Context(), voter.ID, &refresh.Value, h.clock.Now().UTC()); err != nil {
		slog.Error("failed to store refresh token", "error", err, "voter_id", voter.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return
	}

	h.writeSession(w, voter, access, refresh, status)
}

func (h *AuthHandler) issueTokens(w http.ResponseWriter, voter models.Voter) (access, refresh auth.Token, ok bool) {
	access, err := h.issuer.IssueAccess(voter.ID, voter.Role)
	if err != nil {
		slog.Error("failed to issue access token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return access, refresh, false
	}
	refresh, err = h.issuer.IssueRefresh(voter.ID, voter.Role)
	if err != nil {
		slog.Error("failed to issue refresh token", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return access, refresh, false
	}
	return access, refresh, true
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, voter models.Voter, access, refresh auth.Token, status int) {
	middleware.SetAuthCookies(w, access, refresh, h.cfg.SecureCookies)
	middleware.JSONResponse(w, status, models.SessionResponse{
		Voter:        voter.Profile(),
		AccessToken:  access.Value,
		RefreshToken: refresh.Value,
		ExpiresAt:    access.ExpiresAt,
	})
}

// Refresh handles POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.RefreshCookie)
	if err != nil || cookie.Value == "" {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "No refresh token")
		return
	}

	claims, err := h.issuer.ParseRefresh(cookie.Value)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	voter, err := h.accounts.GetByID(r.Context(), claims.VoterID)
	if errors.Is(err, accounts.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if err != nil {
		slog.Error("failed to load voter", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	access, refresh, ok := h.issueTokens(w, voter)
	if !ok {
		return
	}

	// A rotated-out token is rejected even though its signature is valid.
	// Only one of several concurrent refreshes with the same token wins.
	rotated, err := h.accounts.RotateRefreshToken(r.Context(), voter.ID, cookie.Value, refresh.Value, h.clock.Now().UTC())
	if err != nil {
		slog.Error("failed to rotate refresh token", "error", err, "voter_id", voter.ID)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	if !rotated {
		slog.Warn("stale refresh token presented", "voter_id", voter.ID)
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	h.writeSession(w, voter, access, refresh, http.StatusOK)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := middleware.SessionFrom(r.Context()); ok {
		err := h.accounts.SetRefreshToken(r.Context(), claims.VoterID, nil, h.clock.Now().UTC())
		if err != nil && !errors.Is(err, accounts.ErrNotFound) {
			slog.Warn("failed to revoke refresh token", "error", err, "voter_id", claims.VoterID)
		}
	}

	middleware.ClearAuthCookies(w, h.cfg.SecureCookies)
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Logged out successfully"})
}

// Profile handles GET /api/auth/profile
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.SessionFrom(r.Context())

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

	middleware.JSONResponse(w, http.StatusOK, voter.Profile())
}

// UpdatePassword handles PUT /api/auth/update-password
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.SessionFrom(r.Context())

	var req models.UpdatePasswordRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if len(req.NewPassword) < MinPasswordLength {
		middleware.ErrorResponse(w, http.StatusBadRequest, "password must be at least 8 characters")
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

	if err := auth.CheckPassword(voter.PasswordHash, req.CurrentPassword); err != nil {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid current password")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update password")
		return
	}
	if err := h.accounts.SetPasswordHash(r.Context(), voter.ID, hash, h.clock.Now().UTC()); err != nil {
		slog.Error("failed to update password", "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to update password")
		return
	}

	slog.Info("password updated", "voter_id", voter.ID)

	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Password updated successfully"})
}
