package models

import (
	"errors"
	"time"
)

// Verification status constants
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusRejected = "rejected"
)

// Role constants
const (
	RoleVoter     = "voter"
	RoleAdmin     = "admin"
	RoleCandidate = "candidate"
)

// ErrValidation marks malformed or missing input. It is always returned
// before any state changes.
var ErrValidation = errors.New("validation error")

// Descriptor is a fixed-length face descriptor vector
type Descriptor []float64

// Request types

type RegisterRequest struct {
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Password   string     `json:"password"`
	StudentID  string     `json:"student_id"`
	Descriptor Descriptor `json:"descriptor,omitempty"`
}

// Identifier is an email or a student ID.
// Email is accepted as an alias for older clients.
type LoginRequest struct {
	Identifier string     `json:"identifier"`
	Email      string     `json:"email,omitempty"`
	Password   string     `json:"password"`
	Descriptor Descriptor `json:"descriptor,omitempty"`
}

type VerifyFaceRequest struct {
	Descriptor Descriptor `json:"descriptor"`
}

type CastVoteRequest struct {
	CandidateID string `json:"candidate_id"`
}

type VerifyVoterRequest struct {
	Status string `json:"status"`
}

type PublishResultsRequest struct {
	Publish bool `json:"publish"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Admin actions that change the election re-confirm the admin's password
type ConfirmPasswordRequest struct {
	Password string `json:"password"`
}

// Response types

type SessionResponse struct {
	Voter        VoterProfile `json:"voter"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type VerifyVoterResponse struct {
	Message string       `json:"message"`
	Voter   VoterProfile `json:"voter"`
}

type VerifyFaceResponse struct {
	Verified bool    `json:"verified"`
	Distance float64 `json:"distance"`
}

type CastVoteResponse struct {
	Message string `json:"message"`
}

type ResetElectionResponse struct {
	Message          string `json:"message"`
	CandidatesReset  int64  `json:"candidates_reset"`
	VotersReset      int64  `json:"voters_reset"`
	ResultsPublished bool   `json:"results_published"`
}

type EmergencyStopResponse struct {
	Message string    `json:"message"`
	EndDate time.Time `json:"end_date"`
}

type PublishResultsResponse struct {
	Message          string     `json:"message"`
	ResultsPublished bool       `json:"results_published"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
}

type CandidateResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Party    string `json:"party"`
	ImageURL string `json:"image_url,omitempty"`
	Votes    int    `json:"votes"`
}

type ElectionResults struct {
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	TotalVotes  int               `json:"total_votes"`
	Winner      *CandidateResult  `json:"winner,omitempty"`
	Results     []CandidateResult `json:"results"`
}

// Domain types

type Voter struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	StudentID          *string    `json:"student_id,omitempty"`
	PasswordHash       string     `json:"-"`
	Role               string     `json:"role"`
	EnrolledDescriptor *string    `json:"-"` // raw JSON as stored; parsed by the biometric package
	VerificationStatus string     `json:"verification_status"`
	HasVoted           bool       `json:"has_voted"`
	LoginAttempts      int        `json:"-"`
	LockUntil          *time.Time `json:"-"`
	RefreshToken       *string    `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasEnrolledDescriptor reports whether a descriptor was captured at registration
func (v Voter) HasEnrolledDescriptor() bool {
	return v.EnrolledDescriptor != nil && *v.EnrolledDescriptor != ""
}

// Profile strips credentials and biometric data
func (v Voter) Profile() VoterProfile {
	return VoterProfile{
		ID:                 v.ID,
		Name:               v.Name,
		Email:              v.Email,
		StudentID:          v.StudentID,
		Role:               v.Role,
		VerificationStatus: v.VerificationStatus,
		HasVoted:           v.HasVoted,
		FaceEnrolled:       v.HasEnrolledDescriptor(),
		CreatedAt:          v.CreatedAt,
	}
}

type VoterProfile struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	StudentID          *string   `json:"student_id,omitempty"`
	Role               string    `json:"role"`
	VerificationStatus string    `json:"verification_status"`
	HasVoted           bool      `json:"has_voted"`
	FaceEnrolled       bool      `json:"face_enrolled"`
	CreatedAt          time.Time `json:"created_at"`
}

type Candidate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Party     string    `json:"party"`
	Manifesto string    `json:"manifesto"`
	ImageURL  string    `json:"image_url,omitempty"`
	VoteCount int       `json:"-"` // sealed until results are published
	CreatedAt time.Time `json:"created_at"`
}

type Election struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          time.Time  `json:"end_date"`
	ResultsPublished bool       `json:"results_published"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
}

// IsOpen reports whether now falls inside [StartDate, EndDate)
func (e Election) IsOpen(now time.Time) bool {
	return !now.Before(e.StartDate) && now.Before(e.EndDate)
}

// Error responses

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// LoginErrorResponse carries the lockout counters alongside the error
type LoginErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	MinutesRemaining  *int   `json:"minutes_remaining,omitempty"`
}
