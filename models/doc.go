// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Request Types

Types for parsing incoming JSON:

  - RegisterRequest: name, email, password, student_id, descriptor
  - LoginRequest: identifier (email or student ID), password, descriptor
  - VerifyFaceRequest: descriptor
  - CastVoteRequest: candidate_id
  - VerifyVoterRequest: status
  - PublishResultsRequest: publish
  - ConfirmPasswordRequest: password (admin re-confirmation)

# Response Types

  - SessionResponse: voter profile plus access/refresh tokens
  - VerifyFaceResponse: verified, distance
  - CastVoteResponse, ResetElectionResponse, EmergencyStopResponse
  - ElectionResults: published tallies and winner
  - ErrorResponse, LoginErrorResponse: error payloads

# Domain Types

  - Voter: credentials, enrolled descriptor, verification and lockout state
  - Candidate: ballot option with its sealed vote count
  - Election: voting window and results publishing state

# Constants

Verification status:

	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusRejected = "rejected"

Roles:

	RoleVoter     = "voter"
	RoleAdmin     = "admin"
	RoleCandidate = "candidate"
*/
package models
