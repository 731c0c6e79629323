// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/danielhkuo/livevote/models"
)

// APIError is a non-2xx response from the server
type APIError struct {
	Status            int
	Code              string
	Message           string
	RemainingAttempts *int
	MinutesRemaining  *int
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Code)
}

// Locked reports a 423 lockout response
func (e *APIError) Locked() bool { return e.Status == http.StatusLocked }

// FaceRequired reports that login needs a face descriptor (428)
func (e *APIError) FaceRequired() bool { return e.Status == http.StatusPreconditionRequired }

// Client calls the voting API on behalf of one Session
type Client struct {
	baseURL string
	http    *http.Client
	session *Session

	// refreshes collapses concurrent Refresh calls into one request, since
	// the server rotates the refresh token on every use
	refreshes singleflight.Group
}

// New creates a client. A nil httpClient gets a 15 second timeout.
func New(baseURL string, httpClient *http.Client, session *Session) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if session == nil {
		session = NewSession()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		session: session,
	}
}

func (c *Client) Session() *Session { return c.session }

// Register creates an account and signs in with it
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (models.VoterProfile, error) {
	return c.authenticate(ctx, "/api/auth/register", req)
}

// Login signs in. descriptor may be nil for accounts without an enrolled face.
func (c *Client) Login(ctx context.Context, identifier, password string, descriptor []float64) (models.VoterProfile, error) {
	return c.authenticate(ctx, "/api/auth/login", models.LoginRequest{
		Identifier: identifier,
		Password:   password,
		Descriptor: descriptor,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (models.VoterProfile, error) {
	if err := c.session.Begin(); err != nil {
		return models.VoterProfile{}, err
	}

	var resp models.SessionResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		c.session.Fail()
		return models.VoterProfile{}, err
	}
	if err := c.session.Complete(resp); err != nil {
		return models.VoterProfile{}, err
	}
	return resp.Voter, nil
}

// Refresh rotates the session tokens. Concurrent callers share one request.
func (c *Client) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Client) refresh(ctx context.Context) error {
	_, refresh := c.session.tokens()
	if refresh == "" {
		return errors.New("no refresh token")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/refresh", nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: refresh})

	var resp models.SessionResponse
	if err := c.send(req, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			c.session.Clear()
		}
		return err
	}

	if err := c.session.Begin(); err != nil {
		return err
	}
	return c.session.Complete(resp)
}

// Logout ends the session on the server and locally
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	c.session.Clear()
	return err
}

// Profile fetches the signed-in voter
func (c *Client) Profile(ctx context.Context) (models.VoterProfile, error) {
	var v models.VoterProfile
	err := c.do(ctx, http.MethodGet, "/api/auth/profile", nil, &v)
	return v, err
}

// VerifyFace submits a live descriptor against the enrolled one
func (c *Client) VerifyFace(ctx context.Context, descriptor []float64) (models.VerifyFaceResponse, error) {
	var resp models.VerifyFaceResponse
	err := c.do(ctx, http.MethodPost, "/api/face/verify", models.VerifyFaceRequest{Descriptor: descriptor}, &resp)
	if err == nil && resp.Verified {
		c.session.MarkVerified()
	}
	return resp, err
}

// Candidates lists the ballot
func (c *Client) Candidates(ctx context.Context) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := c.do(ctx, http.MethodGet, "/api/candidates", nil, &candidates)
	return candidates, err
}

// CastVote submits the final ballot
func (c *Client) CastVote(ctx context.Context, candidateID string) error {
	var resp models.CastVoteResponse
	if err := c.do(ctx, http.MethodPost, "/api/vote", models.CastVoteRequest{CandidateID: candidateID}, &resp); err != nil {
		return err
	}
	c.session.MarkVoted()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access, _ := c.session.tokens(); access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body models.LoginErrorResponse
		json.NewDecoder(resp.Body).Decode(&body)
		return &APIError{
			Status:            resp.StatusCode,
			Code:              body.Error,
			Message:           body.Message,
			RemainingAttempts: body.RemainingAttempts,
			MinutesRemaining:  body.MinutesRemaining,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
