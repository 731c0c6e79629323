// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package client

import (
	"errors"
	"sync"
	"time"

	"github.com/danielhkuo/livevote/models"
)

// Status of a client session
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
)

// ErrSessionBusy means a login is already in progress
var ErrSessionBusy = errors.New("session is already loading")

// SessionState is an immutable snapshot of a Session
type SessionState struct {
	Status    Status
	Voter     *models.VoterProfile
	ExpiresAt time.Time
}

// Session holds the signed-in voter. It moves
// unauthenticated → loading → authenticated and back to unauthenticated on
// failure or logout. Consumers receive it explicitly; there is no global.
type Session struct {
	mu           sync.Mutex
	state        SessionState
	accessToken  string
	refreshToken string
	subscribers  []func(SessionState)
}

func NewSession() *Session {
	return &Session{state: SessionState{Status: StatusUnauthenticated}}
}

// State returns the current snapshot
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to be called after every transition
func (s *Session) Subscribe(fn func(SessionState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Begin moves to loading. A session that is already loading is left alone.
func (s *Session) Begin() error {
	s.mu.Lock()
	if s.state.Status == StatusLoading {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.state = SessionState{Status: StatusLoading}
	s.accessToken, s.refreshToken = "", ""
	return s.publish()
}

// Complete moves loading → authenticated with the server's session
func (s *Session) Complete(resp models.SessionResponse) error {
	s.mu.Lock()
	if s.state.Status != StatusLoading {
		s.mu.Unlock()
		return errors.New("session is not loading")
	}
	voter := resp.Voter
	s.state = SessionState{Status: StatusAuthenticated, Voter: &voter, ExpiresAt: resp.ExpiresAt}
	s.accessToken = resp.AccessToken
	s.refreshToken = resp.RefreshToken
	return s.publish()
}

// Fail abandons a login in progress
func (s *Session) Fail() {
	s.Clear()
}

// Clear signs out
func (s *Session) Clear() {
	s.mu.Lock()
	s.state = SessionState{Status: StatusUnauthenticated}
	s.accessToken, s.refreshToken = "", ""
	s.publish()
}

// MarkVoted records a committed ballot in the cached profile
func (s *Session) MarkVoted() {
	s.mu.Lock()
	if s.state.Voter != nil {
		v := *s.state.Voter
		v.HasVoted = true
		s.state.Voter = &v
	}
	s.publish()
}

// MarkVerified records a successful face verification in the cached profile
func (s *Session) MarkVerified() {
	s.mu.Lock()
	if s.state.Voter != nil && s.state.Voter.VerificationStatus == models.StatusPending {
		v := *s.state.Voter
		v.VerificationStatus = models.StatusVerified
		s.state.Voter = &v
	}
	s.publish()
}

func (s *Session) tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

// publish must be called with s.mu held; it unlocks before notifying
func (s *Session) publish() error {
	state := s.state
	subs := append([]func(SessionState){}, s.subscribers...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
	return nil
}
