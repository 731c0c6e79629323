// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package liveness

import (
	"math"
	"time"
)

// State of a liveness challenge
type State string

const (
	StateLoading    State = "loading"
	StatePosition   State = "position"
	StateTilt       State = "tilt"
	StateStraighten State = "straighten"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

// Challenge timings and angles
const (
	StabilizeHold    = 1000 * time.Millisecond
	TiltAngle        = 15.0
	TiltHold         = 500 * time.Millisecond
	StraightenAngle  = 8.0
	StraightenHold   = 800 * time.Millisecond
	ChallengeTimeout = 30000 * time.Millisecond
	PollInterval     = 200 * time.Millisecond
)

// Frame is one encoded video frame (JPEG)
type Frame []byte

// Capture is what a successful challenge produces
type Capture struct {
	Image      Frame
	Descriptor []float64
	At         time.Time
}

// Challenge is the position → tilt → straighten state machine. It holds no
// timers of its own: every transition is a comparison of the observation
// time against recorded timestamps, so it can be driven by any clock.
// A Challenge is not safe for concurrent use.
type Challenge struct {
	state     State
	armedAt   time.Time // first entry into position; drives the global timeout
	holdStart time.Time // start of the current phase's hold, zero when not holding
	lastRoll  float64
	capture   Capture
}

func NewChallenge() *Challenge {
	return &Challenge{state: StateLoading}
}

func (c *Challenge) State() State { return c.state }

// LastRoll is the roll angle from the most recent detection with eye landmarks
func (c *Challenge) LastRoll() float64 { return c.lastRoll }

// HoldStartedAt returns when the current hold began and whether one is running
func (c *Challenge) HoldStartedAt() (time.Time, bool) {
	return c.holdStart, !c.holdStart.IsZero()
}

// Capture returns the frame and descriptor recorded on success
func (c *Challenge) Capture() (Capture, bool) {
	return c.capture, c.state == StateSuccess
}

// Expire fails the challenge once the global timer has run out. It only
// applies in position and tilt.
func (c *Challenge) Expire(now time.Time) State {
	if (c.state == StatePosition || c.state == StateTilt) && now.Sub(c.armedAt) >= ChallengeTimeout {
		c.state = StateFailed
		c.holdStart = time.Time{}
	}
	return c.state
}

// Observe applies one detection tick. det is nil when no face was found.
func (c *Challenge) Observe(now time.Time, det *Detection, frame Frame) State {
	switch c.state {
	case StateSuccess, StateFailed:
		return c.state
	case StateLoading:
		if det == nil {
			return c.state
		}
		c.state = StatePosition
		c.armedAt = now
		c.holdStart = now
		c.observeRoll(det)
		return c.state
	}

	if c.Expire(now) == StateFailed {
		return c.state
	}

	roll, ok := c.observeRoll(det)

	switch c.state {
	case StatePosition:
		// Continuous detection is the whole condition here
		if c.hold(now, det != nil, StabilizeHold) {
			c.state = StateTilt
		}
	case StateTilt:
		if c.hold(now, ok && math.Abs(roll) > TiltAngle, TiltHold) {
			c.state = StateStraighten
		}
	case StateStraighten:
		if c.hold(now, ok && math.Abs(roll) < StraightenAngle, StraightenHold) {
			c.state = StateSuccess
			c.capture = Capture{Image: frame, Descriptor: det.Descriptor, At: now}
		}
	}
	return c.state
}

// Retry restarts a failed challenge from position with every timer cleared
// and the global timer re-armed at now. It does nothing in any other state.
func (c *Challenge) Retry(now time.Time) State {
	if c.state != StateFailed {
		return c.state
	}
	c.state = StatePosition
	c.armedAt = now
	c.holdStart = time.Time{}
	c.capture = Capture{}
	return c.state
}

// hold tracks a condition that must stay true for d. A violation resets the
// hold; completing it clears the hold for the next phase.
func (c *Challenge) hold(now time.Time, cond bool, d time.Duration) bool {
	if !cond {
		c.holdStart = time.Time{}
		return false
	}
	if c.holdStart.IsZero() {
		c.holdStart = now
	}
	if now.Sub(c.holdStart) >= d {
		c.holdStart = time.Time{}
		return true
	}
	return false
}

func (c *Challenge) observeRoll(det *Detection) (float64, bool) {
	if det == nil {
		return 0, false
	}
	roll, ok := Roll(det)
	if ok {
		c.lastRoll = roll
	}
	return roll, ok
}
