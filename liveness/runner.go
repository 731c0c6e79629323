// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/danielhkuo/livevote/clock"
)

// ErrChallengeFailed means the global timer ran out before success
var ErrChallengeFailed = errors.New("liveness challenge timed out")

// Runner drives a Challenge from a camera and a detector at PollInterval.
// At most one detection is in flight; ticks that arrive while one is
// running are skipped.
type Runner struct {
	Camera    Camera
	Detector  FaceDetector
	Clock     clock.Clock
	Challenge *Challenge

	// OnState, if set, is called from the loop goroutine on every state change
	OnState func(State)

	// OnObserve, if set, is called after every processed detection with the
	// resulting state, the latest roll angle and whether a face was found
	OnObserve func(state State, roll float64, face bool)
}

type tickResult struct {
	at    time.Time
	frame Frame
	det   *Detection
	err   error
}

// Run polls until the challenge succeeds or fails, ctx is cancelled, or the
// camera or engine stops. The camera is closed before Run returns, whatever
// the outcome. After ErrChallengeFailed, Retry lets Run be called again on
// the same challenge.
func (r *Runner) Run(ctx context.Context) (Capture, error) {
	if r.Challenge == nil {
		r.Challenge = NewChallenge()
	}
	ch := r.Challenge

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		if err := r.Camera.Close(); err != nil {
			slog.Warn("failed to close camera", "error", err)
		}
	}()

	ticker := r.Clock.NewTicker(PollInterval)
	defer ticker.Stop()

	results := make(chan tickResult, 1)
	inFlight := false
	skipped := 0

	r.notify(ch.State())

	for {
		select {
		case <-ctx.Done():
			return Capture{}, ctx.Err()

		case now := <-ticker.C():
			prev := ch.State()
			if ch.Expire(now) != prev {
				r.notify(ch.State())
			}
			if ch.State() == StateFailed {
				return Capture{}, ErrChallengeFailed
			}
			if inFlight {
				skipped++
				continue
			}

			inFlight = true
			wg.Add(1)
			go func(at time.Time) {
				defer wg.Done()
				results <- r.detect(ctx, at)
			}(now)

		case res := <-results:
			inFlight = false

			if errors.Is(res.err, ErrNoFrame) {
				continue
			}
			if res.err != nil {
				if ctx.Err() != nil {
					return Capture{}, ctx.Err()
				}
				if errors.Is(res.err, ErrCameraClosed) || errors.Is(res.err, ErrEngineStopped) {
					return Capture{}, res.err
				}
				// A bad frame is not fatal; treat it as a tick with no face
				slog.Debug("detection failed", "error", res.err)
				res.det = nil
			}

			prev := ch.State()
			state := ch.Observe(res.at, res.det, res.frame)
			if state != prev {
				slog.Debug("liveness state changed", "from", prev, "to", state, "roll", ch.LastRoll(), "skipped_ticks", skipped)
				r.notify(state)
			}
			if r.OnObserve != nil {
				r.OnObserve(state, ch.LastRoll(), res.det != nil)
			}

			switch state {
			case StateSuccess:
				capture, _ := ch.Capture()
				return capture, nil
			case StateFailed:
				return Capture{}, ErrChallengeFailed
			}
		}
	}
}

// Retry re-arms a failed challenge at the clock's current time and swaps in
// cam, since Run closed the previous camera. The next Run resumes from
// position. It reports false, and changes nothing, unless the challenge
// has failed.
func (r *Runner) Retry(cam Camera) bool {
	if r.Challenge == nil || r.Challenge.State() != StateFailed {
		return false
	}
	r.Camera = cam
	r.Challenge.Retry(r.Clock.Now())
	return true
}

func (r *Runner) detect(ctx context.Context, at time.Time) tickResult {
	frame, err := r.Camera.Frame(ctx)
	if err != nil {
		return tickResult{at: at, err: err}
	}
	det, err := r.Detector.Detect(ctx, frame)
	if err != nil {
		return tickResult{at: at, frame: frame, err: fmt.Errorf("detect: %w", err)}
	}
	return tickResult{at: at, frame: frame, det: det}
}

func (r *Runner) notify(s State) {
	if r.OnState != nil {
		r.OnState(s)
	}
}
