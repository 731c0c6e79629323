// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lockout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/livevote/clock"
)

const (
	MaxAttempts  = 5
	LockDuration = 15 * time.Minute
)

// ErrLocked matches any *LockedError
var ErrLocked = errors.New("account locked")

// LockedError reports an active lock and how long it has left
type LockedError struct {
	Until            time.Time
	MinutesRemaining int
	now              time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again %s", humanize.RelTime(e.Until, e.now, "ago", "from now"))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// Store is the account state the guard reads and writes
type Store interface {
	LoginState(ctx context.Context, id string) (attempts int, lockUntil *time.Time, err error)
	RecordLoginFailure(ctx context.Context, id string, now time.Time, lockAt int, lockUntil time.Time) (attempts int, lockedUntil *time.Time, err error)
	ResetLoginAttempts(ctx context.Context, id string, now time.Time) (lockedUntil *time.Time, err error)
}

// Guard enforces the failed-login policy per account
type Guard struct {
	store Store
	clock clock.Clock
}

func NewGuard(store Store, clk clock.Clock) *Guard {
	return &Guard{store: store, clock: clk}
}

// Check returns a *LockedError while the account is locked.
// It never modifies the failure counter.
func (g *Guard) Check(ctx context.Context, id string) error {
	_, lockUntil, err := g.store.LoginState(ctx, id)
	if err != nil {
		return err
	}
	if lockUntil == nil {
		return nil
	}
	return lockedAt(g.clock.Now(), *lockUntil)
}

// RecordFailure counts a failed credential or face check. It returns the
// attempts left before a lock, or a *LockedError when this failure imposed
// a lock or ran into one. Failures against an active lock are not counted.
func (g *Guard) RecordFailure(ctx context.Context, id string) (remaining int, err error) {
	now := g.clock.Now()
	attempts, lockedUntil, err := g.store.RecordLoginFailure(ctx, id, now, MaxAttempts, now.Add(LockDuration))
	if err != nil {
		return 0, err
	}
	if lockedUntil != nil {
		if err := lockedAt(now, *lockedUntil); err != nil {
			return 0, err
		}
	}

	remaining = MaxAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RecordSuccess resets the counter. If a concurrent failure has locked the
// account since Check, the lock stands and a *LockedError is returned.
func (g *Guard) RecordSuccess(ctx context.Context, id string) error {
	now := g.clock.Now()
	lockedUntil, err := g.store.ResetLoginAttempts(ctx, id, now)
	if err != nil {
		return err
	}
	if lockedUntil == nil {
		return nil
	}
	return lockedAt(now, *lockedUntil)
}

func lockedAt(now, until time.Time) error {
	if !until.After(now) {
		return nil
	}
	return &LockedError{
		Until:            until,
		MinutesRemaining: int(math.Ceil(until.Sub(now).Minutes())),
		now:              now,
	}
}
