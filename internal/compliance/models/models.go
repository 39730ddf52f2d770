package models

import (
	"time"

	dErrors "medshare/pkg/domain-errors"
)

const (
	DefaultThreshold       = 3
	DefaultLockoutDuration = 30 * time.Minute
	DefaultFailureWindow   = 24 * time.Hour
)

// Policy controls when an identity is locked and for how long.
type Policy struct {
	Threshold       int
	LockoutDuration time.Duration
	// FailureWindow is how long an unlocked failure streak survives without
	// a new failure. Zero keeps streaks until a success or a lockout.
	FailureWindow time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Threshold:       DefaultThreshold,
		LockoutDuration: DefaultLockoutDuration,
		FailureWindow:   DefaultFailureWindow,
	}
}

// Validate rejects policies that could never lock or never unlock.
func (p Policy) Validate() error {
	if p.Threshold < 1 {
		return dErrors.New(dErrors.CodeInvariantViolation, "lockout threshold must be at least 1")
	}
	if p.LockoutDuration <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "lockout duration must be positive")
	}
	if p.FailureWindow < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "failure window must not be negative")
	}
	return nil
}

// State is the attempt-tracking record for one identity.
type State struct {
	Identity            string     `json:"identity"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	LastFailureAt       time.Time  `json:"last_failure_at"`
}

// IsLocked reports whether the lockout is still in force at now.
func (s *State) IsLocked(now time.Time) bool {
	return s != nil && s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// LockElapsed reports whether the state carries a lockout that has run out.
func (s *State) LockElapsed(now time.Time) bool {
	return s != nil && s.LockedUntil != nil && !now.Before(*s.LockedUntil)
}

// StreakLapsed reports whether an unlocked failure streak is older than
// window. A zero window never lapses.
func (s *State) StreakLapsed(now time.Time, window time.Duration) bool {
	if s == nil || window <= 0 || s.LockedUntil != nil || s.LastFailureAt.IsZero() {
		return false
	}
	return !now.Before(s.LastFailureAt.Add(window))
}

func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	if s.LockedUntil != nil {
		t := *s.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

// FailureResult is the outcome of one atomic read-increment-compare.
type FailureResult struct {
	State *State
	// LockTriggered is true only for the attempt that crossed the threshold.
	LockTriggered bool
}

// ApplyFailure increments the counter on s (nil means no prior failures) and
// locks when the threshold is reached. An elapsed lockout or a lapsed streak
// is discarded first so the identity starts a fresh count. Stores call this
// inside their per-identity critical section.
func ApplyFailure(s *State, identity string, now time.Time, policy Policy) FailureResult {
	next := s.Clone()
	if next == nil || next.LockElapsed(now) || next.StreakLapsed(now, policy.FailureWindow) {
		next = &State{Identity: identity}
	}
	next.ConsecutiveFailures++
	next.LastFailureAt = now

	triggered := false
	if next.LockedUntil == nil && next.ConsecutiveFailures >= policy.Threshold {
		until := now.Add(policy.LockoutDuration)
		next.LockedUntil = &until
		triggered = true
	}
	return FailureResult{State: next, LockTriggered: triggered}
}
