package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medshare/pkg/domain-errors"
)

func TestApplyFailure(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	policy := DefaultPolicy()

	first := ApplyFailure(nil, "alice", now, policy)
	assert.Equal(t, 1, first.State.ConsecutiveFailures)
	assert.False(t, first.LockTriggered)

	second := ApplyFailure(first.State, "alice", now, policy)
	third := ApplyFailure(second.State, "alice", now, policy)
	require.True(t, third.LockTriggered)
	require.NotNil(t, third.State.LockedUntil)
	assert.Equal(t, now.Add(30*time.Minute), *third.State.LockedUntil)
	assert.Nil(t, second.State.LockedUntil, "input state is not mutated")

	t.Run("failures while locked do not extend the lock", func(t *testing.T) {
		fourth := ApplyFailure(third.State, "alice", now.Add(time.Minute), policy)
		assert.False(t, fourth.LockTriggered)
		assert.Equal(t, *third.State.LockedUntil, *fourth.State.LockedUntil)
	})

	t.Run("lapsed streak restarts the count", func(t *testing.T) {
		stale := ApplyFailure(second.State, "alice", now.Add(policy.FailureWindow), policy)
		assert.Equal(t, 1, stale.State.ConsecutiveFailures)
		assert.False(t, stale.LockTriggered)

		fresh := ApplyFailure(second.State, "alice", now.Add(policy.FailureWindow-time.Second), policy)
		assert.True(t, fresh.LockTriggered)
	})

	t.Run("zero window keeps the streak", func(t *testing.T) {
		keep := policy
		keep.FailureWindow = 0
		later := ApplyFailure(second.State, "alice", now.Add(365*24*time.Hour), keep)
		assert.True(t, later.LockTriggered)
	})

	t.Run("elapsed lock restarts the count", func(t *testing.T) {
		later := ApplyFailure(third.State, "alice", now.Add(31*time.Minute), policy)
		assert.Equal(t, 1, later.State.ConsecutiveFailures)
		assert.Nil(t, later.State.LockedUntil)
	})
}

func TestStateLocking(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)
	s := &State{Identity: "alice", LockedUntil: &until}

	assert.True(t, s.IsLocked(now))
	assert.False(t, s.LockElapsed(now))
	assert.False(t, s.IsLocked(until), "the lock ends at LockedUntil")
	assert.True(t, s.LockElapsed(until))

	var missing *State
	assert.False(t, missing.IsLocked(now))
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.True(t, dErrors.HasCode(Policy{Threshold: 0, LockoutDuration: time.Minute}.Validate(), dErrors.CodeInvariantViolation))
	assert.True(t, dErrors.HasCode(Policy{Threshold: 3}.Validate(), dErrors.CodeInvariantViolation))
	assert.True(t, dErrors.HasCode(Policy{Threshold: 3, LockoutDuration: time.Minute, FailureWindow: -time.Second}.Validate(), dErrors.CodeInvariantViolation))
}
