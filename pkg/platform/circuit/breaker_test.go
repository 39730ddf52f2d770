package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"medshare/pkg/platform/clock"
)

func TestBreaker(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New("audit-kafka", WithFailureThreshold(2), WithCooldown(10*time.Second), WithClock(c))

	assert.Equal(t, "audit-kafka", b.Name())
	assert.True(t, b.Allow())
	assert.Equal(t, StateChange{}, b.RecordFailure())
	assert.Equal(t, StateChange{Opened: true}, b.RecordFailure())
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, "open", b.State().String())

	assert.False(t, b.Allow(), "open circuit skips calls during cooldown")

	c.Advance(10 * time.Second)
	assert.True(t, b.Allow(), "one probe after cooldown")
	assert.False(t, b.Allow(), "only one probe per cooldown")

	b.RecordFailure()
	c.Advance(5 * time.Second)
	assert.False(t, b.Allow(), "failed probe restarts cooldown")

	c.Advance(5 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, StateChange{Closed: true}, b.RecordSuccess())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("x", WithFailureThreshold(2))
	b.RecordFailure()
	b.RecordSuccess()
	assert.Equal(t, StateChange{}, b.RecordFailure())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_SuccessThreshold(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New("x", WithFailureThreshold(1), WithSuccessThreshold(2), WithCooldown(time.Second), WithClock(c))
	b.RecordFailure()

	c.Advance(time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, StateChange{}, b.RecordSuccess())
	assert.Equal(t, StateOpen, b.State())

	c.Advance(time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, StateChange{Closed: true}, b.RecordSuccess())

	b.RecordFailure()
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}
