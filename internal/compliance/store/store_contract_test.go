package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"medshare/internal/compliance/models"
)

type complianceStore interface {
	Get(ctx context.Context, identity string) (*models.State, error)
	ClearElapsed(ctx context.Context, identity string, now time.Time) (*models.State, error)
	RecordFailure(ctx context.Context, identity string, now time.Time, policy models.Policy) (*models.FailureResult, error)
	Clear(ctx context.Context, identity string) error
}

// storeContractSuite runs the same behavioural checks against every
// compliance store implementation.
type storeContractSuite struct {
	suite.Suite
	store  complianceStore
	now    time.Time
	policy models.Policy
}

func (s *storeContractSuite) TestUnknownIdentity() {
	state, err := s.store.Get(context.Background(), "nobody")
	s.Require().NoError(err)
	s.Nil(state)

	state, err = s.store.ClearElapsed(context.Background(), "nobody", s.now)
	s.Require().NoError(err)
	s.Nil(state)
}

func (s *storeContractSuite) TestLocksOnThreshold() {
	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		res, err := s.store.RecordFailure(ctx, "alice", s.now, s.policy)
		s.Require().NoError(err)
		s.Equal(i, res.State.ConsecutiveFailures)
		s.False(res.LockTriggered)
		s.Nil(res.State.LockedUntil)
	}

	res, err := s.store.RecordFailure(ctx, "alice", s.now, s.policy)
	s.Require().NoError(err)
	s.True(res.LockTriggered)
	s.Require().NotNil(res.State.LockedUntil)
	s.True(res.State.LockedUntil.Equal(s.now.Add(s.policy.LockoutDuration)))

	state, err := s.store.Get(ctx, "alice")
	s.Require().NoError(err)
	s.Require().NotNil(state)
	s.Equal(3, state.ConsecutiveFailures)
	s.True(state.IsLocked(s.now))

	other, err := s.store.Get(ctx, "bob")
	s.Require().NoError(err)
	s.Nil(other)
}

func (s *storeContractSuite) TestClearElapsed() {
	ctx := context.Background()
	for range 3 {
		_, err := s.store.RecordFailure(ctx, "carol", s.now, s.policy)
		s.Require().NoError(err)
	}

	state, err := s.store.ClearElapsed(ctx, "carol", s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().NotNil(state, "an active lock is kept")
	s.True(state.IsLocked(s.now.Add(time.Minute)))

	state, err = s.store.ClearElapsed(ctx, "carol", s.now.Add(s.policy.LockoutDuration))
	s.Require().NoError(err)
	s.Nil(state)

	state, err = s.store.Get(ctx, "carol")
	s.Require().NoError(err)
	s.Nil(state, "elapsed lock and its counter are gone")
}

func (s *storeContractSuite) TestClearElapsedKeepsUnlockedCounter() {
	ctx := context.Background()
	_, err := s.store.RecordFailure(ctx, "dave", s.now, s.policy)
	s.Require().NoError(err)

	state, err := s.store.ClearElapsed(ctx, "dave", s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().NotNil(state)
	s.Equal(1, state.ConsecutiveFailures)
}

func (s *storeContractSuite) TestClear() {
	ctx := context.Background()
	_, err := s.store.RecordFailure(ctx, "erin", s.now, s.policy)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Clear(ctx, "erin"))

	state, err := s.store.Get(ctx, "erin")
	s.Require().NoError(err)
	s.Nil(state)
	s.Require().NoError(s.store.Clear(ctx, "erin"))
}

func (s *storeContractSuite) TestConcurrentFailuresLockExactlyOnce() {
	const workers = 20
	var triggered atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			res, err := s.store.RecordFailure(context.Background(), "frank", s.now, s.policy)
			if err == nil && res.LockTriggered {
				triggered.Add(1)
			}
		})
	}
	wg.Wait()

	s.Equal(int32(1), triggered.Load())
	state, err := s.store.Get(context.Background(), "frank")
	s.Require().NoError(err)
	s.Equal(workers, state.ConsecutiveFailures)
}

func (s *storeContractSuite) TestStaleStreakStartsOver() {
	ctx := context.Background()
	for range 2 {
		_, err := s.store.RecordFailure(ctx, "dave", s.now, s.policy)
		s.Require().NoError(err)
	}

	res, err := s.store.RecordFailure(ctx, "dave", s.now.Add(s.policy.FailureWindow), s.policy)
	s.Require().NoError(err)
	s.Equal(1, res.State.ConsecutiveFailures)
	s.False(res.LockTriggered)
}
