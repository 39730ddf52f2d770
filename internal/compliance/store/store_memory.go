package store

import (
	"context"
	"sync"
	"time"

	"medshare/internal/compliance/models"
	platformsync "medshare/pkg/platform/sync"
)

// InMemoryStore tracks attempt state per identity. Each identity's
// read-increment-compare runs under its own shard lock, so concurrent
// failures for one identity are serialized while other identities proceed.
type InMemoryStore struct {
	locks  *platformsync.ShardedMutex
	states sync.Map // identity -> *models.State
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{locks: platformsync.NewShardedMutex()}
}

// Get returns a copy of the identity's state, or nil when none is tracked.
func (s *InMemoryStore) Get(_ context.Context, identity string) (*models.State, error) {
	s.locks.Lock(identity)
	defer s.locks.Unlock(identity)
	return s.load(identity).Clone(), nil
}

// ClearElapsed drops the state when its lockout has run out and returns
// whatever remains.
func (s *InMemoryStore) ClearElapsed(_ context.Context, identity string, now time.Time) (*models.State, error) {
	s.locks.Lock(identity)
	defer s.locks.Unlock(identity)
	current := s.load(identity)
	if current.LockElapsed(now) {
		s.states.Delete(identity)
		return nil, nil
	}
	return current.Clone(), nil
}

func (s *InMemoryStore) RecordFailure(_ context.Context, identity string, now time.Time, policy models.Policy) (*models.FailureResult, error) {
	s.locks.Lock(identity)
	defer s.locks.Unlock(identity)
	result := models.ApplyFailure(s.load(identity), identity, now, policy)
	s.states.Store(identity, result.State)
	result.State = result.State.Clone()
	return &result, nil
}

func (s *InMemoryStore) Clear(_ context.Context, identity string) error {
	s.locks.Lock(identity)
	defer s.locks.Unlock(identity)
	s.states.Delete(identity)
	return nil
}

func (s *InMemoryStore) load(identity string) *models.State {
	v, ok := s.states.Load(identity)
	if !ok {
		return nil
	}
	return v.(*models.State)
}
