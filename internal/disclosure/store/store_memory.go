package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medshare/internal/disclosure/models"
	"medshare/internal/sentinel"
	platformsync "medshare/pkg/platform/sync"
)

// Error Contract:
// - ErrNotFound when no session matches the token or ID
// - ErrConflict when creating a session whose token or ID is already taken
// - Update persists the mutation whenever fn reports a change, even if fn
//   also returns an error; the error is then returned unchanged

// UpdateFunc mutates a session in place and reports whether it changed.
type UpdateFunc func(*models.Session) (changed bool, err error)

// InMemoryStore keeps sessions keyed by token. Every mutation of one token
// runs under that token's shard lock, which makes ACTIVE to USED
// linearizable per token without a global lock. Sessions are never removed;
// a used or expired token keeps answering with its terminal status.
type InMemoryStore struct {
	locks    *platformsync.ShardedMutex
	sessions sync.Map // token -> *models.Session
	ids      sync.Map // sessionID -> token
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		locks: platformsync.NewShardedMutex(),
	}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	s.locks.Lock(session.Token)
	defer s.locks.Unlock(session.Token)

	if _, loaded := s.ids.LoadOrStore(session.ID, session.Token); loaded {
		return fmt.Errorf("session id taken: %w", sentinel.ErrConflict)
	}
	if _, loaded := s.sessions.LoadOrStore(session.Token, session.Clone()); loaded {
		s.ids.Delete(session.ID)
		return fmt.Errorf("session token taken: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, token string) (*models.Session, error) {
	s.locks.Lock(token)
	defer s.locks.Unlock(token)
	current := s.load(token)
	if current == nil {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	return current.Clone(), nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, sessionID string) (*models.Session, error) {
	token, ok := s.ids.Load(sessionID)
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	return s.FindByToken(ctx, token.(string))
}

// Update runs fn against the stored session under the token's lock.
func (s *InMemoryStore) Update(_ context.Context, token string, fn UpdateFunc) (*models.Session, error) {
	s.locks.Lock(token)
	defer s.locks.Unlock(token)

	current := s.load(token)
	if current == nil {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	working := current.Clone()
	changed, err := fn(working)
	if changed {
		s.sessions.Store(token, working.Clone())
	}
	if err != nil {
		return nil, err
	}
	return working, nil
}

// Reclaim expires elapsed ACTIVE sessions and drops payloads of terminal
// ones. The session itself stays behind as a payload-free record.
func (s *InMemoryStore) Reclaim(_ context.Context, now time.Time) (models.ReclaimResult, error) {
	var res models.ReclaimResult
	s.sessions.Range(func(key, _ any) bool {
		token := key.(string)
		s.locks.Lock(token)
		defer s.locks.Unlock(token)

		current := s.load(token)
		if current == nil {
			return true
		}
		working := current.Clone()
		changed := false
		if working.Elapsed(now) && working.Expire() {
			res.Expired++
			changed = true
		}
		if working.PurgePayload() {
			res.Purged++
			changed = true
		}
		if changed {
			s.sessions.Store(token, working)
		}
		return true
	})
	return res, nil
}

func (s *InMemoryStore) load(token string) *models.Session {
	v, ok := s.sessions.Load(token)
	if !ok {
		return nil
	}
	return v.(*models.Session)
}
