package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"medshare/internal/consent/models"
	"medshare/internal/sentinel"
	platformsync "medshare/pkg/platform/sync"
)

// Error Contract:
// - ErrNotFound when the record does not exist for the subject
// - ErrConflict when saving a record whose ID is already taken
// - ErrInvalidState when revoking a record that is already revoked

// InMemoryStore keeps consent records per subject. Mutations for one subject
// are serialized by a sharded lock; different subjects proceed in parallel.
type InMemoryStore struct {
	locks    *platformsync.ShardedMutex
	subjects sync.Map // subjectID -> *subjectRecords
	ids      sync.Map // consentID -> subjectID
}

type subjectRecords struct {
	records []*models.Record
}

// NewInMemory constructs an empty in-memory consent store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{locks: platformsync.NewShardedMutex()}
}

func (s *InMemoryStore) bucket(subjectID string) *subjectRecords {
	b, _ := s.subjects.LoadOrStore(subjectID, &subjectRecords{})
	return b.(*subjectRecords)
}

func (s *InMemoryStore) Save(_ context.Context, record *models.Record) error {
	if _, loaded := s.ids.LoadOrStore(record.ID, record.SubjectID); loaded {
		return sentinel.ErrConflict
	}
	s.locks.Lock(record.SubjectID)
	defer s.locks.Unlock(record.SubjectID)
	b := s.bucket(record.SubjectID)
	b.records = append(b.records, record.Clone())
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, subjectID, consentID string) (*models.Record, error) {
	s.locks.Lock(subjectID)
	defer s.locks.Unlock(subjectID)
	for _, r := range s.bucket(subjectID).records {
		if r.ID == consentID {
			return r.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListBySubject returns every record for the subject in grant order.
func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID string) ([]*models.Record, error) {
	s.locks.Lock(subjectID)
	defer s.locks.Unlock(subjectID)
	return cloneAll(s.bucket(subjectID).records, nil), nil
}

// FindQualifying returns records that are ACTIVE, unrevoked and unexpired at now.
func (s *InMemoryStore) FindQualifying(_ context.Context, subjectID string, now time.Time) ([]*models.Record, error) {
	s.locks.Lock(subjectID)
	defer s.locks.Unlock(subjectID)
	return cloneAll(s.bucket(subjectID).records, func(r *models.Record) bool {
		return r.Qualifies(now)
	}), nil
}

func (s *InMemoryStore) Revoke(_ context.Context, subjectID, consentID string, revokedAt time.Time) (*models.Record, error) {
	s.locks.Lock(subjectID)
	defer s.locks.Unlock(subjectID)
	b := s.bucket(subjectID)
	idx := slices.IndexFunc(b.records, func(r *models.Record) bool { return r.ID == consentID })
	if idx < 0 {
		return nil, sentinel.ErrNotFound
	}
	current := b.records[idx]
	if current.Status == models.StatusRevoked {
		return nil, sentinel.ErrInvalidState
	}
	updated := current.Clone()
	updated.Status = models.StatusRevoked
	updated.RevokedAt = &revokedAt
	b.records[idx] = updated
	return updated.Clone(), nil
}

func cloneAll(records []*models.Record, keep func(*models.Record) bool) []*models.Record {
	out := make([]*models.Record, 0, len(records))
	for _, r := range records {
		if keep != nil && !keep(r) {
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}
