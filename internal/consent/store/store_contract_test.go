package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medshare/internal/consent/models"
	"medshare/internal/sentinel"
	"medshare/pkg/testutil"
)

type consentStore interface {
	Save(ctx context.Context, record *models.Record) error
	FindByID(ctx context.Context, subjectID, consentID string) (*models.Record, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*models.Record, error)
	FindQualifying(ctx context.Context, subjectID string, now time.Time) ([]*models.Record, error)
	Revoke(ctx context.Context, subjectID, consentID string, revokedAt time.Time) (*models.Record, error)
}

// storeContractSuite runs the same behavioural checks against every
// consent store implementation.
type storeContractSuite struct {
	suite.Suite
	store consentStore
	now   time.Time
}

func (s *storeContractSuite) newRecord(subjectID string, categories []string, expiresIn time.Duration) *models.Record {
	var expiresAt *time.Time
	if expiresIn != 0 {
		t := s.now.Add(expiresIn)
		expiresAt = &t
	}
	rec, err := models.NewRecord(uuid.NewString(), subjectID, "", categories, "continuity of care", s.now.Add(-time.Hour), expiresAt)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(context.Background(), rec))
	return rec
}

func (s *storeContractSuite) TestSaveFindAndIsolation() {
	ctx := context.Background()
	subject := "patient-" + uuid.NewString()
	rec := s.newRecord(subject, []string{"VITALS", "ALLERGIES"}, 24*time.Hour)

	found, err := s.store.FindByID(ctx, subject, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.ID, found.ID)
	s.Equal([]string{"VITALS", "ALLERGIES"}, found.Categories)
	s.Equal(models.StatusActive, found.Status)

	found.Categories[0] = "MUTATED"
	again, err := s.store.FindByID(ctx, subject, rec.ID)
	s.Require().NoError(err)
	s.Equal("VITALS", again.Categories[0])

	_, err = s.store.FindByID(ctx, "someone-else", rec.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(ctx, subject, uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Save(ctx, rec), sentinel.ErrConflict)
}

func (s *storeContractSuite) TestFindQualifyingFiltersInactive() {
	ctx := context.Background()
	subject := "patient-" + uuid.NewString()
	active := s.newRecord(subject, []string{"VITALS"}, time.Hour)
	open := s.newRecord(subject, []string{"MEDICATIONS"}, 0)
	expired := s.newRecord(subject, []string{"LAB_RESULTS"}, -time.Minute)
	revoked := s.newRecord(subject, []string{"ALLERGIES"}, time.Hour)
	_, err := s.store.Revoke(ctx, subject, revoked.ID, s.now)
	s.Require().NoError(err)

	qualifying, err := s.store.FindQualifying(ctx, subject, s.now)
	s.Require().NoError(err)
	ids := make([]string, 0, len(qualifying))
	for _, r := range qualifying {
		ids = append(ids, r.ID)
	}
	s.ElementsMatch([]string{active.ID, open.ID}, ids)

	all, err := s.store.ListBySubject(ctx, subject)
	s.Require().NoError(err)
	s.Len(all, 4)
	s.NotContains(ids, expired.ID)
}

func (s *storeContractSuite) TestRevoke() {
	ctx := context.Background()
	subject := "patient-" + uuid.NewString()
	rec := s.newRecord(subject, []string{"VITALS"}, time.Hour)

	revoked, err := s.store.Revoke(ctx, subject, rec.ID, s.now)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, revoked.Status)
	s.Require().NotNil(revoked.RevokedAt)
	s.True(revoked.RevokedAt.Equal(s.now))

	_, err = s.store.Revoke(ctx, subject, rec.ID, s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	_, err = s.store.Revoke(ctx, subject, uuid.NewString(), s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Revoke(ctx, subject, "not-a-uuid", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestConcurrentRevokeHasSingleWinner() {
	subject := "patient-" + uuid.NewString()
	rec := s.newRecord(subject, []string{"VITALS"}, time.Hour)

	result := testutil.RunConcurrent(10, func(int) error {
		_, err := s.store.Revoke(context.Background(), subject, rec.ID, s.now)
		return err
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(9), result.Conflicts)
}
