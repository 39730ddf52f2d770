package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stretchr/testify/suite"

	"medshare/internal/disclosure/models"
	"medshare/internal/sentinel"
	"medshare/pkg/testutil"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	FindByID(ctx context.Context, sessionID string) (*models.Session, error)
	Update(ctx context.Context, token string, fn UpdateFunc) (*models.Session, error)
	Reclaim(ctx context.Context, now time.Time) (models.ReclaimResult, error)
}

// storeContractSuite runs the same behavioural checks against every session
// store implementation.
type storeContractSuite struct {
	suite.Suite
	store sessionStore
	now   time.Time
}

func (s *storeContractSuite) newSession(id, token string) *models.Session {
	session, err := models.NewSession(id, "patient-1", token, []string{"VITALS", "ALLERGIES"},
		"emergency department intake", s.now, 15*time.Minute, []byte("sealed-bytes"))
	s.Require().NoError(err)
	return session
}

func (s *storeContractSuite) TestCreateAndFind() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newSession("s-1", "tok-1")))

	byToken, err := s.store.FindByToken(ctx, "tok-1")
	s.Require().NoError(err)
	s.Equal("s-1", byToken.ID)
	s.Equal(models.StatusActive, byToken.Status)
	s.Equal([]string{"VITALS", "ALLERGIES"}, byToken.Categories)
	s.Equal([]byte("sealed-bytes"), byToken.SealedPayload)
	s.True(byToken.ExpiresAt.Equal(s.now.Add(15 * time.Minute)))

	byID, err := s.store.FindByID(ctx, "s-1")
	s.Require().NoError(err)
	s.Equal("tok-1", byID.Token)
}

func (s *storeContractSuite) TestUnknownSession() {
	ctx := context.Background()
	_, err := s.store.FindByToken(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Update(ctx, "missing", func(*models.Session) (bool, error) { return true, nil })
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContractSuite) TestCreateConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newSession("s-1", "tok-1")))

	err := s.store.Create(ctx, s.newSession("s-2", "tok-1"))
	s.ErrorIs(err, sentinel.ErrConflict)
	_, err = s.store.FindByID(ctx, "s-2")
	s.ErrorIs(err, sentinel.ErrNotFound, "a rejected create leaves no id index behind")

	err = s.store.Create(ctx, s.newSession("s-1", "tok-2"))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *storeContractSuite) TestUpdatePersistsOnlyChanges() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newSession("s-1", "tok-1")))
	errStop := errors.New("stop")

	_, err := s.store.Update(ctx, "tok-1", func(session *models.Session) (bool, error) {
		session.Status = models.StatusCancelled
		return false, errStop
	})
	s.ErrorIs(err, errStop)
	current, err := s.store.FindByToken(ctx, "tok-1")
	s.Require().NoError(err)
	s.Equal(models.StatusActive, current.Status, "unreported mutation is discarded")

	_, err = s.store.Update(ctx, "tok-1", func(session *models.Session) (bool, error) {
		return session.Expire(), errStop
	})
	s.ErrorIs(err, errStop)
	current, err = s.store.FindByToken(ctx, "tok-1")
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, current.Status, "reported change is kept even when fn fails")
}

func (s *storeContractSuite) TestUpdateReturnsCopy() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newSession("s-1", "tok-1")))

	updated, err := s.store.Update(ctx, "tok-1", func(session *models.Session) (bool, error) {
		return true, session.MarkUsed(s.now.Add(time.Minute), "clinic-7")
	})
	s.Require().NoError(err)
	s.Equal(models.StatusUsed, updated.Status)
	updated.ConsumedBy = "tampered"

	current, err := s.store.FindByToken(ctx, "tok-1")
	s.Require().NoError(err)
	s.Equal("clinic-7", current.ConsumedBy)
	s.Require().NotNil(current.ConsumedAt)
}

func (s *storeContractSuite) TestConcurrentConsumeSucceedsOnce() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newSession("s-1", "tok-1")))

	result := testutil.RunConcurrent(20, func(i int) error {
		_, err := s.store.Update(ctx, "tok-1", func(session *models.Session) (bool, error) {
			if session.Status != models.StatusActive {
				return false, sentinel.ErrInvalidState
			}
			return true, session.MarkUsed(s.now, fmt.Sprintf("scanner-%d", i))
		})
		return err
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(19), result.Conflicts)
	s.Zero(result.Errors)
}

func (s *storeContractSuite) TestReclaimExpiresAndPurges() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newSession("s-active", "tok-active")))
	s.Require().NoError(s.store.Create(ctx, s.newSession("s-used", "tok-used")))
	_, err := s.store.Update(ctx, "tok-used", func(session *models.Session) (bool, error) {
		return true, session.MarkUsed(s.now, "clinic-7")
	})
	s.Require().NoError(err)

	res, err := s.store.Reclaim(ctx, s.now.Add(16*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, res.Expired)
	s.Equal(2, res.Purged)

	expired, err := s.store.FindByToken(ctx, "tok-active")
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, expired.Status)
	s.Nil(expired.SealedPayload)

	used, err := s.store.FindByToken(ctx, "tok-used")
	s.Require().NoError(err)
	s.Equal(models.StatusUsed, used.Status)
	s.Nil(used.SealedPayload)

	res, err = s.store.Reclaim(ctx, s.now.Add(16*time.Minute))
	s.Require().NoError(err)
	s.Zero(res.Expired)
	s.Zero(res.Purged)
}

func (s *storeContractSuite) TestReclaimLeavesLiveSessionsAlone() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newSession("s-1", "tok-1")))

	res, err := s.store.Reclaim(ctx, s.now.Add(5*time.Minute))
	s.Require().NoError(err)
	s.Equal(models.ReclaimResult{}, res)

	current, err := s.store.FindByToken(ctx, "tok-1")
	s.Require().NoError(err)
	s.Equal(models.StatusActive, current.Status)
	s.NotEmpty(current.SealedPayload)
}

func (s *storeContractSuite) TestReclaimNeverForgetsTerminalSessions() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newSession("s-used", "tok-used")))
	s.Require().NoError(s.store.Create(ctx, s.newSession("s-idle", "tok-idle")))
	_, err := s.store.Update(ctx, "tok-used", func(session *models.Session) (bool, error) {
		return true, session.MarkUsed(s.now.Add(time.Minute), "clinic-7")
	})
	s.Require().NoError(err)

	for _, at := range []time.Duration{16 * time.Minute, 25 * time.Hour, 90 * 24 * time.Hour} {
		_, err := s.store.Reclaim(ctx, s.now.Add(at))
		s.Require().NoError(err)
	}

	used, err := s.store.FindByToken(ctx, "tok-used")
	s.Require().NoError(err)
	s.Equal(models.StatusUsed, used.Status)
	s.Equal("clinic-7", used.ConsumedBy)
	s.Require().NotNil(used.ConsumedAt)
	s.Nil(used.SealedPayload)

	idle, err := s.store.FindByID(ctx, "s-idle")
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, idle.Status)
	s.Equal([]string{"VITALS", "ALLERGIES"}, idle.Categories)
}
