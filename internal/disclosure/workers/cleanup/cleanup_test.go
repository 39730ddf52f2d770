package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"medshare/internal/disclosure/metrics"
	"medshare/internal/disclosure/models"
	"medshare/internal/disclosure/store"
	"medshare/pkg/platform/clock"
)

type stubSessionStore struct {
	calls       int
	lastNow     time.Time
	toReturn    models.ReclaimResult
	errToReturn error
}

func (m *stubSessionStore) Reclaim(_ context.Context, now time.Time) (models.ReclaimResult, error) {
	m.calls++
	m.lastNow = now
	return m.toReturn, m.errToReturn
}

type SessionCleanupSuite struct {
	suite.Suite
	store   *stubSessionStore
	clock   *clock.Fake
	metrics *metrics.Metrics
	service *SessionCleanupService
}

func TestSessionCleanupSuite(t *testing.T) {
	suite.Run(t, new(SessionCleanupSuite))
}

func (s *SessionCleanupSuite) SetupTest() {
	s.store = &stubSessionStore{}
	s.clock = clock.NewFake(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, WithClock(s.clock), WithMetrics(s.metrics))
}

func (s *SessionCleanupSuite) TestRunPassesClockTime() {
	s.store.toReturn = models.ReclaimResult{Expired: 2, Purged: 3}

	res, err := s.service.RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, s.store.calls)
	s.True(s.store.lastNow.Equal(s.clock.Now()))
	s.Equal(2, res.Expired)
	s.Equal(3, res.Purged)

	s.Equal(1.0, promtest.ToFloat64(s.metrics.CleanupRunsTotal.WithLabelValues("success")))
	s.Equal(2.0, promtest.ToFloat64(s.metrics.CleanupExpiredTotal))
	s.Equal(3.0, promtest.ToFloat64(s.metrics.CleanupPurgedTotal))
}

func (s *SessionCleanupSuite) TestRunPropagatesStoreErrors() {
	s.store.errToReturn = context.DeadlineExceeded

	res, err := s.service.RunOnce(context.Background())
	s.ErrorIs(err, context.DeadlineExceeded)
	s.Nil(res)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.CleanupRunsTotal.WithLabelValues("error")))
}

func (s *SessionCleanupSuite) TestStartStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(s.store, WithInterval(time.Hour)).Start(ctx)
	s.ErrorIs(err, context.Canceled)
	s.Zero(s.store.calls)
}

func (s *SessionCleanupSuite) TestReclaimAgainstMemoryStore() {
	sessions := store.NewInMemory()
	session, err := models.NewSession("s-1", "patient-1", "tok-1", []string{"VITALS"},
		"emergency department intake", s.clock.Now(), 15*time.Minute, []byte("sealed"))
	s.Require().NoError(err)
	s.Require().NoError(sessions.Create(context.Background(), session))

	s.clock.Advance(16 * time.Minute)
	res, err := New(sessions, WithClock(s.clock)).RunOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, res.Expired)
	s.Equal(1, res.Purged)

	stored, err := sessions.FindByToken(context.Background(), "tok-1")
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, stored.Status)
}
