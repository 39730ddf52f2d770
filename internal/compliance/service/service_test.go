package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medshare/internal/audit"
	"medshare/internal/compliance/metrics"
	"medshare/internal/compliance/models"
	"medshare/internal/compliance/service/mocks"
	"medshare/internal/compliance/store"
	consentservice "medshare/internal/consent/service"
	dErrors "medshare/pkg/domain-errors"
	"medshare/pkg/platform/clock"
	"medshare/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	clock      *clock.Fake
	store      *store.InMemoryStore
	auditStore *audit.InMemoryStore
	metrics    *metrics.Metrics
	service    *Service
}

func (s *ServiceSuite) SetupTest() {
	s.clock = clock.NewFake(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	s.store = store.NewInMemory()
	s.auditStore = audit.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())

	var err error
	s.service, err = New(s.store, audit.NewPublisher(s.auditStore), consentservice.NewService(nil, nil),
		WithClock(s.clock),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) fail(identity string) {
	s.Require().NoError(s.service.RecordAttempt(context.Background(), identity, false, "203.0.113.7"))
}

func (s *ServiceSuite) locked(identity string) bool {
	locked, err := s.service.CheckLocked(context.Background(), identity)
	s.Require().NoError(err)
	return locked
}

func (s *ServiceSuite) TestLockoutAfterThreeFailures() {
	s.False(s.locked("alice"))
	s.fail("alice")
	s.False(s.locked("alice"))
	s.fail("alice")
	s.False(s.locked("alice"))
	s.fail("alice")

	s.True(s.locked("alice"), "fourth attempt is rejected regardless of credentials")

	s.clock.Advance(29 * time.Minute)
	s.True(s.locked("alice"))

	s.clock.Advance(time.Minute + time.Second)
	s.False(s.locked("alice"), "fifth attempt after the window is evaluated normally")

	state, err := s.service.Status(context.Background(), "alice")
	s.Require().NoError(err)
	s.Zero(state.ConsecutiveFailures)
	s.Nil(state.LockedUntil)
}

func (s *ServiceSuite) TestFailureAuditTrail() {
	s.fail("alice")
	s.fail("alice")
	s.fail("alice")

	entries, err := s.auditStore.List(context.Background(), audit.Filter{Actor: "alice"})
	s.Require().NoError(err)
	s.Require().Len(entries, 4)
	s.Equal(audit.Failure("Attempt 1"), entries[0].Outcome)
	s.Equal(audit.Failure("Attempt 2"), entries[1].Outcome)
	s.Equal(audit.ActionFailedAttempt, entries[2].Action)
	s.Equal(audit.Failure("Attempt 3"), entries[2].Outcome)
	s.Equal(audit.ActionAccountLocked, entries[3].Action)
	for _, e := range entries {
		s.Equal(audit.ResourceLogin, e.Resource)
		s.Equal("203.0.113.7", e.SourceAddress)
	}
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Lockouts))
	s.Equal(3.0, promtest.ToFloat64(s.metrics.FailedAttempts))
}

func (s *ServiceSuite) TestSuccessClearsState() {
	s.fail("alice")
	s.fail("alice")
	s.Require().NoError(s.service.RecordAttempt(context.Background(), "alice", true, "203.0.113.7"))
	s.fail("alice")
	s.fail("alice")
	s.False(s.locked("alice"), "the count restarts after a success")

	entries, err := s.auditStore.List(context.Background(), audit.Filter{Action: audit.ActionLoginSuccess})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.OutcomeSuccess, entries[0].Outcome)
}

func (s *ServiceSuite) TestIdentitiesAreIndependentAndNormalized() {
	s.fail("Alice@Example.com ")
	s.fail("alice@example.com")
	s.fail("ALICE@example.com")
	s.True(s.locked("alice@example.com"))
	s.False(s.locked("bob@example.com"))
}

func (s *ServiceSuite) TestConcurrentFailuresCannotSkipLock() {
	result := testutil.RunConcurrent(10, func(int) error {
		return s.service.RecordAttempt(context.Background(), "mallory", false, "198.51.100.2")
	})
	s.Equal(int32(10), result.Successes)
	s.True(s.locked("mallory"))

	entries, err := s.auditStore.List(context.Background(), audit.Filter{Action: audit.ActionAccountLocked})
	s.Require().NoError(err)
	s.Len(entries, 1, "exactly one attempt triggers the lock")
}

func (s *ServiceSuite) TestValidateDataAccess() {
	err := s.service.ValidateDataAccess(context.Background(), "dr-house", "patient-1", "medication reconciliation")
	s.Require().NoError(err)

	err = s.service.ValidateDataAccess(context.Background(), "dr-house", "patient-1", "curious")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidPurpose))

	entries, err := s.auditStore.List(context.Background(), audit.Filter{Actor: "dr-house"})
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(audit.ResourcePHI, entries[0].Resource)
	s.Equal("patient-1", entries[0].SubjectID)
	s.Equal("medication reconciliation", entries[0].Purpose)
	s.True(entries[0].Succeeded())
	s.Equal(audit.Failure(string(dErrors.CodeInvalidPurpose)), entries[1].Outcome)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.DataAccess.WithLabelValues("rejected")))
}

func (s *ServiceSuite) TestRecordAttemptRequiresIdentity() {
	err := s.service.RecordAttempt(context.Background(), "  ", false, "")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestNew(t *testing.T) {
	purposes := consentservice.NewService(nil, nil)

	_, err := New(nil, nil, purposes)
	require.Error(t, err)

	_, err = New(store.NewInMemory(), nil, nil)
	require.Error(t, err)

	_, err = New(store.NewInMemory(), nil, purposes, WithPolicy(models.Policy{Threshold: 0, LockoutDuration: time.Minute}))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestStoreFailuresAreInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	purposes := mocks.NewMockPurposeValidator(ctrl)
	svc, err := New(st, nil, purposes)
	require.NoError(t, err)

	st.EXPECT().ClearElapsed(gomock.Any(), "alice", gomock.Any()).Return(nil, errors.New("redis down"))
	_, err = svc.CheckLocked(context.Background(), "alice")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	st.EXPECT().RecordFailure(gomock.Any(), "alice", gomock.Any(), models.DefaultPolicy()).Return(nil, errors.New("redis down"))
	err = svc.RecordAttempt(context.Background(), "alice", false, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	st.EXPECT().Clear(gomock.Any(), "alice").Return(errors.New("redis down"))
	err = svc.RecordAttempt(context.Background(), "alice", true, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestAuditFailureDoesNotMaskLock(t *testing.T) {
	ctrl := gomock.NewController(t)
	auditor := mocks.NewMockAuditor(ctrl)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("ledger unavailable")).AnyTimes()

	svc, err := New(store.NewInMemory(), auditor, consentservice.NewService(nil, nil))
	require.NoError(t, err)
	for range 3 {
		require.NoError(t, svc.RecordAttempt(context.Background(), "alice", false, ""))
	}
	locked, err := svc.CheckLocked(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, locked)
}
