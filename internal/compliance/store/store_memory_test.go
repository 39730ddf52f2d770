package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medshare/internal/compliance/models"
)

type InMemoryStoreSuite struct {
	storeContractSuite
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.now = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	s.policy = models.DefaultPolicy()
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) TestReturnedStateIsACopy() {
	res, err := s.store.RecordFailure(s.T().Context(), "alice", s.now, s.policy)
	s.Require().NoError(err)
	res.State.ConsecutiveFailures = 99

	state, err := s.store.Get(s.T().Context(), "alice")
	s.Require().NoError(err)
	s.Equal(1, state.ConsecutiveFailures)
}
