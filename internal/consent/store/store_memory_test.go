package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryStoreSuite struct {
	storeContractSuite
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
}
