//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medshare/internal/audit"
	"medshare/pkg/testutil/containers"
)

type StoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.postgres = containers.Postgres(s.T())
	s.store = New(s.postgres.DB)
}

func (s *StoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_entries"))
}

func (s *StoreSuite) TestAppendAndListInOrder() {
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := range 3 {
		s.Require().NoError(s.store.Append(ctx, audit.Entry{
			Actor:      "patient-1",
			Resource:   audit.ResourceDisclosure,
			Action:     audit.ActionDisclosureCreate,
			Outcome:    audit.OutcomeSuccess,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			SubjectID:  "patient-1",
			Categories: []string{"VITALS", "ALLERGIES"},
			Detail:     fmt.Sprint(i),
		}))
	}
	s.Require().NoError(s.store.Append(ctx, audit.Entry{
		Actor:     "doctor-7",
		Resource:  audit.ResourceDisclosure,
		Action:    audit.ActionDisclosureConsume,
		Outcome:   audit.Failure("session_expired"),
		Timestamp: base,
	}))

	entries, err := s.store.List(ctx, audit.Filter{Actor: "patient-1"})
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	for i, e := range entries {
		s.Equal(fmt.Sprint(i), e.Detail)
		s.Equal([]string{"VITALS", "ALLERGIES"}, e.Categories)
		s.True(e.Timestamp.Equal(base.Add(time.Duration(i) * time.Minute)))
	}

	limited, err := s.store.List(ctx, audit.Filter{Since: base.Add(time.Minute), Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(limited, 1)
	s.Equal("1", limited[0].Detail)

	failures, err := s.store.List(ctx, audit.Filter{Action: audit.ActionDisclosureConsume})
	s.Require().NoError(err)
	s.Require().Len(failures, 1)
	s.Equal("session_expired", audit.FailureReason(failures[0].Outcome))
}

func (s *StoreSuite) TestLedgerRejectsMutation() {
	ctx := context.Background()
	s.Require().NoError(s.store.Append(ctx, audit.Entry{Actor: "a", Resource: audit.ResourceLogin, Action: audit.ActionFailedAttempt, Outcome: audit.Failure("Attempt 1"), Timestamp: time.Now()}))

	_, err := s.postgres.DB.ExecContext(ctx, `UPDATE audit_entries SET outcome = 'SUCCESS'`)
	s.Error(err)
	_, err = s.postgres.DB.ExecContext(ctx, `DELETE FROM audit_entries`)
	s.Error(err)
}
