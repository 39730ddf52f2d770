//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medshare/internal/consent/models"
	"medshare/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	storeContractSuite
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.Postgres(s.T())
	s.store = NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "consents"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) TestRevocationSurvivesNewStoreInstance() {
	ctx := context.Background()
	rec := s.newRecord("patient-durable", []string{"IMAGING", "LAB_RESULTS"}, 0)
	revokedAt := s.now.Add(5 * time.Minute)
	_, err := s.store.Revoke(ctx, rec.SubjectID, rec.ID, revokedAt)
	s.Require().NoError(err)

	reopened := NewPostgres(s.postgres.DB)
	found, err := reopened.FindByID(ctx, rec.SubjectID, rec.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, found.Status)
	s.Require().NotNil(found.RevokedAt)
	s.True(found.RevokedAt.Equal(revokedAt))
	s.Nil(found.ExpiresAt)
	s.ElementsMatch([]string{"IMAGING", "LAB_RESULTS"}, found.Categories)

	qualifying, err := reopened.FindQualifying(ctx, rec.SubjectID, s.now)
	s.Require().NoError(err)
	s.Empty(qualifying)
}
