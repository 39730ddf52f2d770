//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"medshare/internal/auth/models"
	"medshare/internal/sentinel"
	"medshare/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
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
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "credentials"))
}

func (s *PostgresStoreSuite) TestUpsertAndFind() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, models.Credential{Identity: "Provider@Clinic.example", PasswordHash: "h1", Role: models.RoleProvider}))
	s.Require().NoError(s.store.Save(ctx, models.Credential{Identity: "provider@clinic.example", PasswordHash: "h2", Role: models.RoleProvider}))

	got, err := s.store.FindByIdentity(ctx, "PROVIDER@clinic.example")
	s.Require().NoError(err)
	s.Equal("h2", got.PasswordHash)
	s.Equal(models.RoleProvider, got.Role)
}

func (s *PostgresStoreSuite) TestNotFound() {
	_, err := s.store.FindByIdentity(context.Background(), "ghost@clinic.example")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
