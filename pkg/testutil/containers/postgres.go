//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"medshare/internal/platform/config"
	"medshare/internal/platform/database"
	"medshare/migrations"
)

// serviceTables lists every table the migrations create.
var serviceTables = []string{"audit_entries", "consents", "credentials"}

type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

// startPostgres opens the container through the same pool constructor the
// server uses, then applies the embedded migrations.
func startPostgres() (*PostgresContainer, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("medshare_test"),
		postgres.WithUsername("medshare"),
		postgres.WithPassword("medshare_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connection string: %w", err)
	}

	pool, err := database.New(ctx, config.Database{
		URL:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnectTimeout:  10 * time.Second,
	})
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := migrations.Apply(ctx, pool.DB()); err != nil {
		_ = pool.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn, DB: pool.DB()}, nil
}

// TruncateTables clears the named tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	return p.TruncateTables(ctx, serviceTables...)
}
