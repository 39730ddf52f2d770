package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"medshare/internal/auth/models"
	"medshare/internal/sentinel"
)

// PostgresStore persists credentials in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, cred models.Credential) error {
	identity := models.NormalizeIdentity(cred.Identity)
	if identity == "" {
		return fmt.Errorf("credential identity is required")
	}
	query := `
		INSERT INTO credentials (identity, password_hash, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role
	`
	if _, err := s.db.ExecContext(ctx, query, identity, cred.PasswordHash, string(cred.Role)); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByIdentity(ctx context.Context, identity string) (*models.Credential, error) {
	query := `SELECT identity, password_hash, role FROM credentials WHERE identity = $1`
	var (
		cred models.Credential
		role string
	)
	err := s.db.QueryRowContext(ctx, query, models.NormalizeIdentity(identity)).
		Scan(&cred.Identity, &cred.PasswordHash, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	cred.Role = models.Role(role)
	return &cred, nil
}
