package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"medshare/internal/consent/models"
	"medshare/internal/sentinel"
)

const pgUniqueViolation = "23505"

const consentColumns = `id, subject_id, grantee_id, categories, status, purpose, granted_at, expires_at, revoked_at`

// PostgresStore persists consent records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("consent record is required")
	}
	id, err := uuid.Parse(record.ID)
	if err != nil {
		return fmt.Errorf("consent id: %w", err)
	}
	categories, err := json.Marshal(record.Categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}

	query := `
		INSERT INTO consents (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		id,
		record.SubjectID,
		record.GranteeID,
		string(categories),
		string(record.Status),
		record.Purpose,
		record.GrantedAt,
		record.ExpiresAt,
		record.RevokedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, subjectID, consentID string) (*models.Record, error) {
	id, err := uuid.Parse(consentID)
	if err != nil {
		return nil, sentinel.ErrNotFound
	}
	query := `SELECT ` + consentColumns + ` FROM consents WHERE id = $1 AND subject_id = $2`
	record, err := scanConsent(s.db.QueryRowContext(ctx, query, id, subjectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID string) ([]*models.Record, error) {
	query := `SELECT ` + consentColumns + ` FROM consents WHERE subject_id = $1 ORDER BY granted_at, id`
	return s.list(ctx, query, subjectID)
}

// FindQualifying returns records that are ACTIVE, unrevoked and unexpired at now.
func (s *PostgresStore) FindQualifying(ctx context.Context, subjectID string, now time.Time) ([]*models.Record, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE subject_id = $1
		  AND status = 'ACTIVE'
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY granted_at, id
	`
	return s.list(ctx, query, subjectID, now)
}

// Revoke marks the record REVOKED in a single conditional update so two
// concurrent revocations cannot both succeed.
func (s *PostgresStore) Revoke(ctx context.Context, subjectID, consentID string, revokedAt time.Time) (*models.Record, error) {
	id, err := uuid.Parse(consentID)
	if err != nil {
		return nil, sentinel.ErrNotFound
	}
	query := `
		UPDATE consents
		SET status = 'REVOKED', revoked_at = $3
		WHERE id = $1 AND subject_id = $2 AND status <> 'REVOKED'
		RETURNING ` + consentColumns
	record, err := scanConsent(s.db.QueryRowContext(ctx, query, id, subjectID, revokedAt))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revoke consent: %w", err)
	}
	if _, findErr := s.FindByID(ctx, subjectID, consentID); findErr != nil {
		return nil, findErr
	}
	return nil, sentinel.ErrInvalidState
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	records := make([]*models.Record, 0)
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return records, nil
}

type consentRow interface {
	Scan(dest ...any) error
}

func scanConsent(row consentRow) (*models.Record, error) {
	var (
		record     models.Record
		id         uuid.UUID
		categories []byte
		status     string
		expiresAt  sql.NullTime
		revokedAt  sql.NullTime
	)
	err := row.Scan(&id, &record.SubjectID, &record.GranteeID, &categories, &status,
		&record.Purpose, &record.GrantedAt, &expiresAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(categories, &record.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	record.ID = id.String()
	record.Status = models.Status(status)
	if expiresAt.Valid {
		t := expiresAt.Time
		record.ExpiresAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		record.RevokedAt = &t
	}
	return &record, nil
}
