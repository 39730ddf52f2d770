package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"medshare/internal/audit"
)

// Store implements audit.Store using PostgreSQL. Rows are ordered by a
// serial sequence so List returns entries in append order.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an entry into the audit_entries table.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	categories, err := json.Marshal(nonNil(entry.Categories))
	if err != nil {
		return fmt.Errorf("encode audit categories: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			actor, resource, action, outcome, source_address, occurred_at,
			subject_id, categories, purpose, detail, request_id, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.Actor,
		string(entry.Resource),
		string(entry.Action),
		entry.Outcome,
		entry.SourceAddress,
		entry.Timestamp,
		entry.SubjectID,
		string(categories),
		entry.Purpose,
		entry.Detail,
		entry.RequestID,
		entry.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries matching filter ordered by insertion.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	query, args := buildListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func buildListQuery(filter audit.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Actor != "" {
		add("actor = $%d", filter.Actor)
	}
	if filter.SubjectID != "" {
		add("subject_id = $%d", filter.SubjectID)
	}
	if filter.Resource != "" {
		add("resource = $%d", string(filter.Resource))
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}
	if !filter.Since.IsZero() {
		add("occurred_at >= $%d", filter.Since)
	}
	if !filter.Until.IsZero() {
		add("occurred_at < $%d", filter.Until)
	}

	var b strings.Builder
	b.WriteString(`SELECT actor, resource, action, outcome, source_address, occurred_at,
		subject_id, categories, purpose, detail, request_id, device
		FROM audit_entries`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY seq ASC")
	if filter.Limit > 0 {
		args = append(args, clampLimit(filter.Limit))
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func clampLimit(limit int) int32 {
	if limit > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(limit) //nolint:gosec // bounded above
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			entry      audit.Entry
			resource   string
			action     string
			categories []byte
		)
		err := rows.Scan(
			&entry.Actor,
			&resource,
			&action,
			&entry.Outcome,
			&entry.SourceAddress,
			&entry.Timestamp,
			&entry.SubjectID,
			&categories,
			&entry.Purpose,
			&entry.Detail,
			&entry.RequestID,
			&entry.Device,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Resource = audit.Resource(resource)
		entry.Action = audit.Action(action)
		if len(categories) > 0 {
			if err := json.Unmarshal(categories, &entry.Categories); err != nil {
				return nil, fmt.Errorf("decode audit categories: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
