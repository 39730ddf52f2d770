package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"medshare/internal/platform/config"
)

const (
	applicationName    = "medshare"
	defaultPingTimeout = 5 * time.Second
)

// Pool is the Postgres handle shared by the consent, audit and credential
// stores.
type Pool struct {
	db *sql.DB
}

// New opens a pgx-backed pool and pings it. An empty URL means Postgres is
// not configured and yields a nil pool.
func New(ctx context.Context, cfg config.Database) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	connCfg, err := ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	timeout := connCfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{db: db}, nil
}

// ParseConfig turns the configured URL into a pgx connection config, tagging
// sessions with the application name unless the URL already sets one.
func ParseConfig(cfg config.Database) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = make(map[string]string)
	}
	if connCfg.RuntimeParams["application_name"] == "" {
		connCfg.RuntimeParams["application_name"] = applicationName
	}
	return connCfg, nil
}

func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health pings the database.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return errors.New("database not configured")
	}
	return p.db.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
