// Package postgres stores the baseline record in a single-row Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pagewatch/internal/state"
)

const baselineRowID = 1

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the baseline row.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Backend implements state.Backend on top of a pgx pool.
type Backend struct {
	pool  pool
	table string
}

// New connects to Postgres and ensures the baseline table exists.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("state.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	backend, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := backend.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return backend, nil
}

// NewWithPool constructs a backend from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Backend, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "pagewatch_state"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Backend{pool: p, table: table}, nil
}

// EnsureSchema creates the baseline table when missing.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id SMALLINT PRIMARY KEY,
	record JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, b.table)
	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

// ReadRecord implements state.Backend.
func (b *Backend) ReadRecord(ctx context.Context) ([]byte, error) {
	query := fmt.Sprintf(`SELECT record FROM %s WHERE id = $1`, b.table)
	var data []byte
	if err := b.pool.QueryRow(ctx, query, baselineRowID).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, state.ErrNotFound
		}
		return nil, fmt.Errorf("select state: %w", err)
	}
	return data, nil
}

// WriteRecord implements state.Backend. The upsert replaces the whole row in
// one statement.
func (b *Backend) WriteRecord(ctx context.Context, data []byte) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, record, saved_at) VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, saved_at = EXCLUDED.saved_at`, b.table)
	if _, err := b.pool.Exec(ctx, query, baselineRowID, data); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// Location implements state.Backend.
func (b *Backend) Location() string {
	return "postgres:" + b.table
}

// Close releases the underlying pool resources.
func (b *Backend) Close() {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.Close()
}
