// Package postgres mirrors persisted records into a Postgres table. The CSV
// output stays authoritative; the mirror runs as a post-persist hook.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/paper-annotator/internal/paper"
)

// HookName identifies the mirror in logs and metrics.
const HookName = "postgres"

const defaultTable = "annotated_papers"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Mirror inserts one row per persisted record, ignoring documents it already has.
type Mirror struct {
	pool  execCloser
	table string
	runID string
	clock paper.Clock
}

// Open connects a pool and ensures the table exists.
func Open(ctx context.Context, cfg Config, runID string, clock paper.Clock) (*Mirror, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	m, err := NewWithPool(pool, cfg.Table, runID, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := m.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return m, nil
}

// NewWithPool builds a Mirror over an existing pool.
func NewWithPool(pool execCloser, table, runID string, clock paper.Clock) (*Mirror, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Mirror{pool: pool, table: table, runID: runID, clock: clock}, nil
}

// EnsureSchema creates the mirror table if it is missing.
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	document_id  TEXT PRIMARY KEY,
	paper_group  TEXT NOT NULL,
	title        TEXT NOT NULL,
	abstract     TEXT NOT NULL,
	category     TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	persisted_at TIMESTAMPTZ NOT NULL
)`, m.table)
	if _, err := m.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", m.table, err)
	}
	return nil
}

// Name implements paper.RecordHook.
func (m *Mirror) Name() string { return HookName }

// AfterPersist implements paper.RecordHook.
func (m *Mirror) AfterPersist(ctx context.Context, record paper.Record) error {
	if record.DocumentID == "" {
		return errors.New("record document id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	document_id,
	paper_group,
	title,
	abstract,
	category,
	run_id,
	persisted_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (document_id) DO NOTHING`, m.table)

	_, err := m.pool.Exec(ctx, query,
		record.DocumentID,
		record.Group,
		record.Title,
		record.Abstract,
		record.Label,
		m.runID,
		m.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("mirror %s: %w", record.DocumentID, err)
	}
	return nil
}

// Close releases the pool.
func (m *Mirror) Close() {
	if m == nil || m.pool == nil {
		return
	}
	m.pool.Close()
}
