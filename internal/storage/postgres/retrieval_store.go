// Package postgres writes the retrieval ledger to Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pagecrawl/internal/ledger"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RetrievalStoreConfig controls the Postgres connection pool used for ledger rows.
type RetrievalStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RetrievalStore inserts one row per retrieval.
type RetrievalStore struct {
	pool  execCloser
	table string
	query string
}

// NewRetrievalStore connects to Postgres using cfg.
func NewRetrievalStore(ctx context.Context, cfg RetrievalStoreConfig) (*RetrievalStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRetrievalStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRetrievalStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRetrievalStoreWithPool(pool execCloser, table string) (*RetrievalStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "retrievals"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	session_id,
	site,
	kind,
	url,
	final_url,
	status_code,
	bytes,
	location,
	retrieved_at,
	duration_ms
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, table)
	return &RetrievalStore{pool: pool, table: table, query: query}, nil
}

// EnsureSchema creates the retrieval table when it does not exist yet.
func (s *RetrievalStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	site         TEXT NOT NULL,
	kind         TEXT NOT NULL,
	url          TEXT NOT NULL,
	final_url    TEXT,
	status_code  INTEGER,
	bytes        BIGINT,
	location     TEXT,
	retrieved_at TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RetrievalStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreRetrieval inserts a ledger row.
func (s *RetrievalStore) StoreRetrieval(ctx context.Context, record ledger.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("retrieval store is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	args := []any{
		record.ID,
		record.SessionID,
		record.Site,
		string(record.Kind),
		record.URL,
		record.FinalURL,
		record.StatusCode,
		record.Bytes,
		record.Location,
		record.RetrievedAt,
		record.Duration.Milliseconds(),
	}
	if _, err := s.pool.Exec(ctx, s.query, args...); err != nil {
		return fmt.Errorf("insert retrieval: %w", err)
	}
	return nil
}
