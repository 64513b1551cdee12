// Package postgres provides a Postgres-backed record store.
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

	"github.com/patronemptor/titlesvc/internal/titles"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Postgres error codes the store treats specially.
const (
	codeUniqueViolation = "23505"
	codeDuplicateTable  = "42P07"
	codeUndefinedTable  = "42P01"
)

// RecordStoreConfig controls the Postgres connection pool.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RecordStore persists processing records in Postgres.
type RecordStore struct {
	pool  dbPool
	table string
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool dbPool, table string) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "records"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the records table if it does not exist. Concurrent
// first-callers racing to create the table are tolerated.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	req_id      TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	recordstate TEXT NOT NULL,
	s3_url      TEXT,
	title       TEXT
)`, s.table)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeDuplicateTable {
			return nil
		}
		return fmt.Errorf("ensure schema: %w: %w", titles.ErrStoreUnavailable, err)
	}
	return nil
}

// Create inserts a new PENDING record. A duplicate id is rejected rather
// than overwritten.
func (s *RecordStore) Create(ctx context.Context, reqID, url string) error {
	if reqID == "" {
		return fmt.Errorf("req_id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (req_id, url, recordstate) VALUES ($1, $2, $3)`, s.table)

	if _, err := s.pool.Exec(ctx, query, reqID, url, string(titles.StatePending)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case codeUniqueViolation:
				return fmt.Errorf("create record %s: %w", reqID, titles.ErrAlreadyExists)
			case codeUndefinedTable:
				return fmt.Errorf("create record %s: %w: %w", reqID, titles.ErrStoreUnavailable, err)
			}
		}
		return fmt.Errorf("create record %s: %w: %w", reqID, titles.ErrWriteFailed, err)
	}
	return nil
}

// Get returns the record for reqID or titles.ErrNotFound.
func (s *RecordStore) Get(ctx context.Context, reqID string) (titles.Record, error) {
	query := fmt.Sprintf(`
SELECT url, recordstate, COALESCE(s3_url, ''), COALESCE(title, '')
FROM %s WHERE req_id = $1`, s.table)

	rec := titles.Record{ReqID: reqID}
	var state string
	err := s.pool.QueryRow(ctx, query, reqID).Scan(&rec.URL, &state, &rec.BlobURL, &rec.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return titles.Record{}, fmt.Errorf("get record %s: %w", reqID, titles.ErrNotFound)
		}
		return titles.Record{}, fmt.Errorf("get record %s: %w", reqID, err)
	}
	rec.State = titles.State(state)
	return rec, nil
}

// UpdateTerminal writes the terminal state and result fields as a single
// update, so the record is never observable half-written. Re-applying the
// same terminal values is a safe no-op at the data level.
func (s *RecordStore) UpdateTerminal(ctx context.Context, reqID string, state titles.State, title, blobURL string) error {
	query := fmt.Sprintf(`
UPDATE %s SET recordstate = $2, title = NULLIF($3, ''), s3_url = NULLIF($4, '')
WHERE req_id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query, reqID, string(state), title, blobURL)
	if err != nil {
		return fmt.Errorf("update record %s: %w: %w", reqID, titles.ErrWriteFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update record %s: %w", reqID, titles.ErrNotFound)
	}
	return nil
}
