package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS e2e_runs (
    id          TEXT PRIMARY KEY,
    environment TEXT NOT NULL,
    author      TEXT NOT NULL DEFAULT '',
    browser     TEXT NOT NULL,
    report_dir  TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ NOT NULL,
    passed      INT NOT NULL,
    failed      INT NOT NULL,
    skipped     INT NOT NULL
);
CREATE TABLE IF NOT EXISTS e2e_entries (
    id         TEXT PRIMARY KEY,
    run_id     TEXT NOT NULL REFERENCES e2e_runs(id) ON DELETE CASCADE,
    name       TEXT NOT NULL,
    worker     INT NOT NULL,
    attempt    INT NOT NULL,
    verdict    TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS e2e_steps (
    entry_id        TEXT NOT NULL REFERENCES e2e_entries(id) ON DELETE CASCADE,
    seq             INT NOT NULL,
    at              TIMESTAMPTZ NOT NULL,
    status          TEXT NOT NULL,
    message         TEXT NOT NULL,
    screenshot_path TEXT NOT NULL DEFAULT '',
    inline_image    BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (entry_id, seq)
);`

const insertRunSQL = `
        INSERT INTO e2e_runs (id, environment, author, browser, report_dir, started_at, ended_at, passed, failed, skipped)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
    `

const recentRunsSQL = `
        SELECT id, environment, browser, started_at, ended_at, passed, failed, skipped
        FROM e2e_runs
        ORDER BY started_at DESC
        LIMIT $1;
    `

var (
	entryColumns = []string{"id", "run_id", "name", "worker", "attempt", "verdict", "started_at", "ended_at"}
	stepColumns  = []string{"entry_id", "seq", "at", "status", "message", "screenshot_path", "inline_image"}
)

// Store keeps run history in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// Open connects to url and returns a ready Store. Close releases the pool.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureSchema creates the history tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun inserts a run with its entries and steps in one transaction.
func (s *Store) SaveRun(ctx context.Context, r *schemas.RunReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	passed, failed, skipped := r.Counts()
	if _, err := tx.Exec(ctx, insertRunSQL,
		r.RunID, r.Environment, r.Author, r.Browser, r.Dir,
		r.StartedAt.UTC(), r.EndedAt.UTC(), passed, failed, skipped,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if err := s.copyEntries(ctx, tx, r); err != nil {
		return err
	}
	if err := s.copySteps(ctx, tx, r); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run persisted.", zap.String("run_id", r.RunID), zap.Int("entries", len(r.Entries)))
	return nil
}

func (s *Store) copyEntries(ctx context.Context, tx pgx.Tx, r *schemas.RunReport) error {
	if len(r.Entries) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(r.Entries))
	for i, e := range r.Entries {
		rows[i] = []interface{}{
			e.ID, r.RunID, e.Name, e.Worker, e.Attempt, string(e.Verdict),
			e.StartedAt.UTC(), e.EndedAt.UTC(),
		}
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"e2e_entries"}, entryColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy entries: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("mismatch in copied entries count: expected %d, got %d", len(rows), n)
	}
	return nil
}

func (s *Store) copySteps(ctx context.Context, tx pgx.Tx, r *schemas.RunReport) error {
	var rows [][]interface{}
	for _, e := range r.Entries {
		for i, st := range e.Steps {
			path, inline := "", false
			if st.Screenshot != nil {
				path, inline = st.Screenshot.Path, st.Screenshot.Base64 != ""
			}
			rows = append(rows, []interface{}{e.ID, i, st.Time.UTC(), string(st.Status), st.Message, path, inline})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"e2e_steps"}, stepColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy steps: %w", err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("mismatch in copied steps count: expected %d, got %d", len(rows), n)
	}
	return nil
}

// RunSummary is one row of run history.
type RunSummary struct {
	ID          string
	Environment string
	Browser     string
	StartedAt   time.Time
	EndedAt     time.Time
	Passed      int
	Failed      int
	Skipped     int
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, recentRunsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Environment, &r.Browser, &r.StartedAt, &r.EndedAt, &r.Passed, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// ReportWriter persists flushed runs. It satisfies reporting.Writer.
type ReportWriter struct {
	Store *Store
}

func (w *ReportWriter) Name() string { return "postgres" }

func (w *ReportWriter) Write(ctx context.Context, r *schemas.RunReport) error {
	return w.Store.SaveRun(ctx, r)
}
