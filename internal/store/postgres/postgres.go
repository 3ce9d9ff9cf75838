// Package postgres provides a Postgres-backed job store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarrylabs/quarry/internal/rag"
)

// Schema expected by the store:
//
//	CREATE TABLE jobs (
//		job_id          TEXT PRIMARY KEY,
//		status          TEXT NOT NULL,
//		config          JSONB NOT NULL,
//		pages_fetched   INT NOT NULL DEFAULT 0,
//		pages_indexed   INT NOT NULL DEFAULT 0,
//		chunks_indexed  INT NOT NULL DEFAULT 0,
//		errors          JSONB NOT NULL DEFAULT '[]',
//		started_at      TIMESTAMPTZ NOT NULL,
//		completed_at    TIMESTAMPTZ,
//		last_heartbeat  TIMESTAMPTZ NOT NULL
//	);

type pgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store persists job records in Postgres. As with the in-memory store,
// every update stamps a fresh heartbeat.
type Store struct {
	pool  pgxIface
	clock rag.Clock
}

// New creates a Store backed by a new connection pool for the DSN.
func New(ctx context.Context, dsn string, clock rag.Clock) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, clock: clock}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxIface, clock rag.Clock) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const insertJobSQL = `
INSERT INTO jobs (job_id, status, config, pages_fetched, pages_indexed, chunks_indexed, errors, started_at, completed_at, last_heartbeat)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job rag.Job) error {
	configJSON, errorsJSON, err := encodeJob(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, insertJobSQL,
		job.ID,
		string(job.Status),
		configJSON,
		job.PagesFetched,
		job.PagesIndexed,
		job.TotalChunksIndexed,
		errorsJSON,
		job.StartedAt,
		job.CompletedAt,
		s.clock.Now(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", rag.ErrJobExists, job.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const selectJobSQL = `
SELECT job_id, status, config, pages_fetched, pages_indexed, chunks_indexed, errors, started_at, completed_at, last_heartbeat
FROM jobs WHERE job_id = $1`

// GetJob fetches one job row.
func (s *Store) GetJob(ctx context.Context, jobID string) (rag.Job, error) {
	row := s.pool.QueryRow(ctx, selectJobSQL, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rag.Job{}, fmt.Errorf("%w: %s", rag.ErrJobNotFound, jobID)
		}
		return rag.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

const updateJobSQL = `
UPDATE jobs
SET status = $2, config = $3, pages_fetched = $4, pages_indexed = $5, chunks_indexed = $6, errors = $7, completed_at = $8, last_heartbeat = $9
WHERE job_id = $1`

// UpdateJob replaces the mutable columns, stamping a fresh heartbeat.
func (s *Store) UpdateJob(ctx context.Context, job rag.Job) error {
	configJSON, errorsJSON, err := encodeJob(job)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, updateJobSQL,
		job.ID,
		string(job.Status),
		configJSON,
		job.PagesFetched,
		job.PagesIndexed,
		job.TotalChunksIndexed,
		errorsJSON,
		job.CompletedAt,
		s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", rag.ErrJobNotFound, job.ID)
	}
	return nil
}

const listJobsSQL = `
SELECT job_id, status, config, pages_fetched, pages_indexed, chunks_indexed, errors, started_at, completed_at, last_heartbeat
FROM jobs ORDER BY started_at DESC`

// ListJobs returns all job rows, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]rag.Job, error) {
	rows, err := s.pool.Query(ctx, listJobsSQL)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

const scanStuckSQL = `
SELECT job_id, status, config, pages_fetched, pages_indexed, chunks_indexed, errors, started_at, completed_at, last_heartbeat
FROM jobs
WHERE status NOT IN ('completed', 'failed') AND last_heartbeat < $1
ORDER BY last_heartbeat ASC`

// ScanStuck returns non-terminal jobs whose heartbeat predates the
// cutoff now-threshold.
func (s *Store) ScanStuck(ctx context.Context, now time.Time, threshold time.Duration) ([]rag.Job, error) {
	rows, err := s.pool.Query(ctx, scanStuckSQL, now.Add(-threshold))
	if err != nil {
		return nil, fmt.Errorf("scan stuck jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func encodeJob(job rag.Job) ([]byte, []byte, error) {
	configJSON, err := json.Marshal(job.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job config: %w", err)
	}
	jobErrors := job.Errors
	if jobErrors == nil {
		jobErrors = []string{}
	}
	errorsJSON, err := json.Marshal(jobErrors)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job errors: %w", err)
	}
	return configJSON, errorsJSON, nil
}

func scanJob(row pgx.Row) (rag.Job, error) {
	var (
		job        rag.Job
		status     string
		configJSON []byte
		errorsJSON []byte
	)
	err := row.Scan(
		&job.ID,
		&status,
		&configJSON,
		&job.PagesFetched,
		&job.PagesIndexed,
		&job.TotalChunksIndexed,
		&errorsJSON,
		&job.StartedAt,
		&job.CompletedAt,
		&job.LastHeartbeat,
	)
	if err != nil {
		return rag.Job{}, err
	}
	job.Status = rag.JobStatus(status)
	if err := json.Unmarshal(configJSON, &job.Config); err != nil {
		return rag.Job{}, fmt.Errorf("decode job config: %w", err)
	}
	if err := json.Unmarshal(errorsJSON, &job.Errors); err != nil {
		return rag.Job{}, fmt.Errorf("decode job errors: %w", err)
	}
	return job, nil
}

func collectJobs(rows pgx.Rows) ([]rag.Job, error) {
	var jobs []rag.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
