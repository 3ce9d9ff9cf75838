package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/rag"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Unix(1700000000, 0).UTC()

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, fixedClock{now: testNow})
	require.NoError(t, err)
	return store, mock
}

func jobColumns() []string {
	return []string{
		"job_id", "status", "config", "pages_fetched", "pages_indexed",
		"chunks_indexed", "errors", "started_at", "completed_at", "last_heartbeat",
	}
}

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	job := rag.Job{
		ID:        "job-1",
		Status:    rag.JobStatusPending,
		Config:    rag.JobConfig{SeedURLs: []string{"https://example.com"}, MaxPages: 5, MaxDepth: 1},
		StartedAt: testNow,
	}
	configJSON, errorsJSON, err := encodeJob(job)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(
			job.ID,
			"pending",
			configJSON,
			0, 0, 0,
			errorsJSON,
			job.StartedAt,
			job.CompletedAt,
			testNow,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobDuplicate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.CreateJob(context.Background(), rag.Job{ID: "job-1"})
	require.ErrorIs(t, err, rag.ErrJobExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE job_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, rag.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := pgxmock.NewRows(jobColumns()).AddRow(
		"job-1", "crawling",
		[]byte(`{"seed_urls":["https://example.com"],"domain_allowlist":["example.com"],"max_pages":5,"max_depth":1}`),
		3, 0, 0,
		[]byte(`["fetch failed: https://example.com/x"]`),
		testNow, (*time.Time)(nil), testNow,
	)
	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE job_id").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, rag.JobStatusCrawling, job.Status)
	require.Equal(t, 3, job.PagesFetched)
	require.Equal(t, []string{"https://example.com"}, job.Config.SeedURLs)
	require.Len(t, job.Errors, 1)
	require.Nil(t, job.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobRefreshesHeartbeat(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	job := rag.Job{
		ID:           "job-1",
		Status:       rag.JobStatusEmbedding,
		PagesFetched: 4,
	}
	configJSON, errorsJSON, err := encodeJob(job)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE jobs").
		WithArgs(
			job.ID,
			"embedding",
			configJSON,
			4, 0, 0,
			errorsJSON,
			job.CompletedAt,
			testNow,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateJob(context.Background(), rag.Job{ID: "missing"})
	require.ErrorIs(t, err, rag.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanStuckFiltersByCutoff(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	threshold := 10 * time.Minute
	rows := pgxmock.NewRows(jobColumns()).AddRow(
		"stale", "crawling",
		[]byte(`{"seed_urls":null,"domain_allowlist":null,"max_pages":0,"max_depth":0}`),
		0, 0, 0,
		[]byte(`[]`),
		testNow.Add(-time.Hour), (*time.Time)(nil), testNow.Add(-time.Hour),
	)
	mock.ExpectQuery("SELECT (.+) FROM jobs\\s+WHERE status NOT IN").
		WithArgs(testNow.Add(-threshold)).
		WillReturnRows(rows)

	stuck, err := store.ScanStuck(context.Background(), testNow, threshold)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	require.Equal(t, "stale", stuck[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

var errBoom = errors.New("boom")

func TestListJobsQueryError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM jobs ORDER BY started_at").
		WillReturnError(errBoom)

	_, err := store.ListJobs(context.Background())
	require.ErrorIs(t, err, errBoom)
	require.NoError(t, mock.ExpectationsWereMet())
}
