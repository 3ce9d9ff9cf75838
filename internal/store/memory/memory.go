// Package memory provides an in-process job store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quarrylabs/quarry/internal/rag"
)

// Store keeps job records in a map. Every update refreshes the job's
// heartbeat before the record becomes visible to readers.
type Store struct {
	mu    sync.RWMutex
	clock rag.Clock
	jobs  map[string]rag.Job
}

// New creates a Store.
func New(clock rag.Clock) *Store {
	return &Store{
		clock: clock,
		jobs:  make(map[string]rag.Job),
	}
}

// CreateJob inserts a new job record, stamping its heartbeat.
func (s *Store) CreateJob(ctx context.Context, job rag.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", rag.ErrJobExists, job.ID)
	}
	job.LastHeartbeat = s.clock.Now()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob returns a copy of the stored record.
func (s *Store) GetJob(ctx context.Context, jobID string) (rag.Job, error) {
	if err := ctx.Err(); err != nil {
		return rag.Job{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return rag.Job{}, fmt.Errorf("%w: %s", rag.ErrJobNotFound, jobID)
	}
	return cloneJob(job), nil
}

// UpdateJob replaces the stored record, refreshing the heartbeat.
func (s *Store) UpdateJob(ctx context.Context, job rag.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: %s", rag.ErrJobNotFound, job.ID)
	}
	job.LastHeartbeat = s.clock.Now()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// ListJobs returns all records ordered by start time, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]rag.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]rag.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, cloneJob(job))
	}
	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].StartedAt.After(jobs[b].StartedAt)
	})
	return jobs, nil
}

// ScanStuck returns non-terminal jobs whose heartbeat is older than the
// threshold.
func (s *Store) ScanStuck(ctx context.Context, now time.Time, threshold time.Duration) ([]rag.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stuck []rag.Job
	for _, job := range s.jobs {
		if job.IsStuck(now, threshold) {
			stuck = append(stuck, cloneJob(job))
		}
	}
	sort.Slice(stuck, func(a, b int) bool {
		return stuck[a].LastHeartbeat.Before(stuck[b].LastHeartbeat)
	})
	return stuck, nil
}

func cloneJob(job rag.Job) rag.Job {
	out := job
	out.Errors = append([]string(nil), job.Errors...)
	out.Config.SeedURLs = append([]string(nil), job.Config.SeedURLs...)
	out.Config.DomainAllowlist = append([]string(nil), job.Config.DomainAllowlist...)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
