package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quarrylabs/quarry/internal/rag"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newJob(id string) rag.Job {
	return rag.Job{
		ID:     id,
		Status: rag.JobStatusPending,
		Config: rag.JobConfig{SeedURLs: []string{"https://example.com"}},
	}
}

// TestCreateAndGet verifies round-tripping and the duplicate guard.
func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := New(clk)
	ctx := context.Background()

	if err := s.CreateJob(ctx, newJob("j1")); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := s.CreateJob(ctx, newJob("j1")); !errors.Is(err, rag.ErrJobExists) {
		t.Fatalf("duplicate CreateJob() error = %v, want ErrJobExists", err)
	}

	got, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != rag.JobStatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if !got.LastHeartbeat.Equal(clk.Now()) {
		t.Errorf("LastHeartbeat = %v, want create time", got.LastHeartbeat)
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, rag.ErrJobNotFound) {
		t.Fatalf("GetJob(missing) error = %v, want ErrJobNotFound", err)
	}
}

// TestUpdateRefreshesHeartbeat verifies every update bumps the heartbeat.
func TestUpdateRefreshesHeartbeat(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := New(clk)
	ctx := context.Background()

	if err := s.CreateJob(ctx, newJob("j1")); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	clk.advance(30 * time.Second)
	job, _ := s.GetJob(ctx, "j1")
	job.Status = rag.JobStatusCrawling
	if err := s.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	got, _ := s.GetJob(ctx, "j1")
	if !got.LastHeartbeat.Equal(clk.Now()) {
		t.Errorf("LastHeartbeat = %v, want update time %v", got.LastHeartbeat, clk.Now())
	}

	if err := s.UpdateJob(ctx, newJob("missing")); !errors.Is(err, rag.ErrJobNotFound) {
		t.Fatalf("UpdateJob(missing) error = %v, want ErrJobNotFound", err)
	}
}

// TestScanStuck verifies the stuck predicate and terminal exclusion.
func TestScanStuck(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := New(clk)
	ctx := context.Background()

	for _, id := range []string{"fresh", "stale", "done"} {
		if err := s.CreateJob(ctx, newJob(id)); err != nil {
			t.Fatalf("CreateJob(%s) error = %v", id, err)
		}
	}

	// Mark one job terminal, then let time pass.
	done, _ := s.GetJob(ctx, "done")
	done.Status = rag.JobStatusCompleted
	if err := s.UpdateJob(ctx, done); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	clk.advance(10 * time.Minute)

	// Refresh one job's heartbeat.
	fresh, _ := s.GetJob(ctx, "fresh")
	fresh.Status = rag.JobStatusCrawling
	if err := s.UpdateJob(ctx, fresh); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}

	stuck, err := s.ScanStuck(ctx, clk.Now(), 5*time.Minute)
	if err != nil {
		t.Fatalf("ScanStuck() error = %v", err)
	}
	if len(stuck) != 1 || stuck[0].ID != "stale" {
		t.Fatalf("ScanStuck() = %+v, want only stale", stuck)
	}
}

// TestGetReturnsCopy verifies mutating a returned job does not corrupt
// the stored record.
func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1000, 0)}
	s := New(clk)
	ctx := context.Background()

	job := newJob("j1")
	job.Errors = []string{"first"}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	got, _ := s.GetJob(ctx, "j1")
	got.Errors[0] = "mutated"
	got.Config.SeedURLs[0] = "https://mutated.example"

	again, _ := s.GetJob(ctx, "j1")
	if again.Errors[0] != "first" {
		t.Errorf("stored errors mutated: %v", again.Errors)
	}
	if again.Config.SeedURLs[0] != "https://example.com" {
		t.Errorf("stored config mutated: %v", again.Config.SeedURLs)
	}
}
