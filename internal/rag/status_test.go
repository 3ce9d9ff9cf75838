package rag

import (
	"testing"
	"time"
)

// TestCanTransitionForwardPath walks the happy path through every state.
func TestCanTransitionForwardPath(t *testing.T) {
	t.Parallel()

	path := []JobStatus{
		JobStatusPending,
		JobStatusCrawling,
		JobStatusProcessing,
		JobStatusEmbedding,
		JobStatusIndexing,
		JobStatusCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be allowed", path[i], path[i+1])
		}
	}
}

// TestCanTransitionTerminalStates ensures nothing leaves a terminal state.
func TestCanTransitionTerminalStates(t *testing.T) {
	t.Parallel()

	all := []JobStatus{
		JobStatusPending, JobStatusCrawling, JobStatusProcessing,
		JobStatusEmbedding, JobStatusIndexing, JobStatusCompleted, JobStatusFailed,
	}
	for _, terminal := range []JobStatus{JobStatusCompleted, JobStatusFailed} {
		for _, to := range all {
			if CanTransition(terminal, to) {
				t.Fatalf("expected %s -> %s to be rejected", terminal, to)
			}
		}
	}
}

// TestCanTransitionFailureFromAnywhere verifies every non-terminal state
// may fail, and skipping forward states is rejected.
func TestCanTransitionFailureFromAnywhere(t *testing.T) {
	t.Parallel()

	for _, from := range []JobStatus{
		JobStatusPending, JobStatusCrawling, JobStatusProcessing,
		JobStatusEmbedding, JobStatusIndexing,
	} {
		if !CanTransition(from, JobStatusFailed) {
			t.Fatalf("expected %s -> failed to be allowed", from)
		}
	}

	if CanTransition(JobStatusPending, JobStatusEmbedding) {
		t.Fatal("expected pending -> embedding to be rejected")
	}
	if CanTransition(JobStatusCrawling, JobStatusCompleted) {
		t.Fatal("expected crawling -> completed to be rejected")
	}
}

// TestJobIsStuck checks the shared stuck predicate.
func TestJobIsStuck(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	threshold := 10 * time.Minute

	job := Job{Status: JobStatusCrawling, LastHeartbeat: now.Add(-threshold - time.Second)}
	if !job.IsStuck(now, threshold) {
		t.Fatal("expected old non-terminal job to be stuck")
	}

	fresh := Job{Status: JobStatusCrawling, LastHeartbeat: now.Add(-time.Minute)}
	if fresh.IsStuck(now, threshold) {
		t.Fatal("expected recently beating job not to be stuck")
	}

	done := Job{Status: JobStatusCompleted, LastHeartbeat: now.Add(-time.Hour)}
	if done.IsStuck(now, threshold) {
		t.Fatal("expected terminal job never to be stuck")
	}
}
