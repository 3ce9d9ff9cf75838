package rag

import "errors"

// Sentinel errors callers branch on across package boundaries.
var (
	// ErrJobNotFound is returned when a job ID has no persisted record.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose ID is taken.
	ErrJobExists = errors.New("job already exists")

	// ErrIndexNotFound is returned when a job has no resident or
	// persisted vector index.
	ErrIndexNotFound = errors.New("vector index not found for job")

	// ErrDimensionMismatch is returned when a vector's length differs
	// from the dimension fixed by a job's first indexed batch.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidTransition is returned when a status change would break
	// the job state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrQueueClosed is returned by Dequeue once a closed queue has been
	// drained. Workers treat it as a stop signal.
	ErrQueueClosed = errors.New("queue closed")
)
