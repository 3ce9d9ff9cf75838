package rag

import (
	"context"
	"time"
)

// JobStore persists job records. Implementations must refresh the job's
// heartbeat as part of every update so that readers never observe a new
// status with a stale heartbeat.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJob(ctx context.Context, job Job) error
	ListJobs(ctx context.Context) ([]Job, error)
	ScanStuck(ctx context.Context, now time.Time, threshold time.Duration) ([]Job, error)
}

// Crawler fetches a bounded, scoped set of documents for a job.
type Crawler interface {
	Crawl(ctx context.Context, req CrawlRequest) ([]Document, error)
}

// Fetcher fetches a single URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a probe response warrants a headless
// re-fetch.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Segmenter cleans a document's markup and splits the text into chunks.
type Segmenter interface {
	Segment(doc *Document) []Chunk
}

// Embedder turns text into fixed-dimension vectors. EmbedBatch preserves
// order and always returns one vector per input text; items the provider
// could not embed come back as zero vectors of the provider's dimension.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex maintains the per-job nearest-neighbor indexes.
type VectorIndex interface {
	AddChunks(ctx context.Context, jobID string, chunks []Chunk) (int, error)
	Search(ctx context.Context, jobID string, query []float32, k int) ([]ScoredChunk, error)
}

// Generator produces a grounded answer from a question and ranked chunks.
type Generator interface {
	Generate(ctx context.Context, question string, chunks []ScoredChunk) (Answer, error)
}

// URLLocker is the advisory lock keyed by URL that prevents two jobs from
// crawling the same seed concurrently. Acquire returns false without error
// when the lock is already held.
type URLLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Queue provides enqueue/dequeue semantics for pipeline work.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Publisher pushes job lifecycle events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Archive writes raw page artifacts and returns a URI.
type Archive interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (injectable for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
