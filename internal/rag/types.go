// Package rag defines core types shared across subsystems.
package rag

import (
	"time"
)

// JobStatus represents the lifecycle state of an ingestion job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusCrawling   JobStatus = "crawling"
	JobStatusProcessing JobStatus = "processing"
	JobStatusEmbedding  JobStatus = "embedding"
	JobStatusIndexing   JobStatus = "indexing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobConfig captures per-job crawl configuration requested by the client.
type JobConfig struct {
	SeedURLs        []string `json:"seed_urls"`
	DomainAllowlist []string `json:"domain_allowlist"`
	MaxPages        int      `json:"max_pages"`
	MaxDepth        int      `json:"max_depth"`
	UserNotes       string   `json:"user_notes,omitempty"`
}

// Job represents the persisted state of one ingestion request.
type Job struct {
	ID                 string     `json:"job_id"`
	Status             JobStatus  `json:"status"`
	Config             JobConfig  `json:"config"`
	PagesFetched       int        `json:"pages_fetched"`
	PagesIndexed       int        `json:"pages_indexed"`
	TotalChunksIndexed int        `json:"total_chunks_indexed"`
	Errors             []string   `json:"errors"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	LastHeartbeat      time.Time  `json:"last_heartbeat"`
}

// IsStuck reports whether the job is a candidate for watchdog reaping.
// The same predicate backs both the watchdog sweep and the stuck-jobs
// listing endpoint.
func (j Job) IsStuck(now time.Time, threshold time.Duration) bool {
	if j.Status.IsTerminal() {
		return false
	}
	return now.Sub(j.LastHeartbeat) > threshold
}

// Document is a single fetched web page.
type Document struct {
	URL         string         `json:"url"`
	HTMLContent string         `json:"html_content"`
	TextContent string         `json:"text_content"`
	FetchedAt   time.Time      `json:"fetch_timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Chunk is a bounded slice of a document's cleaned text, the unit of
// embedding and retrieval. StartIndex/EndIndex are character offsets into
// the owning document's cleaned text.
type Chunk struct {
	ChunkID     string         `json:"chunk_id"`
	DocumentURL string         `json:"document_url"`
	TextContent string         `json:"text_content"`
	StartIndex  int            `json:"start_index"`
	EndIndex    int            `json:"end_index"`
	Embedding   []float32      `json:"embedding,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ScoredChunk pairs a retrieved chunk with its squared L2 distance from
// the query vector. Smaller distance means more relevant.
type ScoredChunk struct {
	Distance float32 `json:"distance"`
	Chunk    Chunk   `json:"chunk"`
}

// Confidence is the three-level confidence attached to generated answers.
type Confidence string

// Confidence levels, ordered low < medium < high.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Citation points at a source that supports part of an answer.
type Citation struct {
	URL   string  `json:"url"`
	Quote string  `json:"quote,omitempty"`
	Score float32 `json:"score,omitempty"`
}

// Answer is the grounded response produced by a Generator.
type Answer struct {
	Text           string     `json:"answer"`
	Confidence     Confidence `json:"confidence"`
	Citations      []Citation `json:"citations"`
	GroundingNotes string     `json:"grounding_notes,omitempty"`
}

// QueueItem wraps a job ready to run through the pipeline.
type QueueItem struct {
	JobID     string
	Config    JobConfig
	Submitted int64
}

// JobEvent is published when a job reaches a terminal state.
type JobEvent struct {
	JobID         string    `json:"job_id"`
	Status        JobStatus `json:"status"`
	PagesFetched  int       `json:"pages_fetched"`
	ChunksIndexed int       `json:"chunks_indexed"`
	FinishedAt    time.Time `json:"finished_at"`
}

// CrawlRequest captures everything the crawler needs for one job.
type CrawlRequest struct {
	JobID           string
	SeedURLs        []string
	DomainAllowlist []string
	MaxPages        int
	MaxDepth        int
}

// FetchRequest addresses a single page fetch.
type FetchRequest struct {
	JobID string
	URL   string
	Depth int
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}
