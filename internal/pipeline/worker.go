// Package pipeline implements the ingestion pipeline execution loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/metrics"
	"github.com/quarrylabs/quarry/internal/rag"
)

// Config controls Worker behavior.
type Config struct {
	// SoftTimeLimit bounds useful work. When exceeded the job fails
	// gracefully with a distinct error and its partial index stays valid.
	SoftTimeLimit time.Duration
	// HardTimeLimit cancels the job context outright.
	HardTimeLimit time.Duration
	// LockTTL bounds how long a crashed worker can hold a seed URL lock.
	LockTTL time.Duration
	// EventTopic is where job completion events are published.
	Topic string
}

// Error texts recorded on the job. Most failures reach job.Errors
// wrapped with an "Ingestion failed:" prefix; the none-indexed and
// soft-time-limit texts are recorded as-is.
const (
	errTextAllSkipped    = "All specified URLs were skipped due to existing locks or no URLs to crawl."
	errTextNoDocuments   = "No documents were fetched."
	errTextEmbedFailed   = "Embedding generation failed."
	errTextNoneIndexed   = "No chunks were indexed despite documents being available for processing."
	errTextSoftTimeLimit = "Ingestion task exceeded soft time limit."
)

// errSoftTimeLimit is returned from the pipeline when the soft budget runs out.
var errSoftTimeLimit = errors.New(errTextSoftTimeLimit)

// verbatimError carries a message that is recorded on the job as-is,
// without the generic failure prefix and without resetting counters.
type verbatimError struct{ text string }

func (e verbatimError) Error() string { return e.text }

// Worker consumes queue items and executes the ingestion pipeline:
// crawl, segment, embed, index.
type Worker struct {
	queue     rag.Queue
	store     rag.JobStore
	crawler   rag.Crawler
	segmenter rag.Segmenter
	embedder  rag.Embedder
	index     rag.VectorIndex
	locker    rag.URLLocker
	publisher rag.Publisher
	clock     rag.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue rag.Queue,
	store rag.JobStore,
	crawler rag.Crawler,
	segmenter rag.Segmenter,
	embedder rag.Embedder,
	index rag.VectorIndex,
	locker rag.URLLocker,
	publisher rag.Publisher,
	clock rag.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.SoftTimeLimit <= 0 {
		cfg.SoftTimeLimit = 10 * time.Minute
	}
	if cfg.HardTimeLimit <= 0 {
		cfg.HardTimeLimit = 20 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &Worker{
		queue:     queue,
		store:     store,
		crawler:   crawler,
		segmenter: segmenter,
		embedder:  embedder,
		index:     index,
		locker:    locker,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, rag.ErrQueueClosed) {
				w.logger.Info("queue closed, worker stopping")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.ProcessJob(ctx, item)
	}
}

// ProcessJob executes one job end to end. The final status and a
// completion event are persisted best-effort even when the job context
// has already been canceled by the hard time limit.
func (w *Worker) ProcessJob(ctx context.Context, item rag.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	job, err := w.store.GetJob(ctx, item.JobID)
	if err != nil {
		w.logger.Error("job not found for queue item",
			zap.String("job_id", item.JobID),
			zap.Error(err))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.HardTimeLimit)
	defer cancel()

	runErr := w.run(jobCtx, &job, item.Config)
	if runErr != nil {
		job.Status = rag.JobStatusFailed
		job.Errors = append(job.Errors, w.failureText(runErr))
		var verbatim verbatimError
		if !errors.As(runErr, &verbatim) {
			job.PagesIndexed = 0
			job.TotalChunksIndexed = 0
		}
		w.logger.Error("ingestion job failed",
			zap.String("job_id", job.ID),
			zap.Error(runErr))
	}

	now := w.clock.Now()
	job.CompletedAt = &now
	w.finalize(&job)
	metrics.ObserveJob(string(job.Status))
}

// run drives the pipeline phases against the job context. It mutates
// job counters as phases complete; the caller persists the final state.
func (w *Worker) run(ctx context.Context, job *rag.Job, cfg rag.JobConfig) error {
	softDeadline := w.clock.Now().Add(w.cfg.SoftTimeLimit)

	// Stamp a heartbeat before any work starts.
	if err := w.store.UpdateJob(ctx, *job); err != nil {
		return fmt.Errorf("initial heartbeat: %w", err)
	}

	if err := w.setStatus(ctx, job, rag.JobStatusCrawling); err != nil {
		return err
	}

	// Seed locks are held only while the crawl attempt runs.
	crawlURLs := make([]string, 0, len(cfg.SeedURLs))
	heldLocks := make([]string, 0, len(cfg.SeedURLs))
	releaseLocks := func() {
		for _, key := range heldLocks {
			w.releaseLock(key)
		}
		heldLocks = nil
	}
	defer releaseLocks()
	for _, seed := range cfg.SeedURLs {
		key := "crawl_lock:" + seed
		held, err := w.locker.Acquire(ctx, key, w.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire lock for %s: %w", seed, err)
		}
		if !held {
			metrics.ObserveLockSkip()
			w.logger.Warn("seed URL locked by another job, skipping",
				zap.String("job_id", job.ID),
				zap.String("url", seed))
			continue
		}
		crawlURLs = append(crawlURLs, seed)
		heldLocks = append(heldLocks, key)
	}
	if len(crawlURLs) == 0 {
		return errors.New(errTextAllSkipped)
	}

	docs, err := w.crawler.Crawl(ctx, rag.CrawlRequest{
		JobID:           job.ID,
		SeedURLs:        crawlURLs,
		DomainAllowlist: cfg.DomainAllowlist,
		MaxPages:        cfg.MaxPages,
		MaxDepth:        cfg.MaxDepth,
	})
	releaseLocks()
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	if len(docs) == 0 {
		return errors.New(errTextNoDocuments)
	}
	job.PagesFetched = len(docs)
	if err := w.checkpoint(ctx, job, softDeadline); err != nil {
		return err
	}

	if err := w.setStatus(ctx, job, rag.JobStatusProcessing); err != nil {
		return err
	}
	var chunks []rag.Chunk
	for i := range docs {
		chunks = append(chunks, w.segmenter.Segment(&docs[i])...)
	}
	if err := w.checkpoint(ctx, job, softDeadline); err != nil {
		return err
	}

	if err := w.setStatus(ctx, job, rag.JobStatusEmbedding); err != nil {
		return err
	}
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.TextContent
	}
	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) == 0 || allZero(vectors) {
		return errors.New(errTextEmbedFailed)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	if err := w.checkpoint(ctx, job, softDeadline); err != nil {
		return err
	}

	if err := w.setStatus(ctx, job, rag.JobStatusIndexing); err != nil {
		return err
	}
	indexed, err := w.index.AddChunks(ctx, job.ID, chunks)
	if err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	if indexed == 0 && len(chunks) > 0 {
		return verbatimError{text: errTextNoneIndexed}
	}

	job.PagesIndexed = job.PagesFetched
	job.TotalChunksIndexed = indexed
	if err := w.setStatus(ctx, job, rag.JobStatusCompleted); err != nil {
		return err
	}
	w.logger.Info("ingestion job completed",
		zap.String("job_id", job.ID),
		zap.Int("pages_indexed", job.PagesIndexed),
		zap.Int("chunks_indexed", job.TotalChunksIndexed))
	return nil
}

// checkpoint persists progress and enforces the soft time budget
// between pipeline phases.
func (w *Worker) checkpoint(ctx context.Context, job *rag.Job, softDeadline time.Time) error {
	if w.clock.Now().After(softDeadline) {
		return errSoftTimeLimit
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("job canceled: %w", err)
	}
	if err := w.store.UpdateJob(ctx, *job); err != nil {
		return fmt.Errorf("persist progress: %w", err)
	}
	return nil
}

func (w *Worker) setStatus(ctx context.Context, job *rag.Job, to rag.JobStatus) error {
	if !rag.CanTransition(job.Status, to) {
		return fmt.Errorf("transition %s to %s: %w", job.Status, to, rag.ErrInvalidTransition)
	}
	job.Status = to
	if err := w.store.UpdateJob(ctx, *job); err != nil {
		return fmt.Errorf("persist status %s: %w", to, err)
	}
	return nil
}

func (w *Worker) failureText(err error) string {
	var verbatim verbatimError
	if errors.As(err, &verbatim) {
		return verbatim.text
	}
	if errors.Is(err, errSoftTimeLimit) {
		return errTextSoftTimeLimit
	}
	return fmt.Sprintf("Ingestion failed: %s", err)
}

// finalize persists the terminal job state and publishes the completion
// event. It runs on a fresh context because the job context may already
// be past its hard deadline.
func (w *Worker) finalize(job *rag.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.store.UpdateJob(ctx, *job); err != nil {
		w.logger.Error("final job status update failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	event := rag.JobEvent{
		JobID:         job.ID,
		Status:        job.Status,
		PagesFetched:  job.PagesFetched,
		ChunksIndexed: job.TotalChunksIndexed,
		FinishedAt:    w.clock.Now(),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		w.logger.Warn("job event publish failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

func (w *Worker) releaseLock(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.locker.Release(ctx, key); err != nil {
		w.logger.Warn("lock release failed", zap.String("key", key), zap.Error(err))
	}
}

func allZero(vectors [][]float32) bool {
	for _, vec := range vectors {
		for _, v := range vec {
			if v != 0 {
				return false
			}
		}
	}
	return true
}
