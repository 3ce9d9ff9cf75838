// Package watchdog reaps jobs whose workers stopped heartbeating.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/metrics"
	"github.com/quarrylabs/quarry/internal/rag"
)

// Watchdog periodically scans the job store for jobs that are neither
// completed nor failed but have not heartbeated within the threshold,
// and marks them failed so their status is never reported as running
// forever after a worker crash.
type Watchdog struct {
	store     rag.JobStore
	clock     rag.Clock
	threshold time.Duration
	logger    *zap.Logger
	cron      *cron.Cron
}

func New(store rag.JobStore, clock rag.Clock, threshold time.Duration, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		store:     store,
		clock:     clock,
		threshold: threshold,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start schedules periodic reaping. The interval uses the cron @every
// syntax so the first run happens one interval after startup.
func (w *Watchdog) Start(interval time.Duration) error {
	_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := w.Reap(ctx); err != nil {
			w.logger.Error("watchdog sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule watchdog: %w", err)
	}
	w.cron.Start()
	w.logger.Info("watchdog started",
		zap.Duration("interval", interval),
		zap.Duration("threshold", w.threshold))
	return nil
}

// Stop halts the schedule. A sweep already in flight runs to completion.
func (w *Watchdog) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}

// Scan returns the jobs currently considered stuck without modifying them.
func (w *Watchdog) Scan(ctx context.Context) ([]rag.Job, error) {
	return w.store.ScanStuck(ctx, w.clock.Now(), w.threshold)
}

// Reap marks every stuck job failed and returns how many were reaped.
// A persist failure on one job does not stop the sweep; the job stays
// stuck and is retried on the next run.
func (w *Watchdog) Reap(ctx context.Context) (int, error) {
	stuck, err := w.store.ScanStuck(ctx, w.clock.Now(), w.threshold)
	if err != nil {
		return 0, fmt.Errorf("scan stuck jobs: %w", err)
	}

	reaped := 0
	for _, job := range stuck {
		now := w.clock.Now()
		job.Status = rag.JobStatusFailed
		job.Errors = append(job.Errors, fmt.Sprintf("Job stuck: no heartbeat for over %s", w.threshold))
		job.CompletedAt = &now

		if err := w.store.UpdateJob(ctx, job); err != nil {
			w.logger.Error("failed to reap stuck job",
				zap.String("job_id", job.ID),
				zap.Error(err))
			continue
		}

		metrics.ObserveJobReaped()
		w.logger.Warn("reaped stuck job",
			zap.String("job_id", job.ID),
			zap.Time("last_heartbeat", job.LastHeartbeat))
		reaped++
	}
	return reaped, nil
}
