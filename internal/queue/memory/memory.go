// Package memory provides a queue implementation for single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/quarrylabs/quarry/internal/rag"
)

// ErrClosed is returned by Dequeue once the queue has been closed and drained.
var ErrClosed = rag.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
// Enqueue blocks when the queue is full, which backpressures ingest
// requests instead of accepting unbounded work.
type Queue struct {
	ch      chan rag.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// New constructs a queue with the provided capacity.
func New(capacity int) *Queue {
	return &Queue{
		ch: make(chan rag.QueueItem, capacity),
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item rag.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (rag.QueueItem, error) {
	select {
	case <-ctx.Done():
		return rag.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return rag.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown. Items already queued
// can still be dequeued; subsequent enqueues panic, so callers must stop
// producers first.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
