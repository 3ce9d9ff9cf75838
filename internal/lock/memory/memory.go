// Package memory provides an in-process advisory TTL lock.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quarrylabs/quarry/internal/rag"
)

// Locker grants single-holder advisory locks keyed by string, each with
// an expiry. An expired lock is treated as free. State lives in process
// memory, so the guarantee covers a single node only.
type Locker struct {
	mu      sync.Mutex
	clock   rag.Clock
	holders map[string]time.Time
}

// New creates a Locker using the given clock for expiry decisions.
func New(clock rag.Clock) *Locker {
	return &Locker{
		clock:   clock,
		holders: make(map[string]time.Time),
	}
}

// Acquire attempts to take the lock for key with the given TTL. It
// returns true when the lock was free or had expired, false when another
// holder still owns it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if expiry, held := l.holders[key]; held && now.Before(expiry) {
		return false, nil
	}
	l.holders[key] = now.Add(ttl)
	return true, nil
}

// Release frees the lock for key. Releasing an unheld key is a no-op.
func (l *Locker) Release(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holders, key)
	return nil
}
