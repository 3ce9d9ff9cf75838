package memory

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
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

// TestAcquireExcludes verifies a held lock rejects a second acquirer.
func TestAcquireExcludes(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1000, 0)}
	l := New(clk)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "https://example.com", 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = l.Acquire(ctx, "https://example.com", 5*time.Minute)
	if err != nil || ok {
		t.Fatalf("second Acquire = (%v, %v), want (false, nil)", ok, err)
	}

	// A different key is independent.
	ok, _ = l.Acquire(ctx, "https://other.com", 5*time.Minute)
	if !ok {
		t.Fatal("unrelated key should be free")
	}
}

// TestAcquireAfterExpiry verifies an expired lock is treated as free.
func TestAcquireAfterExpiry(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1000, 0)}
	l := New(clk)
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, "k", time.Minute); !ok {
		t.Fatal("initial acquire failed")
	}

	clk.advance(59 * time.Second)
	if ok, _ := l.Acquire(ctx, "k", time.Minute); ok {
		t.Fatal("lock should still be held before TTL")
	}

	clk.advance(2 * time.Second)
	if ok, _ := l.Acquire(ctx, "k", time.Minute); !ok {
		t.Fatal("lock should be free after TTL")
	}
}

// TestRelease verifies release frees the key and unheld release is a no-op.
func TestRelease(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1000, 0)}
	l := New(clk)
	ctx := context.Background()

	if err := l.Release(ctx, "never-held"); err != nil {
		t.Fatalf("Release(unheld) = %v, want nil", err)
	}

	if ok, _ := l.Acquire(ctx, "k", time.Hour); !ok {
		t.Fatal("acquire failed")
	}
	if err := l.Release(ctx, "k"); err != nil {
		t.Fatalf("Release = %v", err)
	}
	if ok, _ := l.Acquire(ctx, "k", time.Hour); !ok {
		t.Fatal("lock should be free after release")
	}
}

// TestAcquireCancelledContext verifies context errors propagate.
func TestAcquireCancelledContext(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1000, 0)}
	l := New(clk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Acquire(ctx, "k", time.Minute); err == nil {
		t.Fatal("expected context error")
	}
}
