package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type manualClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *manualClock, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run error: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := &manualClock{at: time.Now().Truncate(time.Minute)}

	limiter := New(rdb, Config{
		Enabled:           true,
		RequestsPerMinute: perMinute,
		Now:               clock.Now,
	})

	cleanup := func() {
		_ = rdb.Close()
		mr.Close()
	}
	return limiter, clock, cleanup
}

func TestAllowRejectsAboveBudget(t *testing.T) {
	limiter, _, cleanup := newTestLimiter(t, 5)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := limiter.Allow(ctx, "203.0.113.9"); err != nil {
			t.Fatalf("request %d unexpectedly rejected: %v", i+1, err)
		}
	}

	if err := limiter.Allow(ctx, "203.0.113.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on request 6, got %v", err)
	}
}

func TestAllowWindowReset(t *testing.T) {
	limiter, clock, cleanup := newTestLimiter(t, 2)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.Allow(ctx, "client-a"); err != nil {
			t.Fatalf("request %d unexpectedly rejected: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "client-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// The next minute bucket starts a fresh count.
	clock.Advance(time.Minute)
	if err := limiter.Allow(ctx, "client-a"); err != nil {
		t.Fatalf("expected fresh window to admit, got %v", err)
	}
}

func TestAllowPerClientIsolation(t *testing.T) {
	limiter, _, cleanup := newTestLimiter(t, 1)
	defer cleanup()
	ctx := context.Background()

	if err := limiter.Allow(ctx, "client-a"); err != nil {
		t.Fatalf("client-a first request rejected: %v", err)
	}
	if err := limiter.Allow(ctx, "client-a"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected client-a to be limited, got %v", err)
	}
	if err := limiter.Allow(ctx, "client-b"); err != nil {
		t.Fatalf("client-b must not share client-a's budget: %v", err)
	}
}

func TestAllowDisabledPassesEverything(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run error: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := New(rdb, Config{Enabled: false, RequestsPerMinute: 1})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := limiter.Allow(ctx, "client-a"); err != nil {
			t.Fatalf("disabled limiter rejected request %d: %v", i+1, err)
		}
	}
	if got := len(mr.Keys()); got != 0 {
		t.Fatalf("disabled limiter must not touch Redis, found %d keys", got)
	}
}

func TestAllowEmptyKeyPasses(t *testing.T) {
	limiter, _, cleanup := newTestLimiter(t, 1)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, ""); err != nil {
			t.Fatalf("empty client key must bypass limiting, got %v", err)
		}
	}
}

func TestAllowBackendFailure(t *testing.T) {
	// Point the limiter at a closed server to force a backend error.
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run error: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	limiter := New(rdb, Config{Enabled: true, RequestsPerMinute: 5, Now: time.Now})
	if err := limiter.Allow(context.Background(), "client-a"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
