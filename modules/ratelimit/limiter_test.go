package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/example/multitenant-api/domain/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

// testClock lets tests move the limiter's notion of now deterministically.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestLimiter() (*SlidingWindowLimiter, *MemoryCounterStore, *testClock) {
	store := NewMemoryCounterStore()
	limiter := NewSlidingWindowLimiter(store, testLogger())
	clock := &testClock{now: time.Now()}
	limiter.now = clock.Now
	return limiter, store, clock
}

func TestSlidingWindowLimiter_Check_AdmitsUpToLimit(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	ctx := context.Background()
	cfg := ratelimit.Config{Window: time.Minute, MaxRequests: 5}

	wantRemaining := []int{4, 3, 2, 1, 0}
	for i := 0; i < 5; i++ {
		result := limiter.Check(ctx, "rl:test:ip:1.2.3.4", cfg)
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if result.Count != i+1 {
			t.Errorf("request %d: count = %d, want %d", i+1, result.Count, i+1)
		}
		if result.Remaining != wantRemaining[i] {
			t.Errorf("request %d: remaining = %d, want %d", i+1, result.Remaining, wantRemaining[i])
		}
	}

	result := limiter.Check(ctx, "rl:test:ip:1.2.3.4", cfg)
	if result.Allowed {
		t.Error("6th request should be rejected")
	}
	if result.Remaining != 0 {
		t.Errorf("rejected request: remaining = %d, want 0", result.Remaining)
	}
	if result.RetryAfter <= 0 {
		t.Errorf("rejected request: retry after = %v, want > 0", result.RetryAfter)
	}
}

func TestSlidingWindowLimiter_Check_RejectedRequestsStillCount(t *testing.T) {
	limiter, store, _ := newTestLimiter()
	ctx := context.Background()
	cfg := ratelimit.Config{Window: time.Minute, MaxRequests: 2}

	for i := 0; i < 4; i++ {
		limiter.Check(ctx, "rl:test:key", cfg)
	}

	card, err := store.Cardinality(ctx, "rl:test:key")
	if err != nil {
		t.Fatalf("Cardinality() error = %v", err)
	}
	if card != 4 {
		t.Errorf("cardinality = %d, want 4 (rejected requests recorded too)", card)
	}
}

func TestSlidingWindowLimiter_Check_WindowSlides(t *testing.T) {
	limiter, _, clock := newTestLimiter()
	ctx := context.Background()
	cfg := ratelimit.Config{Window: time.Minute, MaxRequests: 2}

	limiter.Check(ctx, "rl:test:key", cfg)
	limiter.Check(ctx, "rl:test:key", cfg)

	if result := limiter.Check(ctx, "rl:test:key", cfg); result.Allowed {
		t.Fatal("3rd request inside the window should be rejected")
	}

	// After a full window with no traffic, the key starts fresh.
	clock.Advance(time.Minute + time.Second)

	result := limiter.Check(ctx, "rl:test:key", cfg)
	if !result.Allowed {
		t.Error("request after window drain should be allowed")
	}
	if result.Count != 1 {
		t.Errorf("count after window drain = %d, want 1", result.Count)
	}
}

func TestSlidingWindowLimiter_Check_RetryAfterApproximatesOldestExit(t *testing.T) {
	limiter, _, clock := newTestLimiter()
	ctx := context.Background()
	cfg := ratelimit.Config{Window: time.Minute, MaxRequests: 2}

	limiter.Check(ctx, "rl:test:key", cfg)
	limiter.Check(ctx, "rl:test:key", cfg)

	clock.Advance(10 * time.Second)

	result := limiter.Check(ctx, "rl:test:key", cfg)
	if result.Allowed {
		t.Fatal("request should be rejected")
	}
	// Oldest entry exits the window 50s from now.
	if result.RetryAfter != 50*time.Second {
		t.Errorf("retry after = %v, want 50s", result.RetryAfter)
	}
}

func TestSlidingWindowLimiter_Check_ResetAtIsRollingHorizon(t *testing.T) {
	limiter, _, clock := newTestLimiter()
	ctx := context.Background()
	cfg := ratelimit.Config{Window: time.Minute, MaxRequests: 5}

	result := limiter.Check(ctx, "rl:test:key", cfg)
	if want := clock.Now().Add(time.Minute); !result.ResetAt.Equal(want) {
		t.Errorf("reset at = %v, want %v", result.ResetAt, want)
	}
}

func TestSlidingWindowLimiter_Check_FailOpen(t *testing.T) {
	limiter := NewSlidingWindowLimiter(&failingStore{}, testLogger())
	ctx := context.Background()

	configs := []ratelimit.Config{
		{Window: time.Minute, MaxRequests: 5},
		{Window: time.Hour, MaxRequests: 1},
		{Window: time.Second, MaxRequests: 1000},
	}

	for _, cfg := range configs {
		result := limiter.Check(ctx, "rl:test:key", cfg)
		if !result.Allowed {
			t.Errorf("check with failing store must allow (config %+v)", cfg)
		}
		if result.Count != 0 {
			t.Errorf("fail-open count = %d, want 0", result.Count)
		}
		if result.Remaining != cfg.MaxRequests {
			t.Errorf("fail-open remaining = %d, want %d", result.Remaining, cfg.MaxRequests)
		}
	}
}

func TestSlidingWindowLimiter_Status_DoesNotMutate(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	ctx := context.Background()
	cfg := ratelimit.Config{Window: time.Minute, MaxRequests: 10}

	for i := 0; i < 3; i++ {
		limiter.Check(ctx, "rl:test:key", cfg)
	}

	for i := 0; i < 2; i++ {
		status, err := limiter.Status(ctx, "rl:test:key", cfg)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if status.CurrentCount != 3 {
			t.Errorf("Status() current count = %d, want 3", status.CurrentCount)
		}
		if status.Remaining != 7 {
			t.Errorf("Status() remaining = %d, want 7", status.Remaining)
		}
		if status.Limit != 10 {
			t.Errorf("Status() limit = %d, want 10", status.Limit)
		}
	}
}

func TestSlidingWindowLimiter_Reset(t *testing.T) {
	limiter, _, _ := newTestLimiter()
	ctx := context.Background()
	cfg := ratelimit.Config{Window: time.Minute, MaxRequests: 2}

	limiter.Check(ctx, "rl:test:key", cfg)
	limiter.Check(ctx, "rl:test:key", cfg)
	if result := limiter.Check(ctx, "rl:test:key", cfg); result.Allowed {
		t.Fatal("should be rejected before reset")
	}

	if err := limiter.Reset(ctx, "rl:test:key"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	result := limiter.Check(ctx, "rl:test:key", cfg)
	if !result.Allowed {
		t.Error("first request after reset should be allowed")
	}
	if result.Count != 1 {
		t.Errorf("count after reset = %d, want 1 (brand-new window)", result.Count)
	}
}

// failingStore simulates an unavailable counter store.
type failingStore struct{}

var errStoreDown = errors.New("connection refused")

func (f *failingStore) RecordAndCount(context.Context, string, time.Time, time.Duration) (int64, error) {
	return 0, errStoreDown
}

func (f *failingStore) OldestTimestamp(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errStoreDown
}

func (f *failingStore) CountSince(context.Context, string, time.Time) (int64, error) {
	return 0, errStoreDown
}

func (f *failingStore) RemoveBefore(context.Context, string, time.Time) (int64, error) {
	return 0, errStoreDown
}

func (f *failingStore) Cardinality(context.Context, string) (int64, error) {
	return 0, errStoreDown
}

func (f *failingStore) Delete(context.Context, string) error {
	return errStoreDown
}

func (f *failingStore) Keys(context.Context, string) ([]string, error) {
	return nil, errStoreDown
}

func (f *failingStore) Close() error {
	return nil
}
