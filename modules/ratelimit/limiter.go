package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/multitenant-api/domain/ratelimit"
)

// SlidingWindowLimiter runs the sliding-window-log admission check
// against a CounterStore. Each check records a timestamp for the current
// request and compares the count of surviving timestamps against the
// configured maximum.
type SlidingWindowLimiter struct {
	store  ratelimit.CounterStore
	logger *slog.Logger
	now    func() time.Time
}

// NewSlidingWindowLimiter creates a limiter over the given store.
func NewSlidingWindowLimiter(store ratelimit.CounterStore, logger *slog.Logger) *SlidingWindowLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlidingWindowLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Check decides whether the request identified by key is admitted under
// cfg. The current request is always recorded, admitted or not, so
// rejected traffic still counts against the window.
//
// Check never fails: any store error resolves to a fail-open allow so
// the engine does not block traffic when the counter store is degraded.
// The decision compares the count observed before insertion, which
// leaves a narrow race where near-simultaneous requests on one key can
// overshoot the limit by the number of requests in flight.
func (l *SlidingWindowLimiter) Check(ctx context.Context, key string, cfg ratelimit.Config) *ratelimit.Result {
	now := l.now()

	preCount, err := l.store.RecordAndCount(ctx, key, now, cfg.Window)
	if err != nil {
		l.logger.Error("rate limit check failed, allowing request",
			"key", key,
			"error", err)
		return l.failOpen(now, cfg)
	}

	result := &ratelimit.Result{
		Allowed:   preCount < int64(cfg.MaxRequests),
		Count:     int(preCount) + 1,
		Remaining: remainingAfter(preCount, cfg.MaxRequests),
		ResetAt:   now.Add(cfg.Window),
	}

	if !result.Allowed {
		// The oldest-entry read is a separate round trip; when it
		// fails or the set drained in between, RetryAfter stays unset.
		oldest, ok, err := l.store.OldestTimestamp(ctx, key)
		if err != nil {
			l.logger.Warn("could not read oldest window entry",
				"key", key,
				"error", err)
		} else if ok {
			result.RetryAfter = retryAfter(oldest, now, cfg.Window)
		}
	}

	return result
}

// Status reports the current count and headroom for a key without
// recording a request.
func (l *SlidingWindowLimiter) Status(ctx context.Context, key string, cfg ratelimit.Config) (*ratelimit.KeyStatus, error) {
	now := l.now()

	count, err := l.store.CountSince(ctx, key, now.Add(-cfg.Window))
	if err != nil {
		return nil, err
	}

	remaining := cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &ratelimit.KeyStatus{
		Key:          key,
		CurrentCount: int(count),
		Limit:        cfg.MaxRequests,
		Remaining:    remaining,
		ResetAt:      now.Add(cfg.Window),
		Window:       cfg.Window,
	}, nil
}

// Reset deletes the counter; the next request for the key starts a
// fresh window.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}

func (l *SlidingWindowLimiter) failOpen(now time.Time, cfg ratelimit.Config) *ratelimit.Result {
	return &ratelimit.Result{
		Allowed:   true,
		Count:     0,
		Remaining: cfg.MaxRequests,
		ResetAt:   now.Add(cfg.Window),
	}
}

func remainingAfter(preCount int64, max int) int {
	remaining := max - int(preCount) - 1
	if remaining < 0 {
		return 0
	}
	return remaining
}

// retryAfter rounds up to whole seconds, the granularity of the
// Retry-After header.
func retryAfter(oldest, now time.Time, window time.Duration) time.Duration {
	wait := oldest.Add(window).Sub(now)
	if wait <= 0 {
		return 0
	}
	secs := (wait + time.Second - 1) / time.Second
	return secs * time.Second
}
