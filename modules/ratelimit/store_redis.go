// Package ratelimit implements the distributed rate-limiting engine:
// the sliding-window counter, rule coordination, HTTP middleware,
// administrative operations, and the periodic cleanup sweep.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/multitenant-api/domain/ratelimit"
)

// RedisCounterStore implements ratelimit.CounterStore against a shared
// Redis instance. Counters are sorted sets whose members carry the
// per-request timestamp as their score.
type RedisCounterStore struct {
	client *redis.Client
}

var _ ratelimit.CounterStore = (*RedisCounterStore)(nil)

// NewRedisCounterStore creates a counter store over the given client.
// The client's lifecycle is managed by the caller.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// RecordAndCount runs the four counting primitives as one pipelined
// round trip: expire out-of-window members, read the cardinality before
// insertion, record the current request, refresh the TTL. Redis executes
// the pipeline's commands back to back on its single command thread, so
// the four steps are atomic relative to each other.
func (s *RedisCounterStore) RecordAndCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	windowStart := now.Add(-window)

	// Member values must be unique even when two requests land on the
	// same millisecond, otherwise ZADD would overwrite instead of add.
	member := strconv.FormatInt(now.UnixMilli(), 10) + ":" + uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", formatScore(windowStart))
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	pipe.Expire(ctx, key, ttlForWindow(window))

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("rate limit pipeline: %w", err)
	}
	return card.Val(), nil
}

// OldestTimestamp reads the score of the oldest surviving member.
func (s *RedisCounterStore) OldestTimestamp(ctx context.Context, key string) (time.Time, bool, error) {
	entries, err := s.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read oldest entry: %w", err)
	}
	if len(entries) == 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(int64(entries[0].Score)), true, nil
}

// CountSince counts members scored at or after the given time.
func (s *RedisCounterStore) CountSince(ctx context.Context, key string, since time.Time) (int64, error) {
	count, err := s.client.ZCount(ctx, key, formatScore(since), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count window entries: %w", err)
	}
	return count, nil
}

// RemoveBefore deletes members scored before the cutoff.
func (s *RedisCounterStore) RemoveBefore(ctx context.Context, key string, cutoff time.Time) (int64, error) {
	removed, err := s.client.ZRemRangeByScore(ctx, key, "-inf", "("+formatScore(cutoff)).Result()
	if err != nil {
		return 0, fmt.Errorf("remove stale entries: %w", err)
	}
	return removed, nil
}

// Cardinality returns the current number of members in the counter.
func (s *RedisCounterStore) Cardinality(ctx context.Context, key string) (int64, error) {
	count, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("read cardinality: %w", err)
	}
	return count, nil
}

// Delete removes the counter unconditionally.
func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	return nil
}

// Keys enumerates counter keys matching the pattern using SCAN, so large
// keyspaces are walked without blocking the server.
func (s *RedisCounterStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan counter keys: %w", err)
	}
	return keys, nil
}

// Close closes the underlying client connection.
func (s *RedisCounterStore) Close() error {
	return s.client.Close()
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// ttlForWindow rounds the window up to whole seconds, the granularity
// EXPIRE works at.
func ttlForWindow(window time.Duration) time.Duration {
	secs := math.Ceil(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
