package ratelimit

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/example/multitenant-api/domain/ratelimit"
)

// topKeyCount bounds the busiest-keys report in Stats.
const topKeyCount = 10

// Admin exposes the administrative operations of the engine: resetting
// and inspecting individual counters and reporting on the keyspace.
type Admin struct {
	store   ratelimit.CounterStore
	limiter *SlidingWindowLimiter
	pattern string
	logger  *slog.Logger
}

// NewAdmin creates the admin surface. pattern scopes key enumeration to
// the engine's keyspace (e.g. "rl:*").
func NewAdmin(store ratelimit.CounterStore, limiter *SlidingWindowLimiter, pattern string, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{
		store:   store,
		limiter: limiter,
		pattern: pattern,
		logger:  logger,
	}
}

// Reset deletes the counter unconditionally; the next request for the
// key starts a brand-new window.
func (a *Admin) Reset(ctx context.Context, key string) error {
	if err := a.limiter.Reset(ctx, key); err != nil {
		return err
	}
	a.logger.Info("rate limit counter reset", "key", key)
	return nil
}

// Status reports a counter's current state without mutating it.
func (a *Admin) Status(ctx context.Context, key string, cfg ratelimit.Config) (*ratelimit.KeyStatus, error) {
	return a.limiter.Status(ctx, key, cfg)
}

// ListActiveKeys enumerates counters by key pattern. An empty pattern
// lists the engine's whole keyspace.
func (a *Admin) ListActiveKeys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = a.pattern
	}
	return a.store.Keys(ctx, pattern)
}

// Stats groups active counters by their namespace segment and reports
// the busiest keys by current cardinality.
func (a *Admin) Stats(ctx context.Context) (*ratelimit.Stats, error) {
	keys, err := a.store.Keys(ctx, a.pattern)
	if err != nil {
		return nil, err
	}

	stats := &ratelimit.Stats{
		TotalKeys:  len(keys),
		KeysByType: make(map[string]int),
	}

	counts := make([]ratelimit.KeyCount, 0, len(keys))
	for _, key := range keys {
		stats.KeysByType[namespaceOf(key)]++

		card, err := a.store.Cardinality(ctx, key)
		if err != nil {
			a.logger.Warn("could not read counter cardinality",
				"key", key,
				"error", err)
			continue
		}
		if card > 0 {
			stats.ActiveKeys++
		}
		counts = append(counts, ratelimit.KeyCount{Key: key, Count: int(card)})
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Key < counts[j].Key
	})
	if len(counts) > topKeyCount {
		counts = counts[:topKeyCount]
	}
	stats.TopKeys = counts

	return stats, nil
}

// namespaceOf extracts the portion of a counter key that identifies the
// rule type: everything before the first identity label.
func namespaceOf(key string) string {
	parts := strings.Split(key, ":")
	for i, part := range parts {
		switch part {
		case "ip", "user", "tenant":
			if i > 0 {
				return strings.Join(parts[:i], ":")
			}
			return part
		}
	}
	return parts[0]
}
