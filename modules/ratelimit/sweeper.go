package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/multitenant-api/domain/ratelimit"
)

// Sweeper periodically prunes counters whose natural TTL did not fire,
// for example after an administrative reset recreated a key. It removes
// members older than the retention horizon and deletes sets that end up
// empty, bounding storage growth from abandoned keys.
type Sweeper struct {
	store     ratelimit.CounterStore
	pattern   string
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSweeper creates a sweeper over the engine's keyspace.
func NewSweeper(store ratelimit.CounterStore, pattern string, interval, retention time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:     store,
		pattern:   pattern,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Start launches the periodic sweep. Stop or the parent context ends it.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Stop ends the sweep loop and waits for the in-flight pass to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Sweep runs one pass: prune entries older than the retention horizon
// for every known key and delete sets that are now empty.
func (s *Sweeper) Sweep(ctx context.Context) {
	keys, err := s.store.Keys(ctx, s.pattern)
	if err != nil {
		s.logger.Warn("cleanup sweep could not list keys", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.retention)
	var pruned, deleted int64

	for _, key := range keys {
		removed, err := s.store.RemoveBefore(ctx, key, cutoff)
		if err != nil {
			s.logger.Warn("cleanup sweep could not prune key",
				"key", key,
				"error", err)
			continue
		}
		pruned += removed

		card, err := s.store.Cardinality(ctx, key)
		if err != nil {
			continue
		}
		if card == 0 {
			if err := s.store.Delete(ctx, key); err != nil {
				s.logger.Warn("cleanup sweep could not delete empty key",
					"key", key,
					"error", err)
				continue
			}
			deleted++
		}
	}

	if pruned > 0 || deleted > 0 {
		s.logger.Info("cleanup sweep finished",
			"keys", len(keys),
			"entries_pruned", pruned,
			"keys_deleted", deleted)
	}
}
