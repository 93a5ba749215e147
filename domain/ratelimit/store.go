package ratelimit

import (
	"context"
	"time"
)

// CounterStore abstracts the sorted-set primitives the engine needs from
// the shared key-value store. Implementations must make RecordAndCount a
// single atomic round trip; every other method is an independent call.
//
// Keeping the algorithm behind this interface makes it storage-agnostic
// and unit-testable against an in-memory implementation.
type CounterStore interface {
	// RecordAndCount atomically removes members scored before
	// now-window, reads the surviving cardinality, records the current
	// request at now, and refreshes the key's TTL. It returns the count
	// observed before the current request was added.
	RecordAndCount(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)

	// OldestTimestamp reads the score of the oldest surviving member.
	// ok is false when the key holds no members.
	OldestTimestamp(ctx context.Context, key string) (t time.Time, ok bool, err error)

	// CountSince counts members scored at or after the given time
	// without mutating the set.
	CountSince(ctx context.Context, key string, since time.Time) (int64, error)

	// RemoveBefore deletes members scored before the cutoff and reports
	// how many were removed.
	RemoveBefore(ctx context.Context, key string, cutoff time.Time) (int64, error)

	// Cardinality returns the current number of members.
	Cardinality(ctx context.Context, key string) (int64, error)

	// Delete removes the counter entirely.
	Delete(ctx context.Context, key string) error

	// Keys lists counter keys matching a glob pattern (e.g. "rl:*").
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases the store's resources.
	Close() error
}
