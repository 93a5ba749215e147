package ratelimit

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/multitenant-api/domain/ratelimit"
)

// MemoryCounterStore is an in-process ratelimit.CounterStore backed by a
// Go map. It mirrors the Redis store's semantics, including TTL expiry,
// and exists for unit tests, local development, and single-instance
// deployments. Its state is local to the process, so it does not enforce
// a global limit across replicas.
type MemoryCounterStore struct {
	mu   sync.Mutex
	sets map[string]*memorySet
}

type memorySet struct {
	members   []memoryMember
	expiresAt time.Time
}

type memoryMember struct {
	id    string
	score time.Time
}

var _ ratelimit.CounterStore = (*MemoryCounterStore)(nil)

// NewMemoryCounterStore creates an empty in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{sets: make(map[string]*memorySet)}
}

// RecordAndCount implements the pipelined check under a single lock,
// giving the same atomicity the Redis pipeline provides.
func (s *MemoryCounterStore) RecordAndCount(_ context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.liveSet(key, now)
	if set == nil {
		set = &memorySet{}
		s.sets[key] = set
	}

	windowStart := now.Add(-window)
	set.members = pruneBefore(set.members, windowStart)
	count := int64(len(set.members))

	set.members = append(set.members, memoryMember{id: uuid.NewString(), score: now})
	set.expiresAt = now.Add(ttlForWindow(window))

	return count, nil
}

// OldestTimestamp returns the score of the oldest surviving member.
func (s *MemoryCounterStore) OldestTimestamp(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.liveSet(key, time.Now())
	if set == nil || len(set.members) == 0 {
		return time.Time{}, false, nil
	}
	oldest := set.members[0].score
	for _, m := range set.members[1:] {
		if m.score.Before(oldest) {
			oldest = m.score
		}
	}
	return oldest, true, nil
}

// CountSince counts members scored at or after since.
func (s *MemoryCounterStore) CountSince(_ context.Context, key string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.liveSet(key, time.Now())
	if set == nil {
		return 0, nil
	}
	var count int64
	for _, m := range set.members {
		if !m.score.Before(since) {
			count++
		}
	}
	return count, nil
}

// RemoveBefore deletes members scored before the cutoff.
func (s *MemoryCounterStore) RemoveBefore(_ context.Context, key string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.liveSet(key, time.Now())
	if set == nil {
		return 0, nil
	}
	before := len(set.members)
	set.members = pruneBefore(set.members, cutoff)
	return int64(before - len(set.members)), nil
}

// Cardinality returns the current number of members.
func (s *MemoryCounterStore) Cardinality(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.liveSet(key, time.Now())
	if set == nil {
		return 0, nil
	}
	return int64(len(set.members)), nil
}

// Delete removes the counter entirely.
func (s *MemoryCounterStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, key)
	return nil
}

// Keys lists counter keys matching a glob pattern where '*' spans any
// run of characters, matching Redis MATCH semantics for the patterns the
// engine uses.
func (s *MemoryCounterStore) Keys(_ context.Context, pattern string) ([]string, error) {
	re, err := compileKeyPattern(pattern)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var keys []string
	for key := range s.sets {
		if s.liveSet(key, now) == nil {
			continue
		}
		if re.MatchString(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryCounterStore) Close() error {
	return nil
}

// liveSet returns the set for key, dropping it first if its TTL has
// passed. Callers must hold the mutex.
func (s *MemoryCounterStore) liveSet(key string, now time.Time) *memorySet {
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	if !set.expiresAt.IsZero() && now.After(set.expiresAt) {
		delete(s.sets, key)
		return nil
	}
	return set
}

func pruneBefore(members []memoryMember, cutoff time.Time) []memoryMember {
	kept := members[:0]
	for _, m := range members {
		if !m.score.Before(cutoff) {
			kept = append(kept, m)
		}
	}
	return kept
}

func compileKeyPattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i, part := range strings.Split(pattern, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
