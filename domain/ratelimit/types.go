// Package ratelimit provides domain types and interfaces for the rate-limiting engine.
package ratelimit

import (
	"time"
)

// UserType classifies the caller identity resolved for a request.
type UserType string

const (
	UserTypeAuthenticated UserType = "authenticated"
	UserTypeAnonymous     UserType = "anonymous"
	UserTypePremium       UserType = "premium"
)

// TenantType classifies the tenant plan resolved for a request.
type TenantType string

const (
	TenantTypeFree       TenantType = "free"
	TenantTypePaid       TenantType = "paid"
	TenantTypeEnterprise TenantType = "enterprise"
)

// Config holds the counting parameters for a single rate limit.
type Config struct {
	// Window is the length of the sliding window.
	Window time.Duration
	// MaxRequests is the number of admitted requests per window.
	MaxRequests int
	// KeyPrefix namespaces this limit's counters in the shared store.
	KeyPrefix string
	// SkipSuccessfulRequests and SkipFailedRequests are declared for
	// configuration compatibility but are not consumed by the counting
	// algorithm.
	SkipSuccessfulRequests bool
	SkipFailedRequests     bool
}

// RequestContext carries the identifying parts of one inbound request.
// It is derived externally (identity resolution is a collaborator) and
// is immutable for the lifetime of the request.
type RequestContext struct {
	ClientIP   string
	UserID     string
	TenantID   string
	Path       string
	Method     string
	UserType   UserType
	TenantType TenantType
}

// Result represents the outcome of one sliding-window check.
type Result struct {
	// Allowed indicates whether the request is admitted.
	Allowed bool
	// Count is the number of requests observed in the current window,
	// inclusive of the current one once recorded.
	Count int
	// Remaining is the headroom left in the window, never negative.
	Remaining int
	// ResetAt is a rolling horizon of now+window. It does not mark when
	// the window truly drains.
	ResetAt time.Time
	// RetryAfter is the wait until the oldest counted request exits the
	// window. Zero when the request is allowed or the oldest entry could
	// not be read.
	RetryAfter time.Duration
}

// KeyStatus is a read-only report of one counter's current state.
type KeyStatus struct {
	Key          string        `json:"key"`
	CurrentCount int           `json:"current_count"`
	Limit        int           `json:"limit"`
	Remaining    int           `json:"remaining"`
	ResetAt      time.Time     `json:"reset_at"`
	Window       time.Duration `json:"window"`
}

// Stats summarizes the active counters in the store.
type Stats struct {
	TotalKeys  int            `json:"total_keys"`
	ActiveKeys int            `json:"active_keys"`
	KeysByType map[string]int `json:"keys_by_type"`
	TopKeys    []KeyCount     `json:"top_limited_keys"`
}

// KeyCount pairs a counter key with its current cardinality.
type KeyCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}
