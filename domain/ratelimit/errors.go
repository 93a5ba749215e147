package ratelimit

import (
	"fmt"
	"time"
)

// LimitExceededError is the structured "too many requests" condition
// raised when a rule disallows a request. It carries enough data for the
// caller to retry intelligently and maps to HTTP 429.
type LimitExceededError struct {
	RuleName   string        `json:"rule"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_time"`
	RetryAfter time.Duration `json:"retry_after"`
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for rule %q: retry after %s", e.RuleName, e.RetryAfter)
}
