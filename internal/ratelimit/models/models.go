package models

import (
	"time"
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// Window returns the start of the fixed window containing now.
func Window(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

// NewResult builds the result for the count-th request of a fixed window
// starting at start.
func NewResult(count, limit int, start time.Time, window time.Duration, now time.Time) *Result {
	resetAt := start.Add(window)
	if count > limit {
		retry := int(resetAt.Sub(now).Round(time.Second) / time.Second)
		if retry < 1 {
			retry = 1
		}
		return &Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt, RetryAfter: retry}
	}
	return &Result{Allowed: true, Limit: limit, Remaining: limit - count, ResetAt: resetAt}
}
