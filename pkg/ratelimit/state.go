// Package ratelimit tracks the request budget reported by the search API.
// It reads the X-RateLimit-Limit and X-RateLimit-Remaining headers that
// E-utilities attaches to every response and counts throttle signals.
package ratelimit

import (
	"time"
)

// Response headers carrying the server-side budget.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// RemainingWarning marks the budget as low when at most this many requests
// remain in the current window.
const RemainingWarning = 2

// State is a snapshot of the last observed rate limit headers.
type State struct {
	// Limit is the requests-per-second budget reported by the server (0 if unknown).
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window (-1 if unknown).
	Remaining int `json:"remaining"`

	// Throttles counts 429 responses seen during the run.
	Throttles int `json:"throttles"`

	// RetryAfter is the last server-suggested wait, if any.
	RetryAfter time.Duration `json:"retry_after"`

	// LastUpdate is when the headers were last observed.
	LastUpdate time.Time `json:"last_update"`
}

// Known reports whether any rate limit headers have been observed.
func (s State) Known() bool {
	return !s.LastUpdate.IsZero()
}

// IsLow reports whether the remaining budget is at or below RemainingWarning.
func (s State) IsLow() bool {
	return s.Known() && s.Remaining >= 0 && s.Remaining <= RemainingWarning
}

// IsStale returns true if the state is older than maxAge.
func (s State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
