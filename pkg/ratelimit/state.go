// Package ratelimit tracks the remote API's rate-limit headers and paces
// outbound requests. It monitors x-ratelimit-remaining, x-ratelimit-limit,
// and x-ratelimit-reset so the engine can slow down before the quota runs
// out. The state is advisory only: it informs pacing and log output, it
// never blocks a run on its own.
package ratelimit

import (
	"time"
)

// WarnFraction is the remaining/limit ratio under which the tracker logs a
// capacity warning.
const WarnFraction = 0.2

// State is the most recently observed rate-limit window. It is refreshed
// from response headers by the Tracker (single writer) and read by the
// Pacer and Submitter.
type State struct {
	// Remaining is the number of requests left in the current window,
	// from the x-ratelimit-remaining header.
	Remaining int `json:"remaining"`

	// Limit is the window's total request budget, from x-ratelimit-limit.
	Limit int `json:"limit"`

	// ResetAt is when the window resets, from x-ratelimit-reset
	// (epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last refreshed from a response.
	LastUpdate time.Time `json:"last_update"`
}

// Known reports whether any rate-limit headers have been observed yet.
func (s State) Known() bool {
	return s.Limit > 0 && !s.LastUpdate.IsZero()
}

// RemainingFraction returns remaining capacity as a fraction of the limit.
// Returns 1 while the state is unknown so an unobserved window never
// triggers warnings.
func (s State) RemainingFraction() float64 {
	if !s.Known() {
		return 1
	}
	return float64(s.Remaining) / float64(s.Limit)
}

// LowCapacity reports whether remaining capacity has fallen under the
// warning threshold.
func (s State) LowCapacity() bool {
	return s.Known() && s.RemainingFraction() < WarnFraction
}

// TimeUntilReset returns the duration until the window resets, or 0 if the
// reset time is unknown or already passed.
func (s State) TimeUntilReset() time.Duration {
	if s.ResetAt.IsZero() {
		return 0
	}
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// IsStale returns true if the state is older than maxAge. Stale state
// should be treated as unknown rather than acted on.
func (s State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
