package provision

import (
	"context"
	"math/rand"
	"time"
)

// SleepFunc suspends the caller for the given duration. The default
// implementation honours context cancellation; tests substitute a recorder
// so no real time passes.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the default SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ErrContextCancelled
	case <-time.After(d):
		return nil
	}
}

// BackoffPolicy computes the delay before re-attempting a retryable failure.
// It is a pure value: the same inputs (plus the jitter draw) always produce
// the same duration, so it is testable without real time.
type BackoffPolicy struct {
	// BaseDelay is the unit delay all backoff computations scale from.
	BaseDelay time.Duration

	// MaxDelay caps any computed delay. Zero means no cap.
	MaxDelay time.Duration

	// RetryAfterMargin is added on top of a server-provided retry-after
	// hint so the retry lands safely after the window reopens.
	RetryAfterMargin time.Duration

	// rnd draws the jitter factor in [0,1). Nil uses the global source.
	rnd func() float64
}

// DefaultBackoffPolicy returns the policy used by the engine unless
// configured otherwise.
func DefaultBackoffPolicy(base time.Duration) BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:        base,
		MaxDelay:         2 * time.Minute,
		RetryAfterMargin: 1 * time.Second,
	}
}

// Delay returns how long to sleep before attempt+1, given the classification
// of the attempt that just failed. attempt is zero-based.
//
// A retry-after hint is authoritative: it is the API's explicit contract for
// when the rate-limit window reopens. Without the hint, rate limits back off
// exponentially with ±20% jitter to avoid thundering-herd resubmission.
// Server and network failures back off linearly in the attempt number.
func (p BackoffPolicy) Delay(class OutcomeClass, attempt int, retryAfter time.Duration) time.Duration {
	var d time.Duration

	switch class {
	case OutcomeRateLimited:
		if retryAfter > 0 {
			return retryAfter + p.RetryAfterMargin
		}
		d = p.BaseDelay << uint(attempt)
		d = p.withJitter(d)
	case OutcomeServerError, OutcomeNetworkFailure:
		d = p.BaseDelay * time.Duration(attempt+1)
	default:
		return 0
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// withJitter scales d by a factor in [0.8, 1.2).
func (p BackoffPolicy) withJitter(d time.Duration) time.Duration {
	draw := rand.Float64
	if p.rnd != nil {
		draw = p.rnd
	}
	return time.Duration(float64(d) * (0.8 + draw()*0.4))
}
