package provision

import (
	"testing"
	"time"
)

func TestBackoffPolicy_RetryAfterIsAuthoritative(t *testing.T) {
	policy := DefaultBackoffPolicy(2 * time.Second)

	got := policy.Delay(OutcomeRateLimited, 0, 5*time.Second)
	want := 5*time.Second + policy.RetryAfterMargin

	if got != want {
		t.Errorf("Delay = %v, want %v", got, want)
	}

	// The hint overrides the attempt-based schedule at any attempt count.
	if got := policy.Delay(OutcomeRateLimited, 4, 5*time.Second); got != want {
		t.Errorf("Delay at attempt 4 = %v, want %v", got, want)
	}
}

func TestBackoffPolicy_ExponentialWithJitter(t *testing.T) {
	policy := DefaultBackoffPolicy(2 * time.Second)

	for attempt := 0; attempt < 4; attempt++ {
		got := policy.Delay(OutcomeRateLimited, attempt, 0)

		base := 2 * time.Second << uint(attempt)
		lo := time.Duration(float64(base) * 0.8)
		hi := time.Duration(float64(base) * 1.2)

		if got < lo || got > hi {
			t.Errorf("attempt %d: Delay = %v, want within [%v, %v]", attempt, got, lo, hi)
		}
	}
}

// Successive backoff delays for the same item must be non-decreasing in
// attempt number, even at the worst jitter draws.
func TestBackoffPolicy_Monotonic(t *testing.T) {
	policies := []BackoffPolicy{
		{BaseDelay: time.Second, rnd: func() float64 { return 0 }},   // always -20%
		{BaseDelay: time.Second, rnd: func() float64 { return 0.5 }}, // no jitter
		{BaseDelay: time.Second, rnd: func() float64 { return 1 }},   // always +20%
	}

	for _, class := range []OutcomeClass{OutcomeRateLimited, OutcomeServerError, OutcomeNetworkFailure} {
		for _, policy := range policies {
			prev := time.Duration(0)
			for attempt := 0; attempt < 6; attempt++ {
				d := policy.Delay(class, attempt, 0)
				if d < prev {
					t.Errorf("%s: delay decreased at attempt %d: %v < %v", class, attempt, d, prev)
				}
				prev = d
			}
		}
	}
}

func TestBackoffPolicy_LinearForServerAndNetwork(t *testing.T) {
	policy := BackoffPolicy{BaseDelay: 2 * time.Second}

	for _, class := range []OutcomeClass{OutcomeServerError, OutcomeNetworkFailure} {
		for attempt := 0; attempt < 3; attempt++ {
			got := policy.Delay(class, attempt, 0)
			want := 2 * time.Second * time.Duration(attempt+1)
			if got != want {
				t.Errorf("%s attempt %d: Delay = %v, want %v", class, attempt, got, want)
			}
		}
	}
}

func TestBackoffPolicy_MaxDelayCap(t *testing.T) {
	policy := BackoffPolicy{
		BaseDelay: time.Second,
		MaxDelay:  5 * time.Second,
		rnd:       func() float64 { return 1 },
	}

	if got := policy.Delay(OutcomeRateLimited, 10, 0); got != 5*time.Second {
		t.Errorf("Delay = %v, want capped at 5s", got)
	}
	if got := policy.Delay(OutcomeServerError, 10, 0); got != 5*time.Second {
		t.Errorf("Delay = %v, want capped at 5s", got)
	}
}

func TestBackoffPolicy_NonRetryableGetsNoDelay(t *testing.T) {
	policy := DefaultBackoffPolicy(2 * time.Second)

	if got := policy.Delay(OutcomeClientError, 0, 0); got != 0 {
		t.Errorf("Delay = %v, want 0", got)
	}
	if got := policy.Delay(OutcomeCreated, 0, 0); got != 0 {
		t.Errorf("Delay = %v, want 0", got)
	}
}
