package ratelimit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Pacer enforces the minimum delay between sequential item submissions.
// It never aborts a run on low capacity: the tracker's state only informs
// log output and the Submitter's backoff choices.
type Pacer struct {
	delay   time.Duration
	tracker *Tracker
	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
}

// NewPacer creates a pacer with the given inter-request delay.
func NewPacer(delay time.Duration, tracker *Tracker, logger zerolog.Logger) *Pacer {
	return &Pacer{
		delay:   delay,
		tracker: tracker,
		sleep:   defaultSleep,
		logger:  logger,
	}
}

// SetSleep replaces the sleep implementation (for tests).
func (p *Pacer) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	p.sleep = sleep
}

// Wait blocks for the configured base delay before every item except the
// first in a batch.
func (p *Pacer) Wait(ctx context.Context, firstInBatch bool) error {
	if firstInBatch || p.delay <= 0 {
		return nil
	}
	return p.sleep(ctx, p.delay)
}

// Observe feeds a response's rate-limit headers into the tracker.
func (p *Pacer) Observe(header http.Header) {
	p.tracker.UpdateFromHeaders(context.Background(), header)
}

// Snapshot exposes the tracker's current state to callers that tune their
// behaviour on remaining capacity.
func (p *Pacer) Snapshot(ctx context.Context) State {
	return p.tracker.Snapshot(ctx)
}

// Capacity reports how long until the tracked window resets and whether
// remaining capacity is low. An unknown window reports (0, false) so the
// caller falls back to plain backoff.
func (p *Pacer) Capacity(ctx context.Context) (time.Duration, bool) {
	state := p.Snapshot(ctx)
	if !state.Known() {
		return 0, false
	}
	return state.TimeUntilReset(), state.LowCapacity()
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
