package provision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for submission and retry behaviour.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioner_requests_total",
		Help: "Total create requests by resource kind and result status",
	}, []string{"kind", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provisioner_request_duration_seconds",
		Help:    "Create request duration in seconds by resource kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioner_retries_total",
		Help: "Total in-place retry attempts by outcome class",
	}, []string{"class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provisioner_retry_backoff_seconds",
		Help:    "Backoff duration before retries by outcome class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioner_retry_exhausted_total",
		Help: "Items that exhausted in-place retries by outcome class",
	}, []string{"class"})
)

// Creator issues one create-request for a work item. Implementations share
// a single HTTP session whose default headers are set once at construction.
type Creator interface {
	Create(ctx context.Context, item WorkItem) (*http.Response, error)
}

// Pacer spaces sequential submissions and consumes rate-limit headers.
// Capacity exposes the tracked window so backoff can stretch toward the
// reset when quota is nearly gone.
type Pacer interface {
	Wait(ctx context.Context, firstInBatch bool) error
	Observe(header http.Header)
	Capacity(ctx context.Context) (resetIn time.Duration, low bool)
}

// Submitter executes one work item's create-request with a bounded in-place
// retry loop. Only rate-limit, server, and network failures are retried;
// validation errors abort the loop immediately because resubmitting an
// invalid payload cannot succeed.
type Submitter struct {
	creator    Creator
	pacer      Pacer
	policy     BackoffPolicy
	maxRetries int
	sleep      SleepFunc
	logger     zerolog.Logger
}

// NewSubmitter creates a submitter. maxRetries is the number of in-place
// attempts per item (at least 1).
func NewSubmitter(creator Creator, pacer Pacer, policy BackoffPolicy, maxRetries int, logger zerolog.Logger) *Submitter {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Submitter{
		creator:    creator,
		pacer:      pacer,
		policy:     policy,
		maxRetries: maxRetries,
		sleep:      ContextSleep,
		logger:     logger,
	}
}

// SetSleep replaces the backoff sleep implementation (for tests).
func (s *Submitter) SetSleep(sleep SleepFunc) {
	s.sleep = sleep
}

// Submit runs the retry loop for one item. firstInBatch suppresses the
// pacing delay for the first item of a batch; within-item retries are
// spaced by backoff alone. The item's Attempts counter accumulates across
// rounds; Outcome.Attempts counts only this invocation.
func (s *Submitter) Submit(ctx context.Context, item *WorkItem, firstInBatch bool) Outcome {
	if err := s.pacer.Wait(ctx, firstInBatch); err != nil {
		return Outcome{Class: OutcomeNetworkFailure, Err: err}
	}

	var last Outcome
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		out := s.attempt(ctx, item)
		item.Attempts++
		item.LastClass = out.Class
		out.Attempts = attempt + 1
		last = out

		if out.Class == OutcomeCreated {
			if attempt > 0 {
				s.logger.Info().
					Int("sequence", item.SequenceIndex).
					Int("attempt", attempt+1).
					Msg("Item created after retry")
			}
			return out
		}

		if !out.Class.Retryable() {
			s.logger.Error().
				Int("sequence", item.SequenceIndex).
				Str("title", truncate(item.Title, 50)).
				Int("status", out.StatusCode).
				Str("body", out.Body).
				Msg("Non-retryable client error, giving up on item")
			return out
		}

		if attempt >= s.maxRetries-1 {
			break
		}

		delay := s.policy.Delay(out.Class, attempt, out.RetryAfter)

		// A header-less rate limit with the window nearly exhausted means
		// exponential backoff alone will keep landing inside the closed
		// window; stretch the wait toward the tracked reset instead.
		if out.Class == OutcomeRateLimited && out.RetryAfter == 0 {
			if resetIn, low := s.pacer.Capacity(ctx); low && resetIn > delay {
				delay = resetIn
				if s.policy.MaxDelay > 0 && delay > s.policy.MaxDelay {
					delay = s.policy.MaxDelay
				}
				s.logger.Debug().
					Int("sequence", item.SequenceIndex).
					Dur("backoff", delay).
					Msg("Stretching backoff toward rate limit reset")
			}
		}

		retriesTotal.WithLabelValues(string(out.Class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(out.Class)).Observe(delay.Seconds())

		s.logger.Warn().
			Int("sequence", item.SequenceIndex).
			Str("class", string(out.Class)).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying item after backoff")

		if err := s.sleep(ctx, delay); err != nil {
			return last
		}
	}

	retryExhaustedTotal.WithLabelValues(string(last.Class)).Inc()
	if last.Err != nil {
		last.Err = fmt.Errorf("%w: %w", ErrRetryExhausted, last.Err)
	} else {
		last.Err = ErrRetryExhausted
	}
	s.logger.Warn().
		Int("sequence", item.SequenceIndex).
		Str("title", truncate(item.Title, 50)).
		Str("class", string(last.Class)).
		Int("max_retries", s.maxRetries).
		Msg("In-place retries exhausted")
	return last
}

// attempt issues one create-request and classifies the response.
func (s *Submitter) attempt(ctx context.Context, item *WorkItem) Outcome {
	start := time.Now()
	resp, err := s.creator.Create(ctx, *item)
	requestDuration.WithLabelValues(string(item.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		requestsTotal.WithLabelValues(string(item.Kind), "network_error").Inc()
		s.logger.Warn().
			Err(err).
			Int("sequence", item.SequenceIndex).
			Msg("Create request failed")
		return Classify(0, nil, nil, err)
	}
	defer resp.Body.Close()

	s.pacer.Observe(resp.Header)
	requestsTotal.WithLabelValues(string(item.Kind), strconv.Itoa(resp.StatusCode)).Inc()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil && resp.StatusCode == http.StatusCreated {
		// The resource exists remotely even though the body was lost;
		// resubmitting would duplicate it.
		return Classify(resp.StatusCode, resp.Header, nil, nil)
	}

	return Classify(resp.StatusCode, resp.Header, body, nil)
}

// truncate shortens s to n runes. Titles are frequently multi-byte, so
// cutting on a byte offset would emit invalid UTF-8 into the logs.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
