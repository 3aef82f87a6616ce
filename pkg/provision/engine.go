package provision

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the engine. All fields are fixed at construction; the
// engine holds no other mutable shared state besides the rate-limit state
// owned by the pacer.
type Options struct {
	// BatchSize is the number of items per batch before the inter-batch
	// pause.
	BatchSize int

	// BatchPause is the sleep between batches, targeting the secondary
	// per-minute rate limit.
	BatchPause time.Duration

	// MaxRetries is the number of in-place attempts per item.
	MaxRetries int

	// RetryBaseDelay seeds the backoff policy.
	RetryBaseDelay time.Duration

	// MaxRetryRounds bounds the coordinator passes over collected
	// failures.
	MaxRetryRounds int

	// InterRoundPause is the base pause before each retry round.
	InterRoundPause time.Duration
}

// RunResult is the terminal accounting of one engine run, consumed by the
// result reporter.
type RunResult struct {
	// Created holds first-pass successes in submission order.
	Created []RemoteResource

	// RetryCreated holds resources recovered by the retry rounds.
	RetryCreated []RemoteResource

	// Failed holds items that exhausted both in-place retries and all
	// retry rounds.
	Failed []WorkItem

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// AllCreated returns first-pass and retry successes concatenated.
func (r RunResult) AllCreated() []RemoteResource {
	all := make([]RemoteResource, 0, len(r.Created)+len(r.RetryCreated))
	all = append(all, r.Created...)
	all = append(all, r.RetryCreated...)
	return all
}

// Engine wires the scheduler, failure collection, and the retry
// coordinator into the full submission pipeline. Everything runs strictly
// sequentially on the calling goroutine; the only suspension points are
// the pacing, backoff, inter-batch, and inter-round sleeps.
//
// Delivery is at-least-once: on a network failure the remote side may have
// created the resource before the connection dropped, and the engine
// resubmits. The API offers no client-supplied idempotency key, so
// duplicates are possible; the final report lists every created resource
// so they can be audited after the run.
type Engine struct {
	scheduler   *BatchScheduler
	coordinator *RetryCoordinator
	logger      zerolog.Logger
}

// NewEngine builds the full pipeline around a creator and pacer.
func NewEngine(creator Creator, pacer Pacer, opts Options, logger zerolog.Logger) *Engine {
	submitter := NewSubmitter(creator, pacer, DefaultBackoffPolicy(opts.RetryBaseDelay), opts.MaxRetries, logger)
	scheduler := NewBatchScheduler(submitter, opts.BatchSize, opts.BatchPause, logger)
	coordinator := NewRetryCoordinator(scheduler, opts.MaxRetryRounds, opts.InterRoundPause, logger)
	return &Engine{
		scheduler:   scheduler,
		coordinator: coordinator,
		logger:      logger,
	}
}

// newEngineFromParts wires prebuilt components (for tests).
func newEngineFromParts(scheduler *BatchScheduler, coordinator *RetryCoordinator, logger zerolog.Logger) *Engine {
	return &Engine{scheduler: scheduler, coordinator: coordinator, logger: logger}
}

// Run pushes all items through the pipeline and returns the terminal
// accounting. Failures never abort the run; an item ends either created or
// in RunResult.Failed, exactly once.
func (e *Engine) Run(ctx context.Context, items []WorkItem) RunResult {
	start := time.Now()

	e.logger.Info().
		Int("items", len(items)).
		Msg("Starting provisioning run")

	results := e.scheduler.Run(ctx, items)
	created := CollectCreated(results)
	failed := CollectFailures(results)

	retryCreated, stillFailed := e.coordinator.Retry(ctx, failed)

	result := RunResult{
		Created:      created,
		RetryCreated: retryCreated,
		Failed:       stillFailed,
		Elapsed:      time.Since(start),
	}

	e.logger.Info().
		Int("created", len(result.Created)).
		Int("retry_created", len(result.RetryCreated)).
		Int("failed", len(result.Failed)).
		Dur("elapsed", result.Elapsed).
		Msg("Provisioning run complete")

	return result
}
