package provision

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// retryBatchSize caps the batch size used for retry rounds. Failure sets
// are small and a rate-limited API that just rejected these items gets a
// gentler reattempt cadence.
const retryBatchSize = 10

// RetrySession tracks one coordinator run: the current round, the items
// still failing, and everything created so far this session.
type RetrySession struct {
	Round     int
	Remaining []WorkItem
	Created   []RemoteResource
}

// RetryCoordinator runs bounded additional rounds over the items that
// exhausted their in-place retries. Each round is a smaller scheduler pass
// over the remaining failures; the pause before round n is n times the
// configured base so pressure on the API eases round over round.
//
// Round state machine: Pending(remaining) -> Evaluated(created, stillFailed)
// -> Pending(stillFailed) for the next round, or Done when stillFailed is
// empty or rounds are exhausted.
type RetryCoordinator struct {
	scheduler *BatchScheduler
	maxRounds int
	pause     time.Duration
	sleep     SleepFunc
	logger    zerolog.Logger
}

// NewRetryCoordinator creates a coordinator that reuses the given
// scheduler's submitter with a retry-sized batch.
func NewRetryCoordinator(scheduler *BatchScheduler, maxRounds int, pause time.Duration, logger zerolog.Logger) *RetryCoordinator {
	return &RetryCoordinator{
		scheduler: scheduler.WithBatchSize(retryBatchSize),
		maxRounds: maxRounds,
		pause:     pause,
		sleep:     ContextSleep,
		logger:    logger,
	}
}

// SetSleep replaces the inter-round sleep implementation (for tests).
func (c *RetryCoordinator) SetSleep(sleep SleepFunc) {
	c.sleep = sleep
	c.scheduler.SetSleep(sleep)
}

// Retry runs up to maxRounds passes over the failed items. It returns the
// union of everything created across rounds plus the items still failing
// after the last round; the leftovers are logged with identifying titles so
// an operator can follow up manually, never silently dropped.
func (c *RetryCoordinator) Retry(ctx context.Context, failed []WorkItem) ([]RemoteResource, []WorkItem) {
	if len(failed) == 0 {
		return nil, nil
	}

	// Validation failures are terminal: resubmitting them wastes quota and
	// cannot succeed, so they skip the rounds entirely and reappear in the
	// final failure list.
	var retryable, terminal []WorkItem
	for _, it := range failed {
		if it.LastClass == OutcomeClientError {
			terminal = append(terminal, it)
		} else {
			retryable = append(retryable, it)
		}
	}

	c.logger.Info().
		Int("items", len(retryable)).
		Int("terminal", len(terminal)).
		Int("max_rounds", c.maxRounds).
		Msg("Retrying failed items")

	session := RetrySession{Remaining: retryable}

	for session.Round = 1; session.Round <= c.maxRounds; session.Round++ {
		if len(session.Remaining) == 0 {
			break
		}

		c.logger.Info().
			Int("round", session.Round).
			Int("max_rounds", c.maxRounds).
			Int("items", len(session.Remaining)).
			Msg("Retry round starting")

		// Escalating pre-round pause: round n waits n times the base.
		if err := c.sleep(ctx, c.pause*time.Duration(session.Round)); err != nil {
			break
		}

		results := c.scheduler.Run(ctx, session.Remaining)
		created := CollectCreated(results)
		session.Created = append(session.Created, created...)
		session.Remaining = CollectFailures(results)

		c.logger.Info().
			Int("round", session.Round).
			Int("created", len(created)).
			Int("still_failed", len(session.Remaining)).
			Msg("Retry round complete")
	}

	remaining := append(terminal, session.Remaining...)
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].SequenceIndex < remaining[j].SequenceIndex
	})

	if len(remaining) > 0 {
		c.logger.Error().
			Int("count", len(remaining)).
			Msg("Items could not be created after all retry rounds")
		for _, item := range remaining {
			c.logger.Error().
				Int("sequence", item.SequenceIndex).
				Str("kind", string(item.Kind)).
				Str("title", truncate(item.Title, 50)).
				Msg("Permanently failed item")
		}
	}

	return session.Created, remaining
}
