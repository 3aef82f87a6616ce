package provision

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BatchScheduler partitions an ordered item list into fixed-size contiguous
// batches and runs them strictly sequentially through the Submitter. Both
// ordering of created-resource numbering and the simple per-window
// rate-limit accounting depend on there never being two batches, or two
// items, in flight at once.
type BatchScheduler struct {
	submitter  *Submitter
	batchSize  int
	batchPause time.Duration
	sleep      SleepFunc
	logger     zerolog.Logger
}

// NewBatchScheduler creates a scheduler. batchPause is the inter-batch
// sleep targeting the secondary (short-window) rate limit, distinct from
// the per-item pacing delay.
func NewBatchScheduler(submitter *Submitter, batchSize int, batchPause time.Duration, logger zerolog.Logger) *BatchScheduler {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchScheduler{
		submitter:  submitter,
		batchSize:  batchSize,
		batchPause: batchPause,
		sleep:      ContextSleep,
		logger:     logger,
	}
}

// SetSleep replaces the inter-batch sleep implementation (for tests).
func (s *BatchScheduler) SetSleep(sleep SleepFunc) {
	s.sleep = sleep
}

// WithBatchSize returns a scheduler sharing this one's submitter and pauses
// but using a different batch size. Retry rounds use this to run smaller
// batches over the failure set.
func (s *BatchScheduler) WithBatchSize(batchSize int) *BatchScheduler {
	clone := *s
	if batchSize < 1 {
		batchSize = 1
	}
	clone.batchSize = batchSize
	return &clone
}

// Run processes all items. An empty input yields zero batches. A batch
// whose submissions all fail still completes normally: failures flow to
// the failure collector, they never abort the run.
func (s *BatchScheduler) Run(ctx context.Context, items []WorkItem) []BatchResult {
	batches := partition(items, s.batchSize)
	results := make([]BatchResult, 0, len(batches))

	for n, batch := range batches {
		s.logger.Info().
			Int("batch", n+1).
			Int("total_batches", len(batches)).
			Int("items", len(batch)).
			Msg("Processing batch")

		result := s.runBatch(ctx, batch)
		results = append(results, result)

		s.logger.Info().
			Int("batch", n+1).
			Int("created", len(result.Created)).
			Int("failed", len(result.Failed)).
			Msg("Batch complete")

		if n < len(batches)-1 && s.batchPause > 0 {
			s.logger.Debug().Dur("pause", s.batchPause).Msg("Batch pause")
			if err := s.sleep(ctx, s.batchPause); err != nil {
				s.logger.Warn().Err(err).Msg("Run cancelled during batch pause")
				return results
			}
		}
	}

	return results
}

// runBatch submits one batch's items sequentially.
func (s *BatchScheduler) runBatch(ctx context.Context, batch []WorkItem) BatchResult {
	result := BatchResult{}

	for i := range batch {
		item := &batch[i]
		out := s.submitter.Submit(ctx, item, i == 0)
		if out.Class == OutcomeCreated {
			result.Created = append(result.Created, out.Resource)
		} else {
			result.Failed = append(result.Failed, *item)
		}
	}

	return result
}

// partition splits items into ceil(len/size) contiguous, order-preserving
// chunks. The chunks alias the input slice; they are never mutated
// structurally.
func partition(items []WorkItem, size int) [][]WorkItem {
	if len(items) == 0 {
		return nil
	}
	batches := make([][]WorkItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end:end])
	}
	return batches
}
