// Package linker runs the unordered follow-up calls that attach created
// resources to projects. Unlike the creation path, linking has no ordering
// requirement, so a small bounded worker pool is safe and cuts wall-clock
// time on large runs.
package linker

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Caller issues one linking call. The payload is an opaque, fully built
// request body; the pool never inspects it.
type Caller interface {
	Link(ctx context.Context, payload []byte) (*http.Response, error)
}

// Request is one linking call to perform.
type Request struct {
	// NodeID identifies the resource being linked (for logging).
	NodeID string

	// Payload is the ready-to-send request body.
	Payload []byte
}

// Config holds pool configuration.
type Config struct {
	// MaxConcurrency is the number of parallel workers.
	MaxConcurrency int

	// Timeout bounds each linking call.
	Timeout time.Duration

	// CallDelay is a small per-worker pause between calls so the pool
	// stays polite against the secondary rate limit. Zero falls back to
	// the default; a negative value disables the pause.
	CallDelay time.Duration
}

// DefaultConfig returns a conservative pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
		CallDelay:      100 * time.Millisecond,
	}
}

// Pool links resources with bounded concurrency.
type Pool struct {
	caller Caller
	config Config
	logger zerolog.Logger
}

// NewPool creates a pool. Zero config fields fall back to defaults.
func NewPool(caller Caller, config Config, logger zerolog.Logger) *Pool {
	def := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.CallDelay == 0 {
		config.CallDelay = def.CallDelay
	} else if config.CallDelay < 0 {
		config.CallDelay = 0
	}
	return &Pool{caller: caller, config: config, logger: logger}
}

// LinkAll performs all requests and returns the number that succeeded.
// Failures are logged and counted, never retried: a missed link is cheap
// to redo manually and retrying here would compete with the creation path
// for quota.
func (p *Pool) LinkAll(ctx context.Context, requests []Request) int {
	if len(requests) == 0 {
		return 0
	}

	start := time.Now()
	p.logger.Info().
		Int("requests", len(requests)).
		Int("workers", p.config.MaxConcurrency).
		Msg("Linking created resources")

	queue := make(chan Request, len(requests))
	for _, r := range requests {
		queue <- r
	}
	close(queue)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for i := 0; i < p.config.MaxConcurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for req := range queue {
				select {
				case <-ctx.Done():
					return
				default:
				}

				if p.link(ctx, req, workerID) {
					mu.Lock()
					succeeded++
					if succeeded%20 == 0 {
						p.logger.Info().
							Int("linked", succeeded).
							Int("total", len(requests)).
							Msg("Link progress")
					}
					mu.Unlock()
				}

				if p.config.CallDelay > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(p.config.CallDelay):
					}
				}
			}
		}(i)
	}

	wg.Wait()

	p.logger.Info().
		Int("linked", succeeded).
		Int("total", len(requests)).
		Dur("duration", time.Since(start)).
		Msg("Linking complete")

	return succeeded
}

// link performs one call and reports success.
func (p *Pool) link(ctx context.Context, req Request, workerID int) bool {
	callCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	resp, err := p.caller.Link(callCtx, req.Payload)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Int("worker_id", workerID).
			Str("node_id", req.NodeID).
			Msg("Link call failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn().
			Int("worker_id", workerID).
			Int("status", resp.StatusCode).
			Str("node_id", req.NodeID).
			Msg("Link call rejected")
		return false
	}
	return true
}
