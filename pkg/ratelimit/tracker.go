package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "provisioner_rate_limit_remaining",
		Help: "Requests remaining in the current API rate limit window",
	})

	rateLimitWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provisioner_rate_limit_warnings_total",
		Help: "Times remaining capacity fell under the warning threshold",
	})
)

// Redis keys for the shared rate-limit mirror. When several provisioning
// jobs run against the same token (parallel CI runs), each job mirrors its
// observations here so all of them pace off the freshest window data.
const (
	RedisKeyRemaining  = "provisioner:rate_limit:remaining"
	RedisKeyLimit      = "provisioner:rate_limit:limit"
	RedisKeyResetAt    = "provisioner:rate_limit:reset_at"
	RedisKeyLastUpdate = "provisioner:rate_limit:last_update"
)

// redisMirrorTTL bounds how long mirrored state outlives the job that
// wrote it.
const redisMirrorTTL = 2 * time.Hour

// Tracker holds the most recent rate-limit observation. It is the single
// writer of the State; any number of goroutines may read snapshots.
// The Redis mirror is optional and best-effort: mirror failures are logged
// and never affect the run.
type Tracker struct {
	mu     sync.RWMutex
	state  State
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a tracker. redisClient may be nil for purely local
// (single-process) state.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// Snapshot returns the current state. If nothing has been observed locally
// yet and a Redis mirror is configured, the mirror is consulted so a fresh
// job adopts what sibling jobs have already seen.
func (t *Tracker) Snapshot(ctx context.Context) State {
	t.mu.RLock()
	local := t.state
	t.mu.RUnlock()

	if local.Known() || t.redis == nil {
		return local
	}

	mirrored, err := t.loadMirror(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to read rate limit mirror")
		return local
	}
	return mirrored
}

// UpdateFromHeaders refreshes the state from a response's rate-limit
// headers. Responses without the headers are ignored. Logs a capacity
// warning when the remaining fraction falls under WarnFraction.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, header http.Header) {
	remainStr := header.Get("X-Ratelimit-Remaining")
	limitStr := header.Get("X-Ratelimit-Limit")
	if remainStr == "" || limitStr == "" {
		return
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		t.logger.Warn().Str("value", remainStr).Msg("Unparseable x-ratelimit-remaining header")
		return
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		t.logger.Warn().Str("value", limitStr).Msg("Unparseable x-ratelimit-limit header")
		return
	}

	state := State{
		Remaining:  remaining,
		Limit:      limit,
		LastUpdate: time.Now(),
	}
	if resetStr := header.Get("X-Ratelimit-Reset"); resetStr != "" {
		if epoch, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
			state.ResetAt = time.Unix(epoch, 0)
		}
	}

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	rateLimitRemaining.Set(float64(remaining))

	if state.LowCapacity() {
		rateLimitWarningsTotal.Inc()
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Time("reset_at", state.ResetAt).
			Msg("API rate limit capacity low")
	} else {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Msg("Rate limit state updated")
	}

	if t.redis != nil {
		if err := t.storeMirror(ctx, state); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to mirror rate limit state")
		}
	}
}

// storeMirror writes the state to Redis atomically.
func (t *Tracker) storeMirror(ctx context.Context, state State) error {
	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, redisMirrorTTL)
	pipe.Set(ctx, RedisKeyLimit, state.Limit, redisMirrorTTL)
	pipe.Set(ctx, RedisKeyResetAt, state.ResetAt.Unix(), redisMirrorTTL)
	pipe.Set(ctx, RedisKeyLastUpdate, state.LastUpdate.UnixNano(), redisMirrorTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// loadMirror reads the state written by a sibling job. Returns a zero
// State when the mirror is empty.
func (t *Tracker) loadMirror(ctx context.Context) (State, error) {
	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err == redis.Nil {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}

	limit, err := t.redis.Get(ctx, RedisKeyLimit).Int()
	if err != nil && err != redis.Nil {
		return State{}, err
	}

	state := State{Remaining: remaining, Limit: limit}

	if resetEpoch, err := t.redis.Get(ctx, RedisKeyResetAt).Int64(); err == nil {
		state.ResetAt = time.Unix(resetEpoch, 0)
	}
	if updateNanos, err := t.redis.Get(ctx, RedisKeyLastUpdate).Int64(); err == nil {
		state.LastUpdate = time.Unix(0, updateNanos)
	}

	return state, nil
}
