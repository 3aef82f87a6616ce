package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/akachiryo/github-provisioner/pkg/config"
	"github.com/akachiryo/github-provisioner/pkg/github"
	"github.com/akachiryo/github-provisioner/pkg/itemsource"
	"github.com/akachiryo/github-provisioner/pkg/linker"
	"github.com/akachiryo/github-provisioner/pkg/logging"
	"github.com/akachiryo/github-provisioner/pkg/provision"
	"github.com/akachiryo/github-provisioner/pkg/ratelimit"
	"github.com/akachiryo/github-provisioner/pkg/report"
	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.Setup(logging.DefaultConfig())
		logger.Error().Err(err).Msg("Configuration error")
		return 1
	}

	logger := logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	logger.Info().
		Str("repository", cfg.Repository).
		Int("batch_size", cfg.BatchSize).
		Dur("request_delay", cfg.RequestDelay).
		Dur("batch_pause", cfg.BatchPause).
		Int("max_retries", cfg.MaxRetries).
		Int("max_retry_rounds", cfg.MaxRetryRounds).
		Msg("Starting provisioner")

	ctx := context.Background()

	items, err := itemsource.Load(sourceSpecs(cfg))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load items")
		return 1
	}
	if len(items) == 0 {
		logger.Warn().Msg("No items found in any source, nothing to do")
		return 0
	}
	logger.Info().Int("items", len(items)).Msg("Loaded work items")

	client, err := github.New(github.Config{
		Token:   cfg.Token,
		Owner:   cfg.Owner(),
		Repo:    cfg.Repo(),
		BaseURL: cfg.BaseURL,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create API client")
		return 1
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("Redis unreachable, rate limit state stays local")
			redisClient = nil
		}
	}

	tracker := ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))
	pacer := ratelimit.NewPacer(cfg.RequestDelay, tracker, logging.NewLogger("pacer"))

	engine := provision.NewEngine(client, pacer, provision.Options{
		BatchSize:       cfg.BatchSize,
		BatchPause:      cfg.BatchPause,
		MaxRetries:      cfg.MaxRetries,
		RetryBaseDelay:  cfg.RetryBaseDelay,
		MaxRetryRounds:  cfg.MaxRetryRounds,
		InterRoundPause: cfg.InterRoundPause,
	}, logging.NewLogger("engine"))

	result := engine.Run(ctx, items)

	if cfg.ProjectID != "" {
		linkCreated(ctx, cfg, client, result.AllCreated())
	}

	summary := report.Build(items, result)
	if err := summary.WriteFile(cfg.ResultPath); err != nil {
		logger.Error().Err(err).Str("path", cfg.ResultPath).Msg("Failed to write result file")
	} else {
		logger.Info().Str("path", cfg.ResultPath).Msg("Result file written")
	}

	// Partial failure is tolerated: the run exits successfully as long as
	// something was created. Callers treating leftovers as a soft failure
	// read the final-failed count from the result file.
	if summary.TotalCreated() == 0 {
		logger.Error().Msg("Nothing was created")
		return 1
	}
	return 0
}

// addProjectItemQuery is the linking mutation. The engine itself never
// builds GraphQL; composing the payload is the job of this binary.
const addProjectItemQuery = `mutation($projectId: ID!, $contentId: ID!) {
  addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
    item { id }
  }
}`

// linkCreated attaches every created resource to the configured project
// using the bounded linker pool. Link failures are logged by the pool and
// do not affect the exit status.
func linkCreated(ctx context.Context, cfg config.Config, client *github.Client, created []provision.RemoteResource) {
	requests := make([]linker.Request, 0, len(created))
	for _, res := range created {
		payload, err := json.Marshal(map[string]any{
			"query": addProjectItemQuery,
			"variables": map[string]string{
				"projectId": cfg.ProjectID,
				"contentId": res.NodeID,
			},
		})
		if err != nil {
			continue
		}
		requests = append(requests, linker.Request{NodeID: res.NodeID, Payload: payload})
	}

	poolCfg := linker.DefaultConfig()
	if cfg.LinkWorkers > 0 {
		poolCfg.MaxConcurrency = cfg.LinkWorkers
	}
	pool := linker.NewPool(client, poolCfg, logging.NewLogger("linker"))
	pool.LinkAll(ctx, requests)
}

// sourceSpecs maps configured sources onto loader specs, falling back to
// the conventional CSV layout when the config names none.
func sourceSpecs(cfg config.Config) []itemsource.Spec {
	if len(cfg.Sources) == 0 {
		return []itemsource.Spec{
			{Path: "data/tasks_for_issues.csv", Kind: provision.KindIssue, TitlePrefix: "Task "},
			{Path: "data/tests_for_issues.csv", Kind: provision.KindIssue, TitlePrefix: "Test ", DefaultLabels: []string{"test", "qa"}},
			{Path: "data/kpt_for_issues.csv", Kind: provision.KindIssue, DefaultLabels: []string{"kpt", "retrospective"}},
		}
	}

	specs := make([]itemsource.Spec, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		kind := provision.Kind(s.Kind)
		if kind == "" {
			kind = provision.KindIssue
		}
		specs = append(specs, itemsource.Spec{
			Path:          s.Path,
			Kind:          kind,
			TitlePrefix:   s.TitlePrefix,
			DefaultLabels: s.DefaultLabels,
		})
	}
	return specs
}
