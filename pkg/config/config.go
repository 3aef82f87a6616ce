// Package config builds the engine's immutable configuration once at
// startup: environment variables layered over an optional YAML file.
// Components receive the struct by value; nothing reads the process
// environment after Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the conservative profile: small batches, long pauses.
const (
	DefaultRequestDelay    = 500 * time.Millisecond
	DefaultBatchSize       = 30
	DefaultBatchPause      = 15 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryBaseDelay  = 2 * time.Second
	DefaultMaxRetryRounds  = 2
	DefaultInterRoundPause = 3 * time.Second
)

// Source describes one CSV input file (YAML only).
type Source struct {
	Path          string   `yaml:"path"`
	Kind          string   `yaml:"kind"`
	TitlePrefix   string   `yaml:"title_prefix"`
	DefaultLabels []string `yaml:"default_labels"`
}

// Config is the full run configuration. Immutable after Load.
type Config struct {
	// Token authenticates against the API. Required.
	Token string

	// Repository is the "owner/name" target. Required.
	Repository string

	// BaseURL overrides the API host (tests, GHES).
	BaseURL string

	// RequestDelay is the minimum delay between sequential submissions.
	RequestDelay time.Duration

	// BatchSize is the number of items per batch.
	BatchSize int

	// BatchPause is the sleep between batches.
	BatchPause time.Duration

	// MaxRetries is the in-place attempt count per item.
	MaxRetries int

	// RetryBaseDelay seeds the backoff policy.
	RetryBaseDelay time.Duration

	// MaxRetryRounds bounds the coordinator rounds over collected
	// failures.
	MaxRetryRounds int

	// InterRoundPause is the base pause before each retry round.
	InterRoundPause time.Duration

	// RedisAddr enables the shared rate-limit mirror when set.
	RedisAddr string

	// ProjectID, when set, links every created resource to this project
	// after the run.
	ProjectID string

	// LinkWorkers bounds the linking pool's concurrency.
	LinkWorkers int

	// ResultPath is where the run summary is written.
	ResultPath string

	// LogLevel and LogPretty configure the logger.
	LogLevel  string
	LogPretty bool

	// Sources lists the CSV inputs (YAML only).
	Sources []Source
}

// fileConfig is the YAML shape. Durations are strings for
// time.ParseDuration ("500ms", "15s").
type fileConfig struct {
	Repository      string   `yaml:"repository"`
	BaseURL         string   `yaml:"base_url"`
	RequestDelay    string   `yaml:"request_delay"`
	BatchSize       *int     `yaml:"batch_size"`
	BatchPause      string   `yaml:"batch_pause"`
	MaxRetries      *int     `yaml:"max_retries"`
	RetryBaseDelay  string   `yaml:"retry_base_delay"`
	MaxRetryRounds  *int     `yaml:"max_retry_rounds"`
	InterRoundPause string   `yaml:"inter_round_pause"`
	RedisAddr       string   `yaml:"redis_addr"`
	ProjectID       string   `yaml:"project_id"`
	LinkWorkers     *int     `yaml:"link_workers"`
	ResultPath      string   `yaml:"result_path"`
	LogLevel        string   `yaml:"log_level"`
	LogPretty       *bool    `yaml:"log_pretty"`
	Sources         []Source `yaml:"sources"`
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables. Returns an error on
// any unparseable value so a bad setting aborts before the first batch.
func Load() (Config, error) {
	cfg := Config{
		RequestDelay:    DefaultRequestDelay,
		BatchSize:       DefaultBatchSize,
		BatchPause:      DefaultBatchPause,
		MaxRetries:      DefaultMaxRetries,
		RetryBaseDelay:  DefaultRetryBaseDelay,
		MaxRetryRounds:  DefaultMaxRetryRounds,
		InterRoundPause: DefaultInterRoundPause,
		ResultPath:      "provisioning_result.txt",
		LogLevel:        "info",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.Repository != "" {
		c.Repository = fc.Repository
	}
	if fc.BaseURL != "" {
		c.BaseURL = fc.BaseURL
	}
	if fc.RedisAddr != "" {
		c.RedisAddr = fc.RedisAddr
	}
	if fc.ProjectID != "" {
		c.ProjectID = fc.ProjectID
	}
	if fc.LinkWorkers != nil {
		c.LinkWorkers = *fc.LinkWorkers
	}
	if fc.ResultPath != "" {
		c.ResultPath = fc.ResultPath
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.LogPretty != nil {
		c.LogPretty = *fc.LogPretty
	}
	if fc.BatchSize != nil {
		c.BatchSize = *fc.BatchSize
	}
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.MaxRetryRounds != nil {
		c.MaxRetryRounds = *fc.MaxRetryRounds
	}
	if len(fc.Sources) > 0 {
		c.Sources = fc.Sources
	}

	for _, d := range []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{fc.RequestDelay, &c.RequestDelay, "request_delay"},
		{fc.BatchPause, &c.BatchPause, "batch_pause"},
		{fc.RetryBaseDelay, &c.RetryBaseDelay, "retry_base_delay"},
		{fc.InterRoundPause, &c.InterRoundPause, "inter_round_pause"},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TEAM_SETUP_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("GITHUB_REPOSITORY"); v != "" {
		c.Repository = v
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("PROJECT_ID"); v != "" {
		c.ProjectID = v
	}
	if v := os.Getenv("RESULT_PATH"); v != "" {
		c.ResultPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		c.LogPretty = v == "1" || strings.EqualFold(v, "true")
	}

	for _, n := range []struct {
		env string
		dst *int
	}{
		{"BATCH_SIZE", &c.BatchSize},
		{"MAX_RETRIES", &c.MaxRetries},
		{"MAX_RETRY_ROUNDS", &c.MaxRetryRounds},
		{"LINK_WORKERS", &c.LinkWorkers},
	} {
		v := os.Getenv(n.env)
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", n.env, err)
		}
		*n.dst = parsed
	}

	// Delay variables are fractional seconds, e.g. REQUEST_DELAY=0.5.
	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{"REQUEST_DELAY", &c.RequestDelay},
		{"BATCH_PAUSE", &c.BatchPause},
		{"RETRY_BASE_DELAY", &c.RetryBaseDelay},
		{"INTER_ROUND_PAUSE", &c.InterRoundPause},
	} {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.env, err)
		}
		*d.dst = time.Duration(secs * float64(time.Second))
	}

	return nil
}

// Validate checks the invariants a run cannot start without.
func (c Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("TEAM_SETUP_TOKEN is required")
	}
	if c.Repository == "" {
		return fmt.Errorf("GITHUB_REPOSITORY is required")
	}
	if !strings.Contains(c.Repository, "/") {
		return fmt.Errorf("repository %q must be owner/name", c.Repository)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1 (got %d)", c.BatchSize)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be >= 1 (got %d)", c.MaxRetries)
	}
	if c.MaxRetryRounds < 0 {
		return fmt.Errorf("max retry rounds must be >= 0 (got %d)", c.MaxRetryRounds)
	}
	if c.RequestDelay < 0 || c.BatchPause < 0 || c.RetryBaseDelay < 0 || c.InterRoundPause < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}

// Owner returns the repository owner half.
func (c Config) Owner() string {
	owner, _, _ := strings.Cut(c.Repository, "/")
	return owner
}

// Repo returns the repository name half.
func (c Config) Repo() string {
	_, repo, _ := strings.Cut(c.Repository, "/")
	return repo
}
