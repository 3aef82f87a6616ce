// Package github provides the thin HTTP client the engine submits through:
// one shared session with default headers set once at construction and a
// fixed per-request timeout. Payload construction (issue bodies, GraphQL
// mutations) happens upstream; this client only routes opaque JSON bodies
// to the right endpoint.
package github

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/akachiryo/github-provisioner/pkg/provision"
)

const (
	defaultBaseURL = "https://api.github.com"

	// requestTimeout bounds each HTTP call. There is no run-level
	// timeout: a stuck run must be killed externally.
	requestTimeout = 30 * time.Second

	apiVersion = "2022-11-28"
)

// Client is the shared HTTP session for all engine requests. Safe for use
// from the single submission goroutine plus the concurrent linker pool:
// after construction nothing is mutated.
type Client struct {
	httpClient *http.Client
	baseURL    string
	owner      string
	repo       string
	token      string
}

// Config holds client construction parameters.
type Config struct {
	// Token is the API token (required).
	Token string

	// Owner and Repo identify the target repository (required).
	Owner string
	Repo  string

	// BaseURL overrides the API host (for tests and GHES).
	BaseURL string
}

// New creates a client. Fails fast on missing credentials so a
// misconfigured run aborts before any batch starts.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("api token is required")
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: baseURL,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		token:   cfg.Token,
	}, nil
}

// Create implements provision.Creator: it POSTs the item's opaque payload
// to the create endpoint for its kind.
func (c *Client) Create(ctx context.Context, item provision.WorkItem) (*http.Response, error) {
	return c.post(ctx, c.endpointFor(item.Kind), item.Payload)
}

// Link POSTs an opaque follow-up payload (project linking, field updates)
// to the GraphQL endpoint. Used by the linker pool; no ordering
// requirement.
func (c *Client) Link(ctx context.Context, payload []byte) (*http.Response, error) {
	return c.post(ctx, c.baseURL+"/graphql", payload)
}

// endpointFor maps a resource kind to its create endpoint. Issues use the
// REST create endpoint; the remaining kinds are created through GraphQL
// mutations carried in the opaque payload.
func (c *Client) endpointFor(kind provision.Kind) string {
	switch kind {
	case provision.KindIssue:
		return fmt.Sprintf("%s/repos/%s/%s/issues", c.baseURL, c.owner, c.repo)
	default:
		return c.baseURL + "/graphql"
	}
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "token "+c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	return c.httpClient.Do(req)
}
