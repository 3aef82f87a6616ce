package provision

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Common errors returned by the engine.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a
	// backoff or pacing sleep.
	ErrContextCancelled = errors.New("context cancelled")
)

// OutcomeClass is the classification of a single submission attempt.
type OutcomeClass string

const (
	// OutcomeCreated is the terminal success: the API returned 201.
	OutcomeCreated OutcomeClass = "created"

	// OutcomeRateLimited represents a 403/429 rate-limit response.
	OutcomeRateLimited OutcomeClass = "rate_limited"

	// OutcomeServerError represents a transient 5xx response.
	OutcomeServerError OutcomeClass = "server_error"

	// OutcomeClientError represents a non-retryable 4xx response (e.g. 422).
	OutcomeClientError OutcomeClass = "client_error"

	// OutcomeNetworkFailure represents a transport-level error or timeout.
	OutcomeNetworkFailure OutcomeClass = "network_failure"
)

// Retryable reports whether an attempt with this classification may be
// retried. Validation errors are terminal: resubmitting an invalid payload
// wastes quota and cannot succeed.
func (c OutcomeClass) Retryable() bool {
	switch c {
	case OutcomeRateLimited, OutcomeServerError, OutcomeNetworkFailure:
		return true
	default:
		return false
	}
}

// Outcome is the tagged result of submitting one work item. Class selects
// which of the remaining fields are meaningful.
type Outcome struct {
	Class OutcomeClass

	// Resource is set only for OutcomeCreated.
	Resource RemoteResource

	// StatusCode is set for all HTTP-level classifications.
	StatusCode int

	// RetryAfter is the server-provided wait hint on OutcomeRateLimited,
	// zero when the retry-after header was absent.
	RetryAfter time.Duration

	// Body holds a truncated response body for OutcomeClientError.
	Body string

	// Err is the transport error for OutcomeNetworkFailure, an *APIError
	// for HTTP-level failures, and nil on success. After the in-place
	// retry loop gives up it additionally wraps ErrRetryExhausted.
	Err error

	// Attempts is the number of Submitter attempts consumed for this item.
	Attempts int
}

// APIError is an HTTP-level error with its classification attached.
type APIError struct {
	StatusCode int
	Class      OutcomeClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("api %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// maxBodySnippet bounds how much of an error body is kept for logging.
const maxBodySnippet = 200

// Classify maps one attempt's raw result to an Outcome. It is a pure
// function of its inputs: the same status, headers, and body always produce
// the same classification. A transport error takes precedence over any
// partial response.
func Classify(status int, header http.Header, body []byte, err error) Outcome {
	if err != nil {
		return Outcome{Class: OutcomeNetworkFailure, Err: err}
	}

	switch {
	case status == http.StatusCreated:
		var res RemoteResource
		if jsonErr := json.Unmarshal(body, &res); jsonErr != nil {
			// A 201 with an unparseable body still created the resource
			// remotely; surface it as a client error so the item is not
			// resubmitted and duplicated.
			return Outcome{
				Class:      OutcomeClientError,
				StatusCode: status,
				Body:       snippet(body),
				Err:        &APIError{StatusCode: status, Class: OutcomeClientError, Message: "unparseable created-resource body", Err: jsonErr},
			}
		}
		return Outcome{Class: OutcomeCreated, StatusCode: status, Resource: res}

	case status == http.StatusForbidden || status == http.StatusTooManyRequests:
		return Outcome{
			Class:      OutcomeRateLimited,
			StatusCode: status,
			RetryAfter: parseRetryAfter(header),
			Err:        &APIError{StatusCode: status, Class: OutcomeRateLimited, Message: "rate limited"},
		}

	case status >= 500:
		return Outcome{
			Class:      OutcomeServerError,
			StatusCode: status,
			Err:        &APIError{StatusCode: status, Class: OutcomeServerError, Message: http.StatusText(status)},
		}

	default:
		return Outcome{
			Class:      OutcomeClientError,
			StatusCode: status,
			Body:       snippet(body),
			Err:        &APIError{StatusCode: status, Class: OutcomeClientError, Message: snippet(body)},
		}
	}
}

// parseRetryAfter reads the retry-after header as whole seconds.
// Returns 0 when absent or malformed.
func parseRetryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func snippet(body []byte) string {
	if len(body) > maxBodySnippet {
		return string(body[:maxBodySnippet])
	}
	return string(body)
}
