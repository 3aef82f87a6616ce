// Package testutil provides a configurable mock of the remote API for
// engine tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// Response scripts one reply from the mock API.
type Response struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockAPI is a scriptable mock API server. Each request pops the next
// scripted response; once the script runs out, requests succeed with a
// generated 201 body.
type MockAPI struct {
	server *httptest.Server

	mu     sync.Mutex
	script []Response
	nextID int64

	// RequestCount is the total number of requests served.
	RequestCount int

	// LastHeader is the header set of the most recent request.
	LastHeader http.Header

	// LastPath is the URL path of the most recent request.
	LastPath string
}

// NewMockAPI creates and starts a mock API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{nextID: 1}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the server's base URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts the server down.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Script appends responses to serve, in order, before the default 201s.
func (m *MockAPI) Script(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
}

// Requests returns the total request count.
func (m *MockAPI) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.LastHeader = r.Header.Clone()
	m.LastPath = r.URL.Path

	var resp Response
	if len(m.script) > 0 {
		resp = m.script[0]
		m.script = m.script[1:]
	} else {
		id := m.nextID
		m.nextID++
		resp = Response{
			StatusCode: http.StatusCreated,
			Body: fmt.Sprintf(`{"number": %d, "node_id": "N_%d", "title": "item %d", "labels": []}`,
				id, id, id),
		}
	}
	m.mu.Unlock()

	w.Header().Set("X-Ratelimit-Remaining", "4999")
	w.Header().Set("X-Ratelimit-Limit", "5000")
	w.Header().Set("X-Ratelimit-Reset", "4102444800")
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		fmt.Fprint(w, resp.Body)
	}
}

// RateLimitHeaders builds a header map advertising the given remaining
// capacity, for scripted responses that exercise the tracker.
func RateLimitHeaders(remaining, limit int) map[string]string {
	return map[string]string{
		"X-Ratelimit-Remaining": strconv.Itoa(remaining),
		"X-Ratelimit-Limit":     strconv.Itoa(limit),
	}
}
