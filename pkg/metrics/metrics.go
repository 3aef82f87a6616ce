// Package metrics documents the Prometheus metrics exposed by the engine.
// All metrics are defined in the packages that emit them (provision,
// ratelimit) to keep the modules self-contained; this package only names
// the registry and lists what exists.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the engine.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request metrics (pkg/provision):
//   - provisioner_requests_total{kind, status} (Counter): create requests
//     by resource kind and result status
//   - provisioner_request_duration_seconds{kind} (Histogram): create
//     request duration
//
// Retry metrics (pkg/provision):
//   - provisioner_retries_total{class} (Counter): in-place retry attempts
//   - provisioner_retry_backoff_seconds{class} (Histogram): backoff
//     duration before retries
//   - provisioner_retry_exhausted_total{class} (Counter): items that
//     exhausted in-place retries
//
// Rate limit metrics (pkg/ratelimit):
//   - provisioner_rate_limit_remaining (Gauge): requests remaining in the
//     current window
//   - provisioner_rate_limit_warnings_total (Counter): times remaining
//     capacity fell under the warning threshold
