// Package httputil builds the shared HTTP client used for every upstream fetch.
//
// Corral keeps one client per process: the connection budget is global state
// sized once at startup, exactly like the worker pool. Components receive the
// client by injection and never construct their own.
package httputil

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewClient returns an HTTP client whose per-host connection count is capped
// at maxConns. The timeout is a generous upper bound, since ingestion is a
// background batch operation rather than latency-sensitive, and a zero
// timeout disables it entirely. The transport emits one client span per
// upstream fetch, parented to the ingestion batch span.
func NewClient(maxConns int, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = maxConns
	transport.MaxIdleConnsPerHost = maxConns
	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   timeout,
	}
}
