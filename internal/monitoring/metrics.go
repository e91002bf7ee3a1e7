// Package monitoring holds the gateway's Prometheus collectors. Metrics are
// registered at package-init time via promauto and scraped through
// internal/middleware's /metrics handler; callers elsewhere in the tree only
// ever increment/observe, never construct a collector of their own.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts every request the gateway served, labeled by
	// route and outcome.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gcli2api_http_requests_total",
		Help: "Total HTTP requests served, by method, path and status class.",
	}, []string{"method", "path", "status_class"})

	// HTTPRequestDuration observes request latency, labeled like
	// HTTPRequestsTotal.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gcli2api_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by method, path and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status_class"})

	// HTTPInFlight tracks requests currently being handled.
	HTTPInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gcli2api_http_requests_in_flight",
		Help: "Number of HTTP requests currently being handled.",
	})

	// CredentialRotationsTotal counts successful credential selections made
	// by the pool's round-robin rotation, labeled by credential ID.
	CredentialRotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gcli2api_credential_rotations_total",
		Help: "Total successful credential selections, by credential.",
	}, []string{"credential"})

	// CredentialErrorsTotal counts refresh/upstream errors attributed to a
	// credential, labeled by credential and error reason.
	CredentialErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gcli2api_credential_errors_total",
		Help: "Total credential-attributed errors, by credential and reason.",
	}, []string{"credential", "reason"})

	// CredentialRefreshesTotal counts access-token refresh attempts, labeled
	// by credential and outcome.
	CredentialRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gcli2api_credential_refreshes_total",
		Help: "Total OAuth token refresh attempts, by credential and outcome.",
	}, []string{"credential", "status"})

	// UpstreamRequestsTotal counts calls made to the upstream backend,
	// labeled by status class.
	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gcli2api_upstream_requests_total",
		Help: "Total requests issued to the upstream backend, by status class.",
	}, []string{"status_class"})

	// ActiveCredentials is the current count of enabled credentials.
	ActiveCredentials = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gcli2api_active_credentials",
		Help: "Number of credentials currently enabled for rotation.",
	})

	// DisabledCredentials is the current count of permanently disabled
	// credentials.
	DisabledCredentials = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gcli2api_disabled_credentials",
		Help: "Number of credentials permanently disabled after an upstream 403.",
	})

	// RateLimitKeysGauge tracks how many API keys currently hold an
	// in-memory rate-limit bucket set.
	RateLimitKeysGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gcli2api_rate_limit_keys",
		Help: "Number of API keys with an active rate-limit bucket set.",
	})
)
