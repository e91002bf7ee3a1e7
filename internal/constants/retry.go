package constants

import "time"

// Upstream request retry configuration. No package reads these values:
// internal/upstreamclient makes a single attempt per request.
const (
	DefaultMaxRetries    = 3
	DefaultRetryInterval = 1 * time.Second
	DefaultMaxRetryDelay = 30 * time.Second
	RetryBackoffFactor   = 2.0

	// Delay applied per observed upstream status before the next retry.
	RateLimitRetryDelay          = 60 * time.Second // 429
	ServiceUnavailableRetryDelay = 30 * time.Second // 503
	GatewayErrorRetryDelay       = 15 * time.Second // 502/504
	DefaultErrorRetryDelay       = 5 * time.Second  // anything else retryable

	NetworkErrorMaxRetries = 5
	NetworkErrorBaseDelay  = 2 * time.Second

	UpstreamMaxRetries    = 3
	UpstreamRetryDelay    = 1 * time.Second
	UpstreamMaxRetryDelay = 10 * time.Second
)

// Error message length limits. No package reads these values:
// internal/upstreamclient truncates upstream error bodies with its own
// 500-character limit.
const (
	MaxErrorMessageLength = 200
	ErrorContextMaxLength = 500
)
