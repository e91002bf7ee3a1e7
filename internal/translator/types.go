package translator

import (
	"context"
)

// Format represents an API format (openai, gemini, etc.)
type Format string

const (
	FormatOpenAI   Format = "openai"
	FormatClaude   Format = "claude"
	FormatUpstream Format = "upstream"
	FormatGeneric  Format = "generic"
)

// RequestTransform converts a request from one format to another.
// Returns the transformed request body as bytes.
type RequestTransform func(model string, rawJSON []byte, stream bool) []byte

// ResponseTransform converts a non-streaming response from one format to another.
// Streaming responses are not handled here: internal/upstreamclient parses the
// upstream chunked response directly into internal/streamevent events, which
// internal/gateway's handlers render into each dialect's SSE framing.
type ResponseTransform func(ctx context.Context, model string, responseBody []byte) ([]byte, error)

// TranslatorConfig holds configuration for request/response translation
type TranslatorConfig struct {
	RequestTransform  RequestTransform
	ResponseTransform ResponseTransform
}
