// Package upstreamclient performs the single HTTP call to the proprietary
// streaming backend and parses its chunked-JSON response into the
// normalized event stream gateway handlers render into OpenAI or Anthropic
// SSE framing.
package upstreamclient

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gcli2api-go/internal/config"
	"gcli2api-go/internal/constants"
	"gcli2api-go/internal/gwerrors"
	"gcli2api-go/internal/monitoring"
	"gcli2api-go/internal/streamevent"
	"gcli2api-go/internal/tracing"
)

// Client issues streaming calls against the Upstream backend's
// Code-Assist-style streamGenerateContent endpoint.
type Client struct {
	cfg  *config.Config
	http *http.Client
}

// New builds a Client with transport tuning for a many-credential,
// many-concurrent-stream workload: generous idle-conn limits so connection
// reuse stays high across rotating credentials.
func New(cfg *config.Config) *Client {
	dialTO := durationOrDefault(cfg.Upstream.DialTimeoutSec, constants.DefaultDialTimeout)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTO,
			KeepAlive: constants.DefaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   constants.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: constants.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: constants.DefaultExpectContinueTimeout,
		MaxIdleConns:          constants.BaseMaxIdleConns,
		MaxIdleConnsPerHost:   constants.BaseMaxIdleConnsPerHost,
		IdleConnTimeout:       constants.BaseIdleConnTimeout,
	}
	return &Client{cfg: cfg, http: &http.Client{Transport: transport}}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

// Stream performs a single POST to Upstream's streamGenerateContent
// endpoint with bearer auth, then parses the SSE-shaped chunked response and
// invokes sink once per normalized event. On a non-2xx response it returns a
// *gwerrors.Error describing the failure: KindCredentialForbidden for 403 so
// the caller can disable the credential, KindUpstreamStatus otherwise. A
// TCP error after streaming has begun is reported as KindUpstreamInterrupted;
// whatever events were already sent to sink remain the caller's to keep.
func (c *Client) Stream(ctx context.Context, accessToken string, envelope []byte, sink func(streamevent.Event)) error {
	endpoint := strings.TrimRight(c.cfg.Upstream.BaseURL, "/") + "/v1internal:streamGenerateContent?alt=sse"

	ctx, span := tracing.StartSpan(ctx, "upstreamclient", "Stream",
		trace.WithAttributes(attribute.String("http.method", http.MethodPost), attribute.String("http.url", endpoint)))
	defer span.End()

	finish := func(status int, err error) {
		span.SetAttributes(attribute.Int("http.status_code", status))
		monitoring.UpstreamRequestsTotal.WithLabelValues(statusClassFor(status)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope))
	if err != nil {
		finish(0, err)
		return fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if c.cfg.Upstream.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.Upstream.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		gerr := gwerrors.UpstreamInterrupted(err)
		finish(0, gerr)
		return gerr
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		gerr := gwerrors.CredentialForbidden(fmt.Errorf("upstream 403: %s", snippet(body)))
		finish(resp.StatusCode, gerr)
		return gerr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		gerr := gwerrors.UpstreamStatus(resp.StatusCode, snippet(body))
		finish(resp.StatusCode, gerr)
		return gerr
	}

	if err := parseStream(resp.Body, sink); err != nil {
		gerr := gwerrors.UpstreamInterrupted(err)
		finish(resp.StatusCode, gerr)
		return gerr
	}
	finish(resp.StatusCode, nil)
	return nil
}

// statusClassFor buckets an HTTP status (or 0 for a connection-level
// failure) into the same "Nxx"/"error" classes internal/monitoring's
// counters use.
func statusClassFor(status int) string {
	if status <= 0 {
		return "error"
	}
	return fmt.Sprintf("%dxx", status/100)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}

// parseState tracks whether the parser is currently inside a thinking block
// and accumulates tool calls across chunks until the turn's finishReason
// arrives.
type parseState struct {
	thinking  bool
	toolCalls []streamevent.ToolCall
}

func parseStream(r io.Reader, sink func(streamevent.Event)) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, constants.SSEScannerInitialBufferSize)
	scanner.Buffer(buf, constants.SSEScannerMaxBufferSize)

	state := &parseState{}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if !gjson.Valid(payload) {
			continue // skip lines that aren't valid JSON rather than aborting the stream
		}
		parsed := gjson.Parse(payload)
		handleChunk(parsed, state, sink)
	}
	return scanner.Err()
}

func handleChunk(parsed gjson.Result, state *parseState, sink func(streamevent.Event)) {
	candidate := parsed.Get("response.candidates.0")

	for _, part := range candidate.Get("content.parts").Array() {
		if part.Get("thought").Bool() {
			if !state.thinking {
				sink(streamevent.Thinking("", streamevent.ThinkingStart))
				state.thinking = true
			}
			sink(streamevent.Thinking(part.Get("text").String(), streamevent.ThinkingMid))
			continue
		}

		if text := part.Get("text"); text.Exists() {
			if state.thinking {
				sink(streamevent.Thinking("", streamevent.ThinkingEnd))
				state.thinking = false
			}
			delta := text.String()
			if sig := part.Get("thought_signature"); sig.Exists() && sig.String() != "" {
				delta += fmt.Sprintf("<!-- thought_signature: %s -->", sig.String())
			}
			if inline := part.Get("inlineData"); inline.Exists() {
				mime := inline.Get("mimeType").String()
				data := inline.Get("data").String()
				delta += fmt.Sprintf("![Generated Image](data:%s;base64,%s)", mime, data)
			}
			sink(streamevent.Text(delta, ""))
			continue
		}

		if fc := part.Get("functionCall"); fc.Exists() {
			id := fc.Get("id").String()
			if id == "" {
				id = fmt.Sprintf("call_%d", len(state.toolCalls))
			}
			state.toolCalls = append(state.toolCalls, streamevent.ToolCall{
				ID:        id,
				Name:      fc.Get("name").String(),
				Arguments: fc.Get("args").Raw,
			})
		}
	}

	if finish := candidate.Get("finishReason"); finish.Exists() && finish.String() != "" {
		if state.thinking {
			sink(streamevent.Thinking("", streamevent.ThinkingEnd))
			state.thinking = false
		}
		if len(state.toolCalls) > 0 {
			calls := state.toolCalls
			state.toolCalls = nil
			ev := streamevent.ToolCallsEvent(calls)
			ev.FinishReason = finish.String()
			sink(ev)
		} else {
			sink(streamevent.Event{Kind: streamevent.KindText, FinishReason: finish.String()})
		}
	}
}
