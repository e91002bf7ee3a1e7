package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolCallUpstream(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"checking\"}]}}]}}\n")
	fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"functionCall\":{\"name\":\"lookup\",\"args\":{\"q\":\"weather\"}}}]},\"finishReason\":\"STOP\"}]}}\n")
}

func TestMessagesNonStreaming(t *testing.T) {
	ht := newHarness(t, textOnlyUpstream)
	req := httptest.NewRequest(http.MethodPost, "/anthropic/v1/messages", jsonBody(
		`{"model":"claude-3-opus","stream":false,"messages":[{"role":"user","content":"hi there, how are you today?"}]}`))
	req.Header.Set("x-api-key", ht.apiKey)
	rec := httptest.NewRecorder()
	ht.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "message", body["type"])
	content := body["content"].([]interface{})
	require.Len(t, content, 1)
	block := content[0].(map[string]interface{})
	assert.Equal(t, "text", block["type"])
	assert.Equal(t, "Hello!", block["text"])
	assert.Equal(t, "end_turn", body["stop_reason"])
}

func TestMessagesStreamingEmitsFullEventSequence(t *testing.T) {
	ht := newHarness(t, textOnlyUpstream)
	req := httptest.NewRequest(http.MethodPost, "/anthropic/v1/messages", jsonBody(
		`{"model":"claude-3-opus","stream":true,"messages":[{"role":"user","content":"hi there, how are you today please"}]}`))
	req.Header.Set("x-api-key", ht.apiKey)
	rec := httptest.NewRecorder()
	ht.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	for _, want := range []string{
		"event: message_start", "event: content_block_start",
		"event: content_block_delta", "event: content_block_stop",
		"event: message_delta", "event: message_stop",
	} {
		assert.Contains(t, out, want)
	}
	assert.True(t, strings.Index(out, "message_start") < strings.Index(out, "content_block_start"))
	assert.True(t, strings.Index(out, "content_block_stop") < strings.Index(out, "message_delta"))
}

func TestMessagesStreamingWithToolCallReportsToolUseStop(t *testing.T) {
	ht := newHarness(t, toolCallUpstream)
	req := httptest.NewRequest(http.MethodPost, "/anthropic/v1/messages", jsonBody(
		`{"model":"claude-3-opus","stream":true,"messages":[{"role":"user","content":"what is the weather like today please"}]}`))
	req.Header.Set("x-api-key", ht.apiKey)
	rec := httptest.NewRecorder()
	ht.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `"type":"tool_use"`)
	assert.Contains(t, out, `"stop_reason":"tool_use"`)
}

func TestClaudeCountTokens(t *testing.T) {
	ht := newHarness(t, textOnlyUpstream)
	req := httptest.NewRequest(http.MethodPost, "/anthropic/v1/messages/count_tokens", jsonBody(
		`{"model":"claude-3-opus","messages":[{"role":"user","content":"hello there"}]}`))
	rec := httptest.NewRecorder()
	ht.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Greater(t, body["input_tokens"], float64(0))
}
