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

func textOnlyUpstream(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}}\n")
	fmt.Fprint(w, "data: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo!\"}]},\"finishReason\":\"STOP\"}]}}\n")
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	ht := newHarness(t, textOnlyUpstream)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", jsonBody(
		`{"model":"gemini-2.5-pro","stream":false,"messages":[{"role":"user","content":"hi there, how are you today?"}]}`))
	req.Header.Set("Authorization", "Bearer "+ht.apiKey)
	rec := httptest.NewRecorder()
	ht.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	choices := body["choices"].([]interface{})
	require.Len(t, choices, 1)
	msg := choices[0].(map[string]interface{})["message"].(map[string]interface{})
	assert.Equal(t, "Hello!", msg["content"])
	usage := body["usage"].(map[string]interface{})
	assert.Greater(t, usage["completion_tokens"], float64(0))
}

func TestChatCompletionsStreaming(t *testing.T) {
	ht := newHarness(t, textOnlyUpstream)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", jsonBody(
		`{"model":"gemini-2.5-pro","stream":true,"messages":[{"role":"user","content":"hi there, how are you today please"}]}`))
	req.Header.Set("Authorization", "Bearer "+ht.apiKey)
	rec := httptest.NewRecorder()
	ht.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, "chat.completion.chunk")
	assert.Contains(t, out, `"content":"Hel"`)
	assert.Contains(t, out, `"finish_reason":"stop"`)
	assert.True(t, strings.HasSuffix(out, "data: [DONE]\n\n"))
}

func TestChatCompletionsShortSingleMessageForcesNonStreaming(t *testing.T) {
	called := false
	ht := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		textOnlyUpstream(w, r)
	})
	// no explicit "stream" field, content under the downgrade threshold
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", jsonBody(
		`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set("Authorization", "Bearer "+ht.apiKey)
	rec := httptest.NewRecorder()
	ht.router.ServeHTTP(rec, req)

	require.True(t, called)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "data: [DONE]"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "chat.completion", body["object"])
}

func TestChatCompletionsUpstreamForbiddenDisablesTheActualCredential(t *testing.T) {
	ht := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"forbidden"}`)
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", jsonBody(
		`{"model":"gemini-2.5-pro","stream":false,"messages":[{"role":"user","content":"hi there, how are you today?"}]}`))
	req.Header.Set("Authorization", "Bearer "+ht.apiKey)
	rec := httptest.NewRecorder()
	ht.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)

	snapshot := ht.pool.UsageSnapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "cred-1", snapshot[0].ID)
	assert.False(t, snapshot[0].Enabled, "the credential actually used must be disabled, not a blank id")
}

func TestOpenAICountTokens(t *testing.T) {
	ht := newHarness(t, textOnlyUpstream)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions/count_tokens", jsonBody(
		`{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"hello there"}]}`))
	rec := httptest.NewRecorder()
	ht.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tokens", body["object"])
	assert.Greater(t, body["prompt_tokens"], float64(0))
}
