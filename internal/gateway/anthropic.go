package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"gcli2api-go/internal/gwerrors"
	"gcli2api-go/internal/streamevent"
	"gcli2api-go/internal/tokencount"
	"gcli2api-go/internal/translator"
)

// Messages implements the Anthropic-compatible POST /anthropic/v1/messages
// endpoint.
func (h *Handler) Messages(c *gin.Context) {
	rawJSON, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, gwerrors.InvalidRequest("failed to read request body"))
		return
	}
	root := gjson.ParseBytes(rawJSON)
	if !root.Get("messages").Exists() || !root.Get("messages").IsArray() {
		writeError(c, gwerrors.InvalidRequest("messages is required"))
		return
	}
	model := root.Get("model").String()
	if model == "" {
		writeError(c, gwerrors.InvalidRequest("model is required"))
		return
	}

	apiKey, gerr := h.authorize(c)
	if gerr != nil {
		writeError(c, gerr)
		return
	}

	stream := resolveStreaming(root)

	project, sessionID, err := h.identity.Get(apiKey)
	if err != nil {
		writeError(c, gwerrors.Wrap(gwerrors.KindUnauthorized, "identity synthesis failed", err))
		return
	}

	cfg, _ := translator.Lookup(translator.FormatClaude, translator.FormatUpstream)
	translated := cfg.RequestTransform(model, rawJSON, stream)
	envelope := buildEnvelope(translated, project, sessionID, model, h.cfg.Upstream.UserAgent)

	credentialID, accessToken, _, err := h.pool.GetToken(c.Request.Context())
	if err != nil {
		writeError(c, gwerrors.NoCredentials(err))
		return
	}

	promptTokens, toolSchemaBytes, _ := tokencount.ClaudePrompt(rawJSON, model)

	if stream {
		h.streamClaude(c, model, envelope, credentialID, accessToken, promptTokens, toolSchemaBytes)
		return
	}
	h.nonStreamClaude(c, model, envelope, credentialID, accessToken, promptTokens, toolSchemaBytes)
}

func (h *Handler) nonStreamClaude(c *gin.Context, model string, envelope []byte, credentialID, accessToken string, promptTokens, toolSchemaBytes int64) {
	agg := &aggregator{}
	if err := h.upstream.Stream(c.Request.Context(), accessToken, envelope, agg.sink); err != nil {
		h.handleCredentialError(credentialID, err)
		writeError(c, err)
		return
	}

	respCfg, _ := translator.Lookup(translator.FormatUpstream, translator.FormatClaude)
	body, err := respCfg.ResponseTransform(c.Request.Context(), model, agg.rawCandidateJSON())
	if err != nil {
		writeError(c, gwerrors.Wrap(gwerrors.KindUpstreamInterrupted, "response translation failed", err))
		return
	}

	completionTokens, _ := tokencount.Completion(agg.visibleText.String(), model)
	var obj map[string]interface{}
	if json.Unmarshal(body, &obj) == nil {
		obj["usage"] = map[string]interface{}{
			"input_tokens":  promptTokens + toolSchemaBytes,
			"output_tokens": completionTokens,
		}
		body, _ = json.Marshal(obj)
	}
	c.Data(http.StatusOK, "application/json", body)
}

// claudeStreamState drives the content-block index bookkeeping Anthropic's
// SSE framing needs. Blocks take consecutive indexes starting at 0: a
// thinking block (if any) spans ThinkingStart to ThinkingEnd; the text block
// opens on the first non-empty text delta and closes once a tool call or the
// turn's end is observed; then each call gets one tool_use block carrying
// its whole arguments in a single input_json_delta, since Upstream only ever
// delivers a call's arguments whole.
type claudeStreamState struct {
	nextIndex    int
	textOpen     bool
	thinkingOpen bool
	messageID    string
	toolArgsErr  error
}

func (h *Handler) streamClaude(c *gin.Context, model string, envelope []byte, credentialID, accessToken string, promptTokens, toolSchemaBytes int64) {
	w := c.Writer
	flusher := prepareSSE(w)

	agg := &aggregator{}
	state := &claudeStreamState{messageID: fmt.Sprintf("msg_%d", time.Now().UnixNano())}

	writeSSEEvent(w, flusher, "message_start", map[string]interface{}{
		"type": "message_start",
		"message": map[string]interface{}{
			"id": state.messageID, "type": "message", "role": "assistant",
			"model": model, "content": []interface{}{}, "stop_reason": nil,
			"usage": map[string]interface{}{"input_tokens": promptTokens + toolSchemaBytes, "output_tokens": 0},
		},
	})

	toolSeen := false
	hitStopSequence := false

	sink := func(e streamevent.Event) {
		agg.sink(e)
		switch e.Kind {
		case streamevent.KindThinking:
			switch e.Phase {
			case streamevent.ThinkingStart:
				state.thinkingOpen = true
				writeSSEEvent(w, flusher, "content_block_start", map[string]interface{}{
					"type": "content_block_start", "index": state.nextIndex,
					"content_block": map[string]interface{}{"type": "thinking", "thinking": ""},
				})
			case streamevent.ThinkingMid:
				if e.ThinkingDelta == "" {
					return
				}
				writeSSEEvent(w, flusher, "content_block_delta", map[string]interface{}{
					"type": "content_block_delta", "index": state.nextIndex,
					"delta": map[string]interface{}{"type": "thinking_delta", "thinking": e.ThinkingDelta},
				})
			case streamevent.ThinkingEnd:
				writeSSEEvent(w, flusher, "content_block_stop", map[string]interface{}{
					"type": "content_block_stop", "index": state.nextIndex,
				})
				state.thinkingOpen = false
				state.nextIndex++
			}
		case streamevent.KindText:
			if !state.textOpen && e.TextDelta != "" {
				state.textOpen = true
				writeSSEEvent(w, flusher, "content_block_start", map[string]interface{}{
					"type": "content_block_start", "index": state.nextIndex,
					"content_block": map[string]interface{}{"type": "text", "text": ""},
				})
			}
			if e.TextDelta != "" {
				writeSSEEvent(w, flusher, "content_block_delta", map[string]interface{}{
					"type": "content_block_delta", "index": state.nextIndex,
					"delta": map[string]interface{}{"type": "text_delta", "text": e.TextDelta},
				})
			}
		case streamevent.KindToolCall:
			if state.textOpen {
				writeSSEEvent(w, flusher, "content_block_stop", map[string]interface{}{
					"type": "content_block_stop", "index": state.nextIndex,
				})
				state.textOpen = false
				state.nextIndex++
			}
			for i, tc := range e.ToolCalls {
				toolSeen = true
				var input interface{}
				if err := json.Unmarshal([]byte(rawOrEmptyObject(tc.Arguments)), &input); err != nil {
					state.toolArgsErr = fmt.Errorf("tool %q: %w", tc.Name, err)
					writeSSEEvent(w, flusher, "error", map[string]interface{}{
						"type":  "error",
						"error": map[string]interface{}{"type": "invalid_request_error", "message": state.toolArgsErr.Error()},
					})
					continue
				}
				id := tc.ID
				if id == "" {
					id = fmt.Sprintf("toolu_%d", i+1)
				}
				writeSSEEvent(w, flusher, "content_block_start", map[string]interface{}{
					"type": "content_block_start", "index": state.nextIndex,
					"content_block": map[string]interface{}{"type": "tool_use", "id": id, "name": tc.Name, "input": map[string]interface{}{}},
				})
				argsJSON, _ := json.Marshal(input)
				writeSSEEvent(w, flusher, "content_block_delta", map[string]interface{}{
					"type": "content_block_delta", "index": state.nextIndex,
					"delta": map[string]interface{}{"type": "input_json_delta", "partial_json": string(argsJSON)},
				})
				writeSSEEvent(w, flusher, "content_block_stop", map[string]interface{}{
					"type": "content_block_stop", "index": state.nextIndex,
				})
				state.nextIndex++
			}
		}
	}

	err := h.upstream.Stream(c.Request.Context(), accessToken, envelope, sink)
	if err != nil {
		h.handleCredentialError(credentialID, err)
		writeSSEEvent(w, flusher, "error", map[string]interface{}{
			"type":  "error",
			"error": map[string]interface{}{"type": "api_error", "message": err.Error()},
		})
		writeSSEEvent(w, flusher, "message_stop", map[string]interface{}{"type": "message_stop"})
		return
	}

	if state.textOpen || state.thinkingOpen {
		writeSSEEvent(w, flusher, "content_block_stop", map[string]interface{}{
			"type": "content_block_stop", "index": state.nextIndex,
		})
	}

	stopReason := "end_turn"
	switch {
	case toolSeen:
		stopReason = "tool_use"
	case hitStopSequence:
		stopReason = "stop_sequence"
	case agg.finishReason == "MAX_TOKENS":
		stopReason = "max_tokens"
	}

	completionTokens, _ := tokencount.Completion(agg.visibleText.String(), model)
	writeSSEEvent(w, flusher, "message_delta", map[string]interface{}{
		"type":  "message_delta",
		"delta": map[string]interface{}{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": map[string]interface{}{"output_tokens": completionTokens},
	})
	writeSSEEvent(w, flusher, "message_stop", map[string]interface{}{"type": "message_stop"})
}

// ClaudeCountTokens implements POST /anthropic/v1/messages/count_tokens.
func (h *Handler) ClaudeCountTokens(c *gin.Context) {
	rawJSON, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, gwerrors.InvalidRequest("failed to read request body"))
		return
	}
	model := gjson.GetBytes(rawJSON, "model").String()
	inputTokens, toolSchemaBytes, err := tokencount.ClaudePrompt(rawJSON, model)
	fallback := err != nil
	c.JSON(http.StatusOK, gin.H{
		"input_tokens": inputTokens + toolSchemaBytes, "model": model, "fallback": fallback,
	})
}
